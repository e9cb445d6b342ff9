package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	RecordCount     int       `json:"record_count"`
	DescriptorCount int       `json:"descriptor_count"`
	Dim             int       `json:"dim"`
	BuildTime       time.Time `json:"build_time"`
	Version         int       `json:"version"` // For future compatibility
}

const hnswMetadataVersion = 1

// indexSnapshot is the gob payload of the .faces file.
type indexSnapshot struct {
	Records    []FaceRecord
	NodeLabels map[int64]string
	NextID     int64
	Dim        int
}

// DescriptorIndex keeps all records in memory together with an HNSW graph
// over their descriptors (Euclidean distance). It shortlists candidate
// labels for a query; mean distances are computed exactly by the caller.
// Only descriptors of the index dimension are added to the graph.
type DescriptorIndex struct {
	graph     *hnsw.Graph[int64]
	records   map[string]*FaceRecord
	nodeLabel map[int64]string // Maps HNSW node ID to label
	nextID    int64
	dim       int
	mu        sync.RWMutex
}

// NewDescriptorIndex creates a new empty index.
func NewDescriptorIndex() *DescriptorIndex {
	return &DescriptorIndex{
		records:   make(map[string]*FaceRecord),
		nodeLabel: make(map[int64]string),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// dominantDim returns the descriptor length used by most records.
func dominantDim(records []FaceRecord) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, r := range records {
		if len(r.Descriptions) == 0 {
			continue
		}
		d := len(r.Descriptions[0])
		counts[d]++
		if counts[d] > bestCount || (counts[d] == bestCount && d < best) {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

// Build replaces the index content with the given records.
func (x *DescriptorIndex) Build(records []FaceRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.records = make(map[string]*FaceRecord, len(records))
	for i := range records {
		r := records[i]
		x.records[r.Label] = &r
	}
	x.dim = dominantDim(records)
	x.rebuildLocked()
}

// rebuildLocked recreates the graph from x.records. Caller holds mu.
func (x *DescriptorIndex) rebuildLocked() {
	x.graph = nil
	x.nodeLabel = make(map[int64]string)
	x.nextID = 0

	labels := make([]string, 0, len(x.records))
	for label := range x.records {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		x.addNodesLocked(x.records[label])
	}
}

func (x *DescriptorIndex) addNodesLocked(r *FaceRecord) {
	for _, d := range r.Descriptions {
		if len(d) == 0 || len(d) != x.dim {
			continue
		}
		if x.graph == nil {
			x.graph = newGraph()
		}
		id := x.nextID
		x.nextID++
		x.graph.Add(hnsw.MakeNode(id, d))
		x.nodeLabel[id] = r.Label
	}
}

// Add indexes a newly enrolled record.
func (x *DescriptorIndex) Add(record FaceRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 && len(record.Descriptions) > 0 {
		x.dim = len(record.Descriptions[0])
	}
	if _, exists := x.records[record.Label]; exists {
		x.records[record.Label] = &record
		x.rebuildLocked()
		return
	}
	x.records[record.Label] = &record
	x.addNodesLocked(&record)
}

// Remove drops a label. The graph is rebuilt since HNSW deletion degrades
// the neighbourhood structure.
func (x *DescriptorIndex) Remove(label string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.records[label]; !ok {
		return
	}
	delete(x.records, label)
	x.rebuildLocked()
}

// Candidates returns up to k records whose descriptors are nearest to the
// query. A query of another dimension gets every record.
func (x *DescriptorIndex) Candidates(query []float32, k int) []FaceRecord {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || x.graph.Len() == 0 || len(query) != x.dim || k <= 0 {
		return x.recordsLocked()
	}

	neighbors := x.graph.Search(query, k*HNSWSearchMultiplier)

	seen := make(map[string]bool, k)
	out := make([]FaceRecord, 0, k)
	for _, n := range neighbors {
		label, ok := x.nodeLabel[n.Key]
		if !ok || seen[label] {
			continue
		}
		rec, ok := x.records[label]
		if !ok {
			continue
		}
		seen[label] = true
		out = append(out, *rec)
		if len(out) == k {
			break
		}
	}
	return out
}

func (x *DescriptorIndex) recordsLocked() []FaceRecord {
	out := make([]FaceRecord, 0, len(x.records))
	for _, r := range x.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Len returns the number of indexed records.
func (x *DescriptorIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// Nodes returns the number of descriptors in the graph.
func (x *DescriptorIndex) Nodes() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.graph == nil {
		return 0
	}
	return x.graph.Len()
}

// Dim is the descriptor length the graph was built for.
func (x *DescriptorIndex) Dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Save persists the graph, metadata (.meta) and records (.faces) to disk.
func (x *DescriptorIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if path == "" {
		return nil // No path set
	}

	if x.graph == nil || x.graph.Len() == 0 {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".faces")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := x.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close HNSW index file: %w", err)
	}

	snapshot := indexSnapshot{
		Records:    x.recordsLocked(),
		NodeLabels: x.nodeLabel,
		NextID:     x.nextID,
		Dim:        x.dim,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := os.WriteFile(path+".faces", buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write records file: %w", err)
	}

	metadata := HNSWIndexMetadata{
		RecordCount:     len(x.records),
		DescriptorCount: x.graph.Len(),
		Dim:             x.dim,
		BuildTime:       time.Now(),
		Version:         hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0o600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if metadata.Version != hnswMetadataVersion {
		return metadata, fmt.Errorf("unsupported index version %d", metadata.Version)
	}

	return metadata, nil
}

// Load replaces the index content with the graph and records saved at path.
func (x *DescriptorIndex) Load(path string) (HNSWIndexMetadata, error) {
	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return metadata, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return metadata, fmt.Errorf("HNSW index file not found: %s", path)
	}
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return metadata, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".faces") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read records file: %w", err)
	}
	var snapshot indexSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snapshot); err != nil {
		return metadata, fmt.Errorf("failed to decode records: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.graph = saved.Graph
	x.graph.Distance = hnsw.EuclideanDistance
	x.nodeLabel = snapshot.NodeLabels
	if x.nodeLabel == nil {
		x.nodeLabel = make(map[int64]string)
	}
	x.nextID = snapshot.NextID
	x.dim = snapshot.Dim
	x.records = make(map[string]*FaceRecord, len(snapshot.Records))
	for i := range snapshot.Records {
		r := snapshot.Records[i]
		x.records[r.Label] = &r
	}

	return metadata, nil
}
