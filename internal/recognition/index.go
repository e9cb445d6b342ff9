package recognition

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/face-recognizer/internal/database"

	log "github.com/sirupsen/logrus"
)

// LoadIndex returns an HNSW index over every stored record. A saved index at
// path is reused when its record count matches the store; otherwise the index
// is rebuilt from the store and saved.
func LoadIndex(ctx context.Context, store database.FaceRecordReader, path string) (*database.DescriptorIndex, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count face records: %w", err)
	}

	idx := database.NewDescriptorIndex()
	if path != "" {
		if _, statErr := os.Stat(path + ".meta"); statErr == nil {
			meta, err := idx.Load(path)
			switch {
			case err != nil:
				log.WithError(err).Warn("Failed to load saved HNSW index, rebuilding")
			case meta.RecordCount != count:
				log.WithFields(log.Fields{
					"saved":  meta.RecordCount,
					"stored": count,
				}).Info("Saved HNSW index is stale, rebuilding")
			default:
				log.WithFields(log.Fields{
					"records":     meta.RecordCount,
					"descriptors": meta.DescriptorCount,
					"built":       meta.BuildTime,
				}).Info("Loaded HNSW index")
				return idx, nil
			}
		}
	}

	records, err := store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load face records: %w", err)
	}
	idx.Build(records)
	log.WithFields(log.Fields{
		"records":     idx.Len(),
		"descriptors": idx.Nodes(),
		"dim":         idx.Dim(),
	}).Info("Built HNSW index")

	if err := idx.Save(path); err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to persist HNSW index")
	}
	return idx, nil
}
