// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/database"
)

// MockFaceRecordStore is an in-memory implementation of database.FaceRecordWriter
type MockFaceRecordStore struct {
	mu      sync.RWMutex
	records map[string]*database.FaceRecord
	nextID  int

	// Error injection
	FindAllError     error
	FindByLabelError error
	ExistsError      error
	ListLabelsError  error
	CountError       error
	InsertError      error
	DeleteError      error

	// Call tracking
	InsertCalls int
	DeleteCalls int
}

// NewMockFaceRecordStore creates a new empty mock store
func NewMockFaceRecordStore() *MockFaceRecordStore {
	return &MockFaceRecordStore{
		records: make(map[string]*database.FaceRecord),
	}
}

// AddRecord adds a record to the mock store, bypassing the unique check
func (m *MockFaceRecordStore) AddRecord(rec database.FaceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		m.nextID++
		rec.ID = fmt.Sprintf("mock-%d", m.nextID)
	}
	m.records[rec.Label] = &rec
}

func copyRecord(r *database.FaceRecord) database.FaceRecord {
	out := *r
	out.Descriptions = make([][]float32, len(r.Descriptions))
	for i, d := range r.Descriptions {
		out.Descriptions[i] = append([]float32(nil), d...)
	}
	return out
}

func (m *MockFaceRecordStore) sortedLocked() []database.FaceRecord {
	out := make([]database.FaceRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, copyRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// FindAll returns all records ordered by label
func (m *MockFaceRecordStore) FindAll(ctx context.Context) ([]database.FaceRecord, error) {
	if m.FindAllError != nil {
		return nil, m.FindAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(), nil
}

// FindByLabel returns the record for a label or nil
func (m *MockFaceRecordStore) FindByLabel(ctx context.Context, label string) (*database.FaceRecord, error) {
	if m.FindByLabelError != nil {
		return nil, m.FindByLabelError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[label]
	if !ok {
		return nil, nil
	}
	out := copyRecord(r)
	return &out, nil
}

// Exists checks whether a label is enrolled
func (m *MockFaceRecordStore) Exists(ctx context.Context, label string) (bool, error) {
	if m.ExistsError != nil {
		return false, m.ExistsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[label]
	return ok, nil
}

// ListLabels returns label summaries ordered by label
func (m *MockFaceRecordStore) ListLabels(ctx context.Context) ([]database.LabelSummary, error) {
	if m.ListLabelsError != nil {
		return nil, m.ListLabelsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.sortedLocked()
	out := make([]database.LabelSummary, len(records))
	for i, r := range records {
		out[i] = r.Summary()
	}
	return out, nil
}

// Count returns the number of records
func (m *MockFaceRecordStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Insert stores a new record, rejecting duplicate labels
func (m *MockFaceRecordStore) Insert(ctx context.Context, rec *database.FaceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if m.InsertError != nil {
		return m.InsertError
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, ok := m.records[rec.Label]; ok {
		return database.ErrLabelExists
	}

	m.nextID++
	rec.ID = fmt.Sprintf("mock-%d", m.nextID)
	if rec.Dim == 0 {
		rec.Dim = len(rec.Descriptions[0])
	}
	rec.CreatedAt = time.Now().UTC()
	stored := copyRecord(rec)
	m.records[rec.Label] = &stored
	return nil
}

// Delete removes a record
func (m *MockFaceRecordStore) Delete(ctx context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return m.DeleteError
	}
	if _, ok := m.records[label]; !ok {
		return database.ErrLabelNotFound
	}
	delete(m.records, label)
	return nil
}

// Len returns the number of records without error injection
func (m *MockFaceRecordStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

var _ database.FaceRecordWriter = (*MockFaceRecordStore)(nil)
