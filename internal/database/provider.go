package database

import (
	"context"
	"fmt"
	"sync"
)

var (
	backendMu     sync.RWMutex
	backendName   string
	recordReader  func() FaceRecordReader
	recordWriter  func() FaceRecordWriter
	backendCloser func() error
)

// RegisterBackend registers the constructors of the active storage backend.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(
	name string,
	reader func() FaceRecordReader,
	writer func() FaceRecordWriter,
	closer func() error,
) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = name
	recordReader = reader
	recordWriter = writer
	backendCloser = closer
}

// IsInitialized returns whether a storage backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return recordWriter != nil
}

// BackendName returns the name of the registered backend, empty if none.
func BackendName() string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendName
}

// GetFaceRecordReader returns a FaceRecordReader from the registered backend
func GetFaceRecordReader(ctx context.Context) (FaceRecordReader, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if recordReader == nil {
		return nil, fmt.Errorf("storage backend not initialized: DATABASE_URL is required")
	}
	return recordReader(), nil
}

// GetFaceRecordWriter returns a FaceRecordWriter from the registered backend
func GetFaceRecordWriter(ctx context.Context) (FaceRecordWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if recordWriter == nil {
		return nil, fmt.Errorf("storage backend not initialized: DATABASE_URL is required")
	}
	return recordWriter(), nil
}

// CloseBackend closes and unregisters the active backend.
func CloseBackend() error {
	backendMu.Lock()
	closer := backendCloser
	backendName = ""
	recordReader = nil
	recordWriter = nil
	backendCloser = nil
	backendMu.Unlock()

	if closer != nil {
		return closer()
	}
	return nil
}
