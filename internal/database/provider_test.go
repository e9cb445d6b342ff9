package database

import (
	"context"
	"testing"
)

type nopWriter struct{ FaceRecordWriter }

func TestProviderRegistry(t *testing.T) {
	t.Cleanup(func() { _ = CloseBackend() })
	ctx := context.Background()

	if err := CloseBackend(); err != nil {
		t.Fatalf("CloseBackend on empty registry: %v", err)
	}
	if IsInitialized() {
		t.Fatal("expected registry to start empty")
	}
	if _, err := GetFaceRecordReader(ctx); err == nil {
		t.Error("expected error before registration")
	}
	if _, err := GetFaceRecordWriter(ctx); err == nil {
		t.Error("expected error before registration")
	}

	w := nopWriter{}
	closed := false
	RegisterBackend("test",
		func() FaceRecordReader { return w },
		func() FaceRecordWriter { return w },
		func() error { closed = true; return nil },
	)

	if !IsInitialized() || BackendName() != "test" {
		t.Fatalf("expected test backend registered, got %q", BackendName())
	}
	if _, err := GetFaceRecordWriter(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := CloseBackend(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !closed {
		t.Error("expected backend closer to be called")
	}
	if IsInitialized() {
		t.Error("expected registry to be empty after close")
	}
}
