package database

import (
	"context"
)

// FaceRecordReader provides read-only access to enrolled labels
type FaceRecordReader interface {
	// FindAll returns every record with its descriptors
	FindAll(ctx context.Context) ([]FaceRecord, error)
	// FindByLabel returns the record for a label, nil if not found
	FindByLabel(ctx context.Context, label string) (*FaceRecord, error)
	// Exists checks whether a record with exactly this label exists
	Exists(ctx context.Context, label string) (bool, error)
	// ListLabels returns all labels with descriptor counts, ordered by label
	ListLabels(ctx context.Context) ([]LabelSummary, error)
	// Count returns the number of enrolled labels
	Count(ctx context.Context) (int, error)
}

// FaceRecordWriter provides write access to enrolled labels
type FaceRecordWriter interface {
	FaceRecordReader

	// Insert stores a new record. Returns ErrLabelExists if the label is taken.
	// Sets ID and CreatedAt on success.
	Insert(ctx context.Context, record *FaceRecord) error

	// Delete removes the record for a label. Returns ErrLabelNotFound if missing.
	Delete(ctx context.Context, label string) error
}
