package database

import (
	"errors"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/facematch"
)

var (
	// ErrLabelExists is returned when inserting a label that is already enrolled.
	ErrLabelExists = errors.New("label already registered")
	// ErrLabelNotFound is returned when deleting a label that does not exist.
	ErrLabelNotFound = errors.New("label not found")
)

// FaceRecord maps one label to the descriptors it was enrolled with.
type FaceRecord struct {
	ID           string
	Label        string
	Descriptions [][]float32 // one descriptor per enrollment image
	Model        string      // detector backend that produced the descriptors
	Dim          int
	CreatedAt    time.Time
}

// LabelSummary describes an enrolled label without its descriptors.
type LabelSummary struct {
	Label       string    `json:"label"`
	Descriptors int       `json:"descriptors"`
	Model       string    `json:"model"`
	Dim         int       `json:"dim"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary returns the record without its descriptors.
func (r FaceRecord) Summary() LabelSummary {
	return LabelSummary{
		Label:       r.Label,
		Descriptors: len(r.Descriptions),
		Model:       r.Model,
		Dim:         r.Dim,
		CreatedAt:   r.CreatedAt,
	}
}

// Validate checks the invariants every backend relies on before insert.
func (r FaceRecord) Validate() error {
	if r.Label == "" {
		return errors.New("label is required")
	}
	if len(r.Descriptions) == 0 {
		return errors.New("at least one descriptor is required")
	}
	for _, d := range r.Descriptions {
		if len(d) == 0 || len(d) != len(r.Descriptions[0]) {
			return errors.New("descriptors must have the same non-zero length")
		}
	}
	if r.Dim != 0 && r.Dim != len(r.Descriptions[0]) {
		return errors.New("dim does not match descriptor length")
	}
	return nil
}

// Labeled converts records to matcher input.
func Labeled(records []FaceRecord) []facematch.LabeledDescriptors {
	out := make([]facematch.LabeledDescriptors, 0, len(records))
	for _, r := range records {
		out = append(out, facematch.LabeledDescriptors{Label: r.Label, Descriptors: r.Descriptions})
	}
	return out
}
