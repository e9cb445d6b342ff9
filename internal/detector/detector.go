// Package detector defines the face model contract used by the recognition
// service and implements the remote embedding-server backend.
package detector

import (
	"context"
	"fmt"
	"image"

	"github.com/kozaktomas/face-recognizer/internal/facematch"
)

// Face is one detected face.
type Face struct {
	Box        image.Rectangle
	Landmarks  []facematch.Point
	Eyes       *facematch.EyePair // nil when the landmarks do not locate the eyes
	Descriptor []float32
	Score      float64 // detection confidence, 0 when the backend does not report one
}

// Detector finds faces in JPEG data and computes their descriptors.
type Detector interface {
	// DetectSingle returns the most confident face or nil when none is found.
	DetectSingle(ctx context.Context, jpegData []byte) (*Face, error)
	// DetectAll returns every detected face, possibly none.
	DetectAll(ctx context.Context, jpegData []byte) ([]Face, error)
	// Name identifies the backend, stored as the record model.
	Name() string
	Close() error
}

type Mode string

const (
	ModeSingle Mode = "single"
	ModeAll    Mode = "all"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSingle, ModeAll:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown detection mode %q", s)
	}
}

// Detect runs single- or all-faces detection depending on mode.
func Detect(ctx context.Context, d Detector, mode Mode, jpegData []byte) ([]Face, error) {
	if mode == ModeSingle {
		face, err := d.DetectSingle(ctx, jpegData)
		if err != nil || face == nil {
			return nil, err
		}
		return []Face{*face}, nil
	}
	return d.DetectAll(ctx, jpegData)
}

// EyesFromLandmarks locates the eyes in the 68-point layout or the
// 5 keypoint layout of embedding servers.
func EyesFromLandmarks(landmarks []facematch.Point) *facematch.EyePair {
	if eyes, ok := facematch.EyesFrom68(landmarks); ok {
		return &eyes
	}
	if eyes, ok := facematch.EyesFromKeypoints(landmarks); ok {
		return &eyes
	}
	return nil
}
