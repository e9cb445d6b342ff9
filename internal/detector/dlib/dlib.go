// Package dlib runs face detection in process with dlib through go-face.
package dlib

import (
	"context"
	"fmt"
	"image"
	"sync"

	face "github.com/Kagami/go-face"
	"github.com/kozaktomas/face-recognizer/internal/detector"
	"github.com/kozaktomas/face-recognizer/internal/facematch"

	log "github.com/sirupsen/logrus"
)

// Detector wraps a go-face recognizer. The recognizer is not safe for
// concurrent use, so every call holds mu.
type Detector struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

// New loads the shape predictor, ResNet and CNN detector models from dir.
func New(modelsDir string) (*Detector, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize face recognizer: %w", err)
	}
	log.WithField("models_dir", modelsDir).Info("dlib face recognizer loaded")
	return &Detector{rec: rec}, nil
}

func (d *Detector) Name() string {
	return "dlib"
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}

func (d *Detector) DetectSingle(ctx context.Context, jpegData []byte) (*detector.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec == nil {
		return nil, fmt.Errorf("recognizer closed")
	}

	// RecognizeSingle reports nothing when a photo has more than one face.
	faces, err := d.rec.Recognize(jpegData)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize face: %w", err)
	}
	f, ok := largest(faces)
	if !ok {
		return nil, nil
	}

	out := convert(f)
	return &out, nil
}

// largest returns the face with the biggest bounding box. The CNN detector
// does not expose confidences, so size stands in for the most prominent face.
func largest(faces []face.Face) (face.Face, bool) {
	if len(faces) == 0 {
		return face.Face{}, false
	}
	best := 0
	for i := 1; i < len(faces); i++ {
		if area(faces[i].Rectangle) > area(faces[best].Rectangle) {
			best = i
		}
	}
	return faces[best], true
}

func area(r image.Rectangle) int {
	s := r.Canon().Size()
	return s.X * s.Y
}

func (d *Detector) DetectAll(ctx context.Context, jpegData []byte) ([]detector.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec == nil {
		return nil, fmt.Errorf("recognizer closed")
	}

	faces, err := d.rec.Recognize(jpegData)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize faces: %w", err)
	}

	out := make([]detector.Face, 0, len(faces))
	for _, f := range faces {
		out = append(out, convert(f))
	}
	return out, nil
}

func convert(f face.Face) detector.Face {
	landmarks := make([]facematch.Point, len(f.Shapes))
	for i, p := range f.Shapes {
		landmarks[i] = facematch.Point{X: float64(p.X), Y: float64(p.Y)}
	}

	var eyes *facematch.EyePair
	if pair, ok := facematch.EyesFromCorners(landmarks); ok {
		eyes = &pair
	} else {
		eyes = detector.EyesFromLandmarks(landmarks)
	}

	descriptor := make([]float32, len(f.Descriptor))
	copy(descriptor, f.Descriptor[:])

	return detector.Face{
		Box:        f.Rectangle,
		Landmarks:  landmarks,
		Eyes:       eyes,
		Descriptor: descriptor,
	}
}
