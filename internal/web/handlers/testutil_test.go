package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-recognizer/internal/database/mock"
	"github.com/kozaktomas/face-recognizer/internal/detector"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

// stubDetector returns the same faces for every image.
type stubDetector struct {
	mu    sync.Mutex
	faces []detector.Face
	err   error
}

func (s *stubDetector) set(faces ...detector.Face) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faces = faces
}

func (s *stubDetector) DetectSingle(ctx context.Context, data []byte) (*detector.Face, error) {
	faces, err := s.DetectAll(ctx, data)
	if err != nil || len(faces) == 0 {
		return nil, err
	}
	return &faces[0], nil
}

func (s *stubDetector) DetectAll(context.Context, []byte) ([]detector.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]detector.Face(nil), s.faces...), s.err
}

func (s *stubDetector) Name() string { return "stub" }
func (s *stubDetector) Close() error { return nil }

func stubFace(values ...float32) detector.Face {
	return detector.Face{Box: image.Rect(4, 4, 28, 28), Descriptor: values}
}

// testService wires a stub detector and an in-memory store.
func testService(t *testing.T, imageCount int) (*recognition.Service, *stubDetector, *mock.MockFaceRecordStore) {
	t.Helper()
	det := &stubDetector{}
	store := mock.NewMockFaceRecordStore()
	svc := recognition.NewService(det, store, recognition.Options{
		Mode:             detector.ModeAll,
		EnrollImageCount: imageCount,
		Threshold:        0.6,
		Thumbnails:       true,
	})
	return svc, det, store
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{uint8(x * 8), 90, uint8(y * 8), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest builds a POST request with form fields and files.
func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for name, data := range files {
		part, err := writer.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(data)
	}
	writer.Close()

	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
