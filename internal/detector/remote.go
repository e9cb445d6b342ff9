package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/facematch"
)

const defaultRemoteURL = "http://localhost:8000"

// RemoteDetector detects faces using the embedding server /embed/face endpoint.
type RemoteDetector struct {
	baseURL string
	client  *http.Client
}

func NewRemoteDetector(baseURL string, timeout time.Duration) *RemoteDetector {
	if baseURL == "" {
		baseURL = defaultRemoteURL
	}
	return &RemoteDetector{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// faceDetection represents a single detected face
type faceDetection struct {
	FaceIndex int          `json:"face_index"`
	Dim       int          `json:"dim"`
	Embedding []float32    `json:"embedding"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64      `json:"det_score"`
	Landmarks [][2]float64 `json:"landmarks,omitempty"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

func (d *RemoteDetector) Name() string {
	return "remote"
}

func (d *RemoteDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// DetectAll returns the faces in server order.
func (d *RemoteDetector) DetectAll(ctx context.Context, jpegData []byte) ([]Face, error) {
	resp, err := d.computeFaces(ctx, jpegData)
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(resp.Faces))
	for _, det := range resp.Faces {
		if len(det.Embedding) == 0 {
			return nil, errors.New("empty embedding returned")
		}
		faces = append(faces, det.toFace())
	}
	return faces, nil
}

// DetectSingle returns the face with the highest detection score.
func (d *RemoteDetector) DetectSingle(ctx context.Context, jpegData []byte) (*Face, error) {
	faces, err := d.DetectAll(ctx, jpegData)
	if err != nil || len(faces) == 0 {
		return nil, err
	}

	best := 0
	for i := range faces {
		if faces[i].Score > faces[best].Score {
			best = i
		}
	}
	return &faces[best], nil
}

func (det faceDetection) toFace() Face {
	landmarks := make([]facematch.Point, len(det.Landmarks))
	for i, p := range det.Landmarks {
		landmarks[i] = facematch.Point{X: p[0], Y: p[1]}
	}

	return Face{
		Box:        facematch.RectFromBBox(det.BBox),
		Landmarks:  landmarks,
		Eyes:       EyesFromLandmarks(landmarks),
		Descriptor: det.Embedding,
		Score:      det.DetScore,
	}
}

func (d *RemoteDetector) computeFaces(ctx context.Context, imageData []byte) (*faceResponse, error) {
	body, err := d.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// postMultipartImage posts the image as the "file" part with a Content-Type
// detected from its magic bytes.
func (d *RemoteDetector) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
