package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/recognition"

	log "github.com/sirupsen/logrus"
)

const rootMessage = "Face Recognition API"

// FacesHandler serves enrollment, lookup and label management.
type FacesHandler struct {
	service *recognition.Service
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(service *recognition.Service) *FacesHandler {
	return &FacesHandler{service: service}
}

// Root handles GET /.
func (h *FacesHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"message": rootMessage,
		"status":  http.StatusOK,
	})
}

// parseForm limits and parses a multipart body.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MultipartMemory); err != nil {
		return errors.New("failed to parse multipart form")
	}
	return nil
}

// readImage reads a single form file. A missing field is ErrMissingImage.
func readImage(r *http.Request, field string) (recognition.Image, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return recognition.Image{}, fmt.Errorf("%w: %s", recognition.ErrMissingImage, field)
	}
	if err != nil {
		return recognition.Image{}, fmt.Errorf("failed to read %s", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return recognition.Image{}, fmt.Errorf("failed to read %s", field)
	}
	return recognition.Image{Field: field, Data: data}, nil
}

// labelParam returns the decoded {label} URL parameter. chi matches on
// r.URL.RawPath when it is set (e.g. for "%2F"), so only then is the
// parameter still escaped.
func labelParam(r *http.Request) string {
	label := chi.URLParam(r, "label")
	if r.URL.RawPath == "" {
		return label
	}
	if decoded, err := url.PathUnescape(label); err == nil {
		return decoded
	}
	return label
}

func imageField(i int) string {
	return fmt.Sprintf("%s%d", constants.ImageFieldPrefix, i)
}

// Register handles POST /recognizing-face.
func (h *FacesHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	label := r.FormValue(constants.LabelField)
	if strings.TrimSpace(label) == "" {
		respondError(w, http.StatusBadRequest, recognition.ErrLabelRequired.Error())
		return
	}

	count := h.service.EnrollImageCount()
	images := make([]recognition.Image, 0, count)
	for i := 1; i <= count; i++ {
		img, err := readImage(r, imageField(i))
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		images = append(images, img)
	}

	_, err := h.service.Enroll(r.Context(), label, images)
	switch {
	case err == nil:
		respondMessage(w, http.StatusOK, "Face data stored successfully")
	case errors.Is(err, recognition.ErrLabelExists):
		respondError(w, http.StatusConflict, fmt.Sprintf("label %q is already registered", label))
	case errors.Is(err, recognition.ErrLabelRequired),
		errors.Is(err, recognition.ErrLabelTooLong),
		errors.Is(err, recognition.ErrMissingImage),
		errors.Is(err, recognition.ErrNoFaceDetected),
		errors.Is(err, recognition.ErrInvalidImage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		internalError(w, r, "Failed to enroll face", err)
	}
}

// Recognize handles POST /recognizer-face.
func (h *FacesHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	label := r.FormValue(constants.LabelField)
	if strings.TrimSpace(label) == "" {
		respondMessage(w, http.StatusBadRequest, "label parameter is required")
		return
	}

	img, err := readImage(r, imageField(1))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.service.Identify(r.Context(), label, img)
	switch {
	case err == nil:
	case errors.Is(err, recognition.ErrNoFaceDetected):
		respondMessage(w, http.StatusUnprocessableEntity, "No face detected in the image")
		return
	case errors.Is(err, recognition.ErrInvalidImage),
		errors.Is(err, recognition.ErrMissingImage),
		errors.Is(err, recognition.ErrLabelTooLong),
		errors.Is(err, recognition.ErrLabelRequired):
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	default:
		internalError(w, r, "Failed to recognize face", err)
		return
	}

	if len(results) == 0 {
		respondMessage(w, http.StatusNotFound, fmt.Sprintf("No face matching label '%s' found", label))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"result": results})
}

// Search handles GET /search-face/{label}.
func (h *FacesHandler) Search(w http.ResponseWriter, r *http.Request) {
	label := labelParam(r)

	found, err := h.service.Exists(r.Context(), label)
	if err != nil && !errors.Is(err, recognition.ErrLabelRequired) && !errors.Is(err, recognition.ErrLabelTooLong) {
		internalError(w, r, "Failed to search label", err)
		return
	}

	if found {
		respondJSON(w, http.StatusOK, map[string]any{
			"label":    label,
			"is_found": true,
			"message":  "Label found in database",
		})
		return
	}
	respondJSON(w, http.StatusNotFound, map[string]any{
		"label":    label,
		"is_found": false,
		"message":  "Label not found in database",
	})
}

// List handles GET /faces.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	labels, err := h.service.Labels(r.Context())
	if err != nil {
		internalError(w, r, "Failed to list labels", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"labels": labels,
		"count":  len(labels),
	})
}

// Delete handles DELETE /faces/{label}.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	label := labelParam(r)

	err := h.service.Delete(r.Context(), label)
	switch {
	case err == nil:
		log.WithField("label", sanitizeForLog(label)).Debug("Label deleted via API")
		respondMessage(w, http.StatusOK, "Face data deleted successfully")
	case errors.Is(err, recognition.ErrLabelNotFound),
		errors.Is(err, recognition.ErrLabelRequired),
		errors.Is(err, recognition.ErrLabelTooLong):
		respondError(w, http.StatusNotFound, fmt.Sprintf("label %q not found", label))
	default:
		internalError(w, r, "Failed to delete label", err)
	}
}
