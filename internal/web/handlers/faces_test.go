package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-recognizer/internal/database"
)

func decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return result
}

func enrollFiles(t *testing.T, n int) map[string][]byte {
	data := testPNG(t)
	files := make(map[string][]byte, n)
	for i := 1; i <= n; i++ {
		files[imageField(i)] = data
	}
	return files
}

func TestFacesHandler_Root(t *testing.T) {
	svc, _, _ := testService(t, 2)
	recorder := httptest.NewRecorder()
	NewFacesHandler(svc).Root(recorder, httptest.NewRequest("GET", "/", nil))

	result := decode(t, recorder)
	if result["status"] != float64(200) || result["message"] == "" {
		t.Errorf("unexpected root response: %v", result)
	}
}

func TestFacesHandler_Register(t *testing.T) {
	svc, det, store := testService(t, 2)
	det.set(stubFace(0, 0))
	handler := NewFacesHandler(svc)

	req := multipartRequest(t, "/recognizing-face", map[string]string{"label": "Alice"}, enrollFiles(t, 2))
	recorder := httptest.NewRecorder()
	handler.Register(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if msg := decode(t, recorder)["message"]; msg != "Face data stored successfully" {
		t.Errorf("unexpected message %v", msg)
	}

	rec, _ := store.FindByLabel(req.Context(), "Alice")
	if rec == nil || len(rec.Descriptions) != 2 {
		t.Errorf("expected record with 2 descriptors, got %+v", rec)
	}
}

func TestFacesHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		files      func(t *testing.T) map[string][]byte
		noFace     bool
		existing   bool
		insertErr  error
		wantStatus int
		wantErr    string
	}{
		{
			name:       "missing label",
			fields:     map[string]string{},
			files:      func(t *testing.T) map[string][]byte { return enrollFiles(t, 2) },
			wantStatus: http.StatusBadRequest,
			wantErr:    "label is required",
		},
		{
			name:       "missing file",
			fields:     map[string]string{"label": "Alice"},
			files:      func(t *testing.T) map[string][]byte { return enrollFiles(t, 1) },
			wantStatus: http.StatusBadRequest,
			wantErr:    "File2",
		},
		{
			name:   "not an image",
			fields: map[string]string{"label": "Alice"},
			files: func(t *testing.T) map[string][]byte {
				return map[string][]byte{"File1": []byte("hello"), "File2": []byte("world")}
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    "invalid image",
		},
		{
			name:       "no face",
			fields:     map[string]string{"label": "Alice"},
			files:      func(t *testing.T) map[string][]byte { return enrollFiles(t, 2) },
			noFace:     true,
			wantStatus: http.StatusBadRequest,
			wantErr:    "no face detected",
		},
		{
			name:       "label too long",
			fields:     map[string]string{"label": strings.Repeat("x", 256)},
			files:      func(t *testing.T) map[string][]byte { return enrollFiles(t, 2) },
			wantStatus: http.StatusBadRequest,
			wantErr:    "longer than 255",
		},
		{
			name:       "duplicate label",
			fields:     map[string]string{"label": "Alice"},
			files:      func(t *testing.T) map[string][]byte { return enrollFiles(t, 2) },
			existing:   true,
			wantStatus: http.StatusConflict,
			wantErr:    "already registered",
		},
		{
			name:       "store failure",
			fields:     map[string]string{"label": "Alice"},
			files:      func(t *testing.T) map[string][]byte { return enrollFiles(t, 2) },
			insertErr:  errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
			wantErr:    errInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, det, store := testService(t, 2)
			if !tt.noFace {
				det.set(stubFace(0, 0))
			}
			if tt.existing {
				store.AddRecord(database.FaceRecord{Label: "Alice", Descriptions: [][]float32{{1, 1}}})
			}
			store.InsertError = tt.insertErr

			recorder := httptest.NewRecorder()
			NewFacesHandler(svc).Register(recorder, multipartRequest(t, "/recognizing-face", tt.fields, tt.files(t)))

			if recorder.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
			msg, _ := decode(t, recorder)["error"].(string)
			if !strings.Contains(msg, tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, msg)
			}
			if tt.wantStatus != http.StatusConflict && store.Len() != 0 {
				t.Errorf("expected nothing stored, got %d", store.Len())
			}
		})
	}
}

func TestFacesHandler_Register_DuplicateKeepsFirst(t *testing.T) {
	svc, det, store := testService(t, 1)
	handler := NewFacesHandler(svc)

	det.set(stubFace(0, 0))
	first := httptest.NewRecorder()
	handler.Register(first, multipartRequest(t, "/recognizing-face", map[string]string{"label": "Alice"}, enrollFiles(t, 1)))

	det.set(stubFace(9, 9))
	second := httptest.NewRecorder()
	handler.Register(second, multipartRequest(t, "/recognizing-face", map[string]string{"label": "Alice"}, enrollFiles(t, 1)))

	if first.Code != http.StatusOK || second.Code != http.StatusConflict {
		t.Fatalf("expected 200 then 409, got %d then %d", first.Code, second.Code)
	}
	rec, _ := store.FindByLabel(t.Context(), "Alice")
	if rec.Descriptions[0][0] != 0 {
		t.Errorf("first record was overwritten: %v", rec.Descriptions)
	}
}

func enrolledHandler(t *testing.T) (*FacesHandler, *stubDetector) {
	svc, det, store := testService(t, 1)
	store.AddRecord(database.FaceRecord{Label: "Alice", Descriptions: [][]float32{{0, 0}, {0.2, 0}}})
	store.AddRecord(database.FaceRecord{Label: "Bob", Descriptions: [][]float32{{5, 5}}})
	return NewFacesHandler(svc), det
}

func TestFacesHandler_Recognize(t *testing.T) {
	handler, det := enrolledHandler(t)
	det.set(stubFace(0.1, 0))

	req := multipartRequest(t, "/recognizer-face", map[string]string{"label": "Alice"}, map[string][]byte{"File1": testPNG(t)})
	recorder := httptest.NewRecorder()
	handler.Recognize(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body struct {
		Result []struct {
			Label      string  `json:"label"`
			Distance   float64 `json:"distance"`
			Similarity float64 `json:"similarity"`
			FaceImage  string  `json:"face_image"`
		} `json:"result"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if len(body.Result) != 1 || body.Result[0].Label != "Alice" {
		t.Fatalf("unexpected result: %+v", body.Result)
	}
	r := body.Result[0]
	if r.Distance <= 0 || r.Distance >= 0.6 {
		t.Errorf("distance out of range: %v", r.Distance)
	}
	if want := 1 / (1 + r.Distance); r.Similarity-want > 1e-9 || want-r.Similarity > 1e-9 {
		t.Errorf("expected similarity %v, got %v", want, r.Similarity)
	}
	if !strings.HasPrefix(r.FaceImage, "data:image/jpeg;base64,") {
		t.Errorf("expected face image data URL")
	}
}

func TestFacesHandler_Recognize_Errors(t *testing.T) {
	png := testPNG(t)
	tests := []struct {
		name       string
		label      string
		file       []byte
		faces      bool
		wantStatus int
	}{
		{"missing label", "", png, true, http.StatusBadRequest},
		{"missing file", "Alice", nil, true, http.StatusBadRequest},
		{"empty file", "Alice", []byte{}, true, http.StatusBadRequest},
		{"label too long", strings.Repeat("x", 256), png, true, http.StatusBadRequest},
		{"no face", "Alice", png, false, http.StatusUnprocessableEntity},
		{"label never enrolled", "Carol", png, true, http.StatusNotFound},
		{"face of another label", "Bob", png, true, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, det := enrolledHandler(t)
			if tt.faces {
				det.set(stubFace(0.1, 0))
			}
			fields := map[string]string{}
			if tt.label != "" {
				fields["label"] = tt.label
			}
			files := map[string][]byte{}
			if tt.file != nil {
				files["File1"] = tt.file
			}

			recorder := httptest.NewRecorder()
			handler.Recognize(recorder, multipartRequest(t, "/recognizer-face", fields, files))

			if recorder.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
			if _, ok := decode(t, recorder)["message"]; !ok {
				t.Error("expected message key in response")
			}
		})
	}
}

func TestFacesHandler_Search(t *testing.T) {
	tests := []struct {
		label      string
		wantStatus int
		wantFound  bool
	}{
		{"Alice", http.StatusOK, true},
		{"alice", http.StatusNotFound, false},
		{"Carol", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			handler, _ := enrolledHandler(t)
			req := requestWithChiParams(httptest.NewRequest("GET", "/search-face/"+tt.label, nil), map[string]string{"label": tt.label})
			recorder := httptest.NewRecorder()
			handler.Search(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, recorder.Code)
			}
			result := decode(t, recorder)
			if result["is_found"] != tt.wantFound || result["label"] != tt.label {
				t.Errorf("unexpected response: %v", result)
			}
		})
	}
}

func TestFacesHandler_Search_StoreError(t *testing.T) {
	svc, _, store := testService(t, 1)
	store.ExistsError = errors.New("connection reset")

	req := requestWithChiParams(httptest.NewRequest("GET", "/search-face/Alice", nil), map[string]string{"label": "Alice"})
	recorder := httptest.NewRecorder()
	NewFacesHandler(svc).Search(recorder, req)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	if _, ok := decode(t, recorder)["error"]; !ok {
		t.Error("expected error key")
	}
}

func TestFacesHandler_ListAndDelete(t *testing.T) {
	handler, _ := enrolledHandler(t)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/faces", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if count := decode(t, recorder)["count"]; count != float64(2) {
		t.Errorf("expected 2 labels, got %v", count)
	}

	del := func(label string) int {
		req := requestWithChiParams(httptest.NewRequest("DELETE", "/faces/"+label, nil), map[string]string{"label": label})
		rec := httptest.NewRecorder()
		handler.Delete(rec, req)
		return rec.Code
	}

	if code := del("Bob"); code != http.StatusOK {
		t.Errorf("expected 200 deleting Bob, got %d", code)
	}
	if code := del("Bob"); code != http.StatusNotFound {
		t.Errorf("expected 404 deleting Bob twice, got %d", code)
	}
}

func TestLabelParam(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		param string // what chi matched
		want  string
	}{
		{"escaped slash matched on raw path", "/search-face/a%2Fb", "a%2Fb", "a/b"},
		{"literal percent decoded once", "/search-face/a%2541", "a%41", "a%41"},
		{"space", "/search-face/Jane%20Doe", "Jane Doe", "Jane Doe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest("GET", tt.path, nil), map[string]string{"label": tt.param})
			if got := labelParam(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
