package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/krivanek/rollcall/internal/config"
)

func testTuning() *config.Tuning {
	return config.NewTuning(config.TuningDefaults{
		RecognitionThreshold: 0.7,
		QualityThreshold:     0.6,
		FrameSkip:            2,
		MinFaceSize:          80,
	})
}

func TestConfigGet(t *testing.T) {
	h := NewConfigHandler(testTuning())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snap config.TuningSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.RecognitionThreshold != 0.7 || snap.FrameSkip != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestConfigUpdate(t *testing.T) {
	tuning := testTuning()
	h := NewConfigHandler(tuning)

	body := `{"recognition_threshold":0.85,"quality_threshold":0.5,"frame_skip":1,"min_face_size":60}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/config", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := tuning.Snapshot(); got.RecognitionThreshold != 0.85 || got.MinFaceSize != 60 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestConfigUpdateRejectsInvalid(t *testing.T) {
	tuning := testTuning()
	h := NewConfigHandler(tuning)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"threshold out of range", `{"recognition_threshold":1.5,"quality_threshold":0.5,"frame_skip":1,"min_face_size":60}`},
		{"zero frame skip", `{"recognition_threshold":0.7,"quality_threshold":0.5,"frame_skip":0,"min_face_size":60}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/config", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Update(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}

	if got := tuning.Snapshot(); got.RecognitionThreshold != 0.7 {
		t.Errorf("rejected update must not change values: %+v", got)
	}
}
