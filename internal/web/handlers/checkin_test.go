package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	recmock "github.com/meetsign/meetsign/internal/recognizer/mock"
)

func postCheckin(t *testing.T, h *CheckinHandler, meetingID string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, nil, file)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/meetings/"+meetingID+"/checkin", body)
	req.Header.Set("Content-Type", contentType)
	return do(t, func(r chi.Router) {
		r.Post("/api/v1/meetings/{meetingID}/checkin", h.Checkin)
	}, req)
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) streamMessage {
	t.Helper()
	var msg streamMessage
	if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return msg
}

func TestCheckinSuccess(t *testing.T) {
	st := seededStore(t)
	registry := newTestRegistry(t, st)
	rec := recmock.New([]float32{1, 0, 0, 0})
	h := NewCheckinHandler(registry, rec, nil, st, 5*time.Second)

	resp := postCheckin(t, h, "m1", []byte("frame-bytes"))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	msg := decodeMessage(t, resp)
	if msg.Status != "success" {
		t.Fatalf("status = %q, want success", msg.Status)
	}
	if msg.UserID != "U1" || msg.UserName != "Alice Stone" {
		t.Errorf("matched %s/%s, want U1/Alice Stone", msg.UserID, msg.UserName)
	}
	if msg.Similarity != "100.00%" {
		t.Errorf("similarity = %q, want 100.00%%", msg.Similarity)
	}
	if msg.AlreadySigned {
		t.Error("first check-in reported as already signed")
	}
	if msg.SignTime == "" {
		t.Error("sign_time missing")
	}
}

func TestCheckinRepeatIsIdempotent(t *testing.T) {
	st := seededStore(t)
	registry := newTestRegistry(t, st)
	rec := recmock.New([]float32{1, 0, 0, 0})
	h := NewCheckinHandler(registry, rec, nil, st, 5*time.Second)

	first := decodeMessage(t, postCheckin(t, h, "m1", []byte("frame")))
	second := decodeMessage(t, postCheckin(t, h, "m1", []byte("frame")))

	if first.AlreadySigned {
		t.Error("first check-in reported as already signed")
	}
	if !second.AlreadySigned {
		t.Error("second check-in not reported as already signed")
	}
	if second.SignTime != first.SignTime {
		t.Errorf("sign_time changed on repeat: %q then %q", first.SignTime, second.SignTime)
	}
}

func TestCheckinNoMatch(t *testing.T) {
	st := seededStore(t)
	registry := newTestRegistry(t, st)
	// Orthogonal to the roster template.
	rec := recmock.New([]float32{0, 1, 0, 0})
	h := NewCheckinHandler(registry, rec, nil, st, 5*time.Second)

	msg := decodeMessage(t, postCheckin(t, h, "m1", []byte("frame")))
	if msg.Status != "fail" {
		t.Fatalf("status = %q, want fail", msg.Status)
	}
	if msg.Similarity != "0.00%" {
		t.Errorf("similarity = %q, want 0.00%%", msg.Similarity)
	}
}

func TestCheckinNoFace(t *testing.T) {
	st := seededStore(t)
	registry := newTestRegistry(t, st)
	rec := recmock.New([]float32{1, 0, 0, 0})
	rec.Faces = nil
	h := NewCheckinHandler(registry, rec, nil, st, 5*time.Second)

	msg := decodeMessage(t, postCheckin(t, h, "m1", []byte("frame")))
	if msg.Status != "detect" {
		t.Fatalf("status = %q, want detect", msg.Status)
	}
	if rec.EmbedCalls() != 0 {
		t.Errorf("embed called %d times with no face", rec.EmbedCalls())
	}
}

func TestCheckinMeetingNotFound(t *testing.T) {
	st := seededStore(t)
	registry := newTestRegistry(t, st)
	rec := recmock.New([]float32{1, 0, 0, 0})
	h := NewCheckinHandler(registry, rec, nil, st, 5*time.Second)

	resp := postCheckin(t, h, "nope", []byte("frame"))
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Code)
	}
}

func TestCheckinWindowClosed(t *testing.T) {
	st := seededStore(t)
	st.AddMeeting(closedMeeting("old"))
	st.AddTemplate("old", seededTemplate())
	registry := newTestRegistry(t, st)
	rec := recmock.New([]float32{1, 0, 0, 0})
	h := NewCheckinHandler(registry, rec, nil, st, 5*time.Second)

	resp := postCheckin(t, h, "old", []byte("frame"))
	if resp.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409, body %s", resp.Code, resp.Body.String())
	}
}

func TestCheckinMissingFile(t *testing.T) {
	st := seededStore(t)
	registry := newTestRegistry(t, st)
	rec := recmock.New([]float32{1, 0, 0, 0})
	h := NewCheckinHandler(registry, rec, nil, st, 5*time.Second)

	body, contentType := multipartBody(t, map[string]string{"note": "no file"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/meetings/m1/checkin", body)
	req.Header.Set("Content-Type", contentType)
	resp := do(t, func(r chi.Router) {
		r.Post("/api/v1/meetings/{meetingID}/checkin", h.Checkin)
	}, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.Code)
	}
}
