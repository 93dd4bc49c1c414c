package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meetsign/meetsign/internal/checkin"
	"github.com/meetsign/meetsign/internal/store"
	storemock "github.com/meetsign/meetsign/internal/store/mock"
)

// openMeeting returns a meeting whose sign-in window spans now.
func openMeeting(id string) store.Meeting {
	return store.Meeting{
		ID:        id,
		Name:      "weekly sync",
		SignStart: time.Now().Add(-time.Hour),
		SignEnd:   time.Now().Add(time.Hour),
	}
}

// closedMeeting returns a meeting whose sign-in window has passed.
func closedMeeting(id string) store.Meeting {
	return store.Meeting{
		ID:        id,
		Name:      "retro",
		SignStart: time.Now().Add(-2 * time.Hour),
		SignEnd:   time.Now().Add(-time.Hour),
	}
}

// seededTemplate is the roster entry used across handler tests: one
// attendee whose reference embedding is unit-x.
func seededTemplate() store.AttendeeTemplate {
	return store.AttendeeTemplate{
		UserID:    "U1",
		UserName:  "Alice Stone",
		DeptName:  "Engineering",
		Embedding: []float32{1, 0, 0, 0},
	}
}

// seededStore builds a mock store with one open meeting and the seeded
// attendee on its roster.
func seededStore(t *testing.T) *storemock.MockStore {
	t.Helper()
	st := storemock.NewMockStore()
	st.AddMeeting(openMeeting("m1"))
	st.AddTemplate("m1", seededTemplate())
	return st
}

func newTestRegistry(t *testing.T, st *storemock.MockStore) *checkin.Registry {
	t.Helper()
	r := checkin.NewRegistry(st, checkin.Options{Threshold: 0.7})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r.Shutdown(ctx)
	})
	return r
}

// multipartBody builds a multipart body with form fields and one file part.
func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "frame.jpg")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// do routes the request through a fresh chi router so URL params resolve.
func do(t *testing.T, register func(r chi.Router), req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}
