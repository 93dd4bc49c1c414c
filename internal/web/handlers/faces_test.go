package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	recmock "github.com/meetsign/meetsign/internal/recognizer/mock"
	"github.com/meetsign/meetsign/internal/store"
)

func postRegister(t *testing.T, h *FacesHandler, fields map[string]string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, file)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/faces/register", body)
	req.Header.Set("Content-Type", contentType)
	return do(t, func(r chi.Router) {
		r.Post("/api/v1/faces/register", h.Register)
	}, req)
}

func TestRegisterByUserID(t *testing.T) {
	st := seededStore(t)
	rec := recmock.New([]float32{0.5, 0.5, 0, 0})
	h := NewFacesHandler(st, rec, 5*time.Second)

	resp := postRegister(t, h, map[string]string{"user_id": "U7", "user_name": "New Person"}, []byte("photo"))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if st.TemplateCount("U7") != 1 {
		t.Errorf("templates for U7 = %d, want 1", st.TemplateCount("U7"))
	}
}

func TestRegisterByUserName(t *testing.T) {
	st := seededStore(t)
	st.AddUser(store.User{ID: "U5", Name: "Jan Novák"})
	rec := recmock.New([]float32{0.5, 0.5, 0, 0})
	h := NewFacesHandler(st, rec, 5*time.Second)

	// Normalized lookup: dashed lowercase form resolves the accented name.
	resp := postRegister(t, h, map[string]string{"user_name": "jan-novak"}, []byte("photo"))
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if st.TemplateCount("U5") != 1 {
		t.Errorf("templates for U5 = %d, want 1", st.TemplateCount("U5"))
	}
}

func TestRegisterUnknownName(t *testing.T) {
	st := seededStore(t)
	rec := recmock.New([]float32{0.5, 0.5, 0, 0})
	h := NewFacesHandler(st, rec, 5*time.Second)

	resp := postRegister(t, h, map[string]string{"user_name": "ghost"}, []byte("photo"))
	if resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Code)
	}
}

func TestRegisterNoIdentity(t *testing.T) {
	st := seededStore(t)
	rec := recmock.New([]float32{0.5, 0.5, 0, 0})
	h := NewFacesHandler(st, rec, 5*time.Second)

	resp := postRegister(t, h, nil, []byte("photo"))
	if resp.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.Code)
	}
}

func TestRegisterNoFaceInPhoto(t *testing.T) {
	st := seededStore(t)
	rec := recmock.New([]float32{0.5, 0.5, 0, 0})
	rec.Faces = nil
	h := NewFacesHandler(st, rec, 5*time.Second)

	resp := postRegister(t, h, map[string]string{"user_id": "U7"}, []byte("photo"))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.Code)
	}
	if st.TemplateCount("U7") != 0 {
		t.Error("template saved despite missing face")
	}
}

func TestDeleteTemplates(t *testing.T) {
	st := seededStore(t)
	rec := recmock.New([]float32{0.5, 0.5, 0, 0})
	h := NewFacesHandler(st, rec, 5*time.Second)

	if resp := postRegister(t, h, map[string]string{"user_id": "U7", "user_name": "New Person"}, []byte("photo")); resp.Code != http.StatusOK {
		t.Fatalf("register status = %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/faces/U7", nil)
	resp := do(t, func(r chi.Router) {
		r.Delete("/api/v1/faces/{userID}", h.Delete)
	}, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", resp.Code, resp.Body.String())
	}
	if st.TemplateCount("U7") != 0 {
		t.Errorf("templates for U7 = %d after delete", st.TemplateCount("U7"))
	}

	// Deleting again finds nothing.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/faces/U7", nil)
	resp = do(t, func(r chi.Router) {
		r.Delete("/api/v1/faces/{userID}", h.Delete)
	}, req)
	if resp.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", resp.Code)
	}
}
