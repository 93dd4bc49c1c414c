package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meetsign/meetsign/internal/recognizer"
	"github.com/meetsign/meetsign/internal/store"
)

// FacesHandler manages face template registration and removal.
type FacesHandler struct {
	templates  store.TemplateWriter
	recognizer recognizer.Recognizer
	recTimeout time.Duration
}

// NewFacesHandler creates a faces handler.
func NewFacesHandler(templates store.TemplateWriter, rec recognizer.Recognizer, recTimeout time.Duration) *FacesHandler {
	return &FacesHandler{
		templates:  templates,
		recognizer: rec,
		recTimeout: recTimeout,
	}
}

// Register handles POST /faces/register: a multipart photo plus either a
// `user_id` or a `user_name` form field. The name lookup is normalized,
// so "jan-novak" resolves "Jan Novák".
func (h *FacesHandler) Register(w http.ResponseWriter, r *http.Request) {
	photo, ok := readUploadedFile(w, r)
	if !ok {
		return
	}

	userID := r.FormValue("user_id")
	userName := r.FormValue("user_name")
	if userID == "" && userName == "" {
		respondError(w, http.StatusBadRequest, "user_id or user_name is required")
		return
	}

	ctx := r.Context()
	if userID == "" {
		user, err := h.templates.FindUserByName(ctx, userName)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "no user with that name")
				return
			}
			log.Printf("faces: user lookup %q: %v", sanitizeForLog(userName), err)
			respondError(w, http.StatusInternalServerError, "user lookup failed")
			return
		}
		userID = user.ID
		userName = user.Name
	}
	if userName == "" {
		userName = userID
	}

	recCtx, cancel := context.WithTimeout(ctx, h.recTimeout)
	defer cancel()

	faces, err := h.recognizer.Detect(recCtx, photo)
	if err != nil {
		log.Printf("faces: detect for user %s: %v", sanitizeForLog(userID), err)
		respondError(w, http.StatusBadGateway, "face detection failed")
		return
	}
	if len(faces) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "no face detected in photo")
		return
	}

	emb, err := h.recognizer.Embed(recCtx, photo)
	if err != nil {
		if errors.Is(err, recognizer.ErrNoFace) {
			respondError(w, http.StatusUnprocessableEntity, "no face detected in photo")
			return
		}
		log.Printf("faces: embed for user %s: %v", sanitizeForLog(userID), err)
		respondError(w, http.StatusBadGateway, "face embedding failed")
		return
	}

	if err := h.templates.SaveTemplate(ctx, userID, userName, emb); err != nil {
		log.Printf("faces: save template for user %s: %v", sanitizeForLog(userID), err)
		respondError(w, http.StatusInternalServerError, "failed to save face template")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"user_name": userName,
		"dim":       len(emb),
	})
}

// Delete handles DELETE /faces/{userID}, removing all of a user's
// templates.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	n, err := h.templates.DeleteTemplates(r.Context(), userID)
	if err != nil {
		log.Printf("faces: delete templates for user %s: %v", sanitizeForLog(userID), err)
		respondError(w, http.StatusInternalServerError, "failed to delete face templates")
		return
	}
	if n == 0 {
		respondError(w, http.StatusNotFound, "no face templates for user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"deleted": n,
	})
}
