package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meetsign/meetsign/internal/embedding"
	"github.com/meetsign/meetsign/internal/store"
)

// FeaturesHandler exports a meeting's reference embeddings for offline
// check-in devices.
type FeaturesHandler struct {
	meetings store.MeetingReader
}

// NewFeaturesHandler creates a features handler.
func NewFeaturesHandler(meetings store.MeetingReader) *FeaturesHandler {
	return &FeaturesHandler{meetings: meetings}
}

// featuresResponse maps attendee identity to a base64 embedding.
type featuresResponse struct {
	MeetingID   string            `json:"meeting_id"`
	MeetingName string            `json:"meeting_name"`
	Count       int               `json:"count"`
	Features    map[string]string `json:"features"`
}

// Export handles GET /meetings/{meetingID}/features.
func (h *FeaturesHandler) Export(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	ctx := r.Context()

	meeting, err := h.meetings.GetMeeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "meeting not found")
			return
		}
		log.Printf("features: loading meeting %s: %v", sanitizeForLog(meetingID), err)
		respondError(w, http.StatusInternalServerError, "failed to load meeting")
		return
	}

	templates, err := h.meetings.GetAttendeeTemplates(ctx, meetingID)
	if err != nil {
		log.Printf("features: loading templates for meeting %s: %v", sanitizeForLog(meetingID), err)
		respondError(w, http.StatusInternalServerError, "failed to load attendee features")
		return
	}
	if len(templates) == 0 {
		respondError(w, http.StatusConflict, "meeting has no attendees with registered faces")
		return
	}

	features := make(map[string]string, len(templates))
	for _, t := range templates {
		features[t.UserID] = embedding.EncodeBase64(t.Embedding)
	}

	respondJSON(w, http.StatusOK, featuresResponse{
		MeetingID:   meeting.ID,
		MeetingName: meeting.Name,
		Count:       len(features),
		Features:    features,
	})
}
