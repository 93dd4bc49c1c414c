package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meetsign/meetsign/internal/checkin"
	"github.com/meetsign/meetsign/internal/evidence"
	"github.com/meetsign/meetsign/internal/recognizer"
	"github.com/meetsign/meetsign/internal/store"
)

// maxUploadBytes bounds single-photo uploads.
const maxUploadBytes = 10 << 20

// CheckinHandler serves the one-shot photo check-in for clients that
// cannot hold a WebSocket.
type CheckinHandler struct {
	registry   *checkin.Registry
	recognizer recognizer.Recognizer
	evidence   *evidence.Store // nil disables evidence snapshots
	signs      store.SignInWriter
	recTimeout time.Duration
}

// NewCheckinHandler creates a one-shot check-in handler. evStore may be nil.
func NewCheckinHandler(registry *checkin.Registry, rec recognizer.Recognizer, evStore *evidence.Store, signs store.SignInWriter, recTimeout time.Duration) *CheckinHandler {
	return &CheckinHandler{
		registry:   registry,
		recognizer: rec,
		evidence:   evStore,
		signs:      signs,
		recTimeout: recTimeout,
	}
}

// Checkin handles POST /meetings/{meetingID}/checkin with a multipart
// photo, returning the match decision as JSON.
func (h *CheckinHandler) Checkin(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	ctx := r.Context()

	frame, ok := readUploadedFile(w, r)
	if !ok {
		return
	}

	sess, err := h.registry.GetOrCreate(ctx, meetingID)
	if err != nil {
		status, msg := sessionErrorStatus(err)
		respondError(w, status, msg)
		return
	}
	defer h.registry.Release(meetingID)

	decision, err := h.attempt(ctx, sess, frame)
	if err != nil {
		if werr, ok := checkin.IsWindowError(err); ok {
			respondError(w, http.StatusConflict, windowErrorMessage(werr))
			return
		}
		log.Printf("checkin: meeting %s: %v", sanitizeForLog(meetingID), err)
		respondError(w, http.StatusBadGateway, "recognition failed")
		return
	}

	if decision.Outcome == checkin.OutcomeMatched && !decision.AlreadySigned && h.evidence != nil {
		ref, err := h.evidence.Save(meetingID, decision.UserID, frame)
		if err != nil {
			log.Printf("WARNING: evidence save failed for meeting=%s user=%s: %v", meetingID, decision.UserID, err)
		} else if err := h.signs.UpdateSignEvidence(ctx, meetingID, decision.UserID, ref); err != nil {
			log.Printf("WARNING: evidence ref update failed for meeting=%s user=%s: %v", meetingID, decision.UserID, err)
		}
	}

	respondJSON(w, http.StatusOK, decisionToMessage(decision))
}

func (h *CheckinHandler) attempt(ctx context.Context, sess *checkin.Session, frame []byte) (checkin.Decision, error) {
	recCtx, cancel := context.WithTimeout(ctx, h.recTimeout)
	defer cancel()

	faces, err := h.recognizer.Detect(recCtx, frame)
	if err != nil {
		return checkin.Decision{}, err
	}
	if len(faces) == 0 {
		return sess.Attempt(ctx, nil)
	}

	query, err := h.recognizer.Embed(recCtx, frame)
	if err != nil {
		if errors.Is(err, recognizer.ErrNoFace) {
			return sess.Attempt(ctx, nil)
		}
		return checkin.Decision{}, err
	}

	return sess.Attempt(ctx, query)
}

// decisionToMessage renders a decision in the same wire shape the
// WebSocket stream uses.
func decisionToMessage(d checkin.Decision) streamMessage {
	switch d.Outcome {
	case checkin.OutcomeNoFaceDetected:
		return streamMessage{Status: "detect", Message: "no face detected"}
	case checkin.OutcomeNoMatch:
		return streamMessage{
			Status:     "fail",
			Similarity: formatSimilarity(d.Score),
			Message:    "no attendee matched above the threshold",
		}
	default:
		return streamMessage{
			Status:        "success",
			UserID:        d.UserID,
			UserName:      d.UserName,
			DeptName:      d.DeptName,
			Similarity:    formatSimilarity(d.Score),
			SignTime:      d.SignTime.Format(signTimeLayout),
			AlreadySigned: d.AlreadySigned,
		}
	}
}

// readUploadedFile reads the multipart "file" part, writing the error
// response itself when the upload is unusable.
func readUploadedFile(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file upload")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file upload")
		return nil, false
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty file upload")
		return nil, false
	}
	return data, true
}

// sessionErrorStatus maps session construction errors to HTTP responses.
func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, checkin.ErrMeetingNotFound):
		return http.StatusNotFound, "meeting not found"
	case errors.Is(err, checkin.ErrNoAttendees):
		return http.StatusConflict, "meeting has no attendees with registered faces"
	default:
		return http.StatusInternalServerError, "failed to open check-in session"
	}
}
