package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meetsign/meetsign/internal/checkin"
	"github.com/meetsign/meetsign/internal/evidence"
	"github.com/meetsign/meetsign/internal/recognizer"
	"github.com/meetsign/meetsign/internal/store"
)

const signTimeLayout = "15:04:05"

// streamMessage is the outbound JSON frame of the sign-in stream.
type streamMessage struct {
	Status        string `json:"status"` // detect | success | fail | error
	UserID        string `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	DeptName      string `json:"dept_name,omitempty"`
	Similarity    string `json:"similarity,omitempty"`
	SignTime      string `json:"sign_time,omitempty"`
	AlreadySigned bool   `json:"already_signed,omitempty"`
	Message       string `json:"message,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 16,
	WriteBufferSize: 4096,
	// Cross-origin kiosks connect directly; the CORS middleware governs
	// the rest of the API and the stream carries no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SignInHandler runs the WebSocket sign-in stream.
type SignInHandler struct {
	registry   *checkin.Registry
	recognizer recognizer.Recognizer
	evidence   *evidence.Store // nil disables evidence snapshots
	signs      store.SignInWriter

	recTimeout  time.Duration
	pacing      time.Duration
	idleTimeout time.Duration
	maxErrors   int
}

// NewSignInHandler creates the stream handler. evStore may be nil.
func NewSignInHandler(registry *checkin.Registry, rec recognizer.Recognizer, evStore *evidence.Store, signs store.SignInWriter, recTimeout, pacing, idleTimeout time.Duration, maxErrors int) *SignInHandler {
	return &SignInHandler{
		registry:    registry,
		recognizer:  rec,
		evidence:    evStore,
		signs:       signs,
		recTimeout:  recTimeout,
		pacing:      pacing,
		idleTimeout: idleTimeout,
		maxErrors:   maxErrors,
	}
}

// Stream upgrades the request to a WebSocket and runs the check-in loop:
// binary camera frames in, JSON status messages out.
func (h *SignInHandler) Stream(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("signin: upgrade failed for meeting %s: %v", sanitizeForLog(meetingID), err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()[:8]
	ctx := r.Context()

	sess, err := h.registry.GetOrCreate(ctx, meetingID)
	if err != nil {
		h.closeWithError(conn, sessionErrorMessage(err))
		return
	}
	defer h.registry.Release(meetingID)

	// The window may already be decided before the first frame arrives.
	if msg, terminal := windowMessage(sess, time.Now()); terminal {
		h.closeWithError(conn, msg)
		return
	}

	log.Printf("signin: connection %s opened for meeting %s (%d attendees)",
		connID, sanitizeForLog(meetingID), sess.Cache().Len())

	errorStreak := 0
	for {
		conn.SetReadDeadline(nextFrameDeadline(time.Now(), sess.Meeting().SignEnd, h.idleTimeout))
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				// Either the window closed while the client was quiet or
				// the client stopped sending frames. Both end the stream.
				if msg, terminal := windowMessage(sess, time.Now()); terminal {
					h.closeWithError(conn, msg)
				} else {
					h.closeWithError(conn, "no frames received, closing idle connection")
				}
				return
			}
			log.Printf("signin: connection %s closed: %v", connID, err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		decision, err := h.attemptFrame(ctx, sess, frame)
		if err != nil {
			if werr, ok := checkin.IsWindowError(err); ok {
				h.closeWithError(conn, windowErrorMessage(werr))
				return
			}
			if ctx.Err() != nil {
				return
			}

			// Transient recognizer trouble: report and keep going, up to
			// the consecutive-failure cap.
			errorStreak++
			log.Printf("signin: connection %s frame error (%d/%d): %v", connID, errorStreak, h.maxErrors, err)
			if errorStreak >= h.maxErrors {
				h.closeWithError(conn, "recognition service unavailable")
				return
			}
			if werr := conn.WriteJSON(streamMessage{Status: "error", Message: "recognition failed, retrying"}); werr != nil {
				return
			}
			time.Sleep(h.pacing)
			continue
		}
		errorStreak = 0

		if werr := conn.WriteJSON(h.decisionMessage(sess, decision, frame)); werr != nil {
			return
		}
		time.Sleep(h.pacing)
	}
}

// attemptFrame turns one camera frame into a match decision.
func (h *SignInHandler) attemptFrame(ctx context.Context, sess *checkin.Session, frame []byte) (checkin.Decision, error) {
	recCtx, cancel := context.WithTimeout(ctx, h.recTimeout)
	defer cancel()

	faces, err := h.recognizer.Detect(recCtx, frame)
	if err != nil {
		return checkin.Decision{}, fmt.Errorf("detect: %w", err)
	}
	if len(faces) == 0 {
		return sess.Attempt(ctx, nil)
	}

	query, err := h.recognizer.Embed(recCtx, frame)
	if err != nil {
		if errors.Is(err, recognizer.ErrNoFace) {
			return sess.Attempt(ctx, nil)
		}
		return checkin.Decision{}, fmt.Errorf("embed: %w", err)
	}

	return sess.Attempt(ctx, query)
}

// decisionMessage renders a decision as the outbound wire message and,
// on a fresh committed sign-in, stores the evidence frame.
func (h *SignInHandler) decisionMessage(sess *checkin.Session, d checkin.Decision, frame []byte) streamMessage {
	switch d.Outcome {
	case checkin.OutcomeNoFaceDetected:
		return streamMessage{Status: "detect", Message: "no face detected"}
	case checkin.OutcomeNoMatch:
		return streamMessage{
			Status:     "fail",
			Similarity: formatSimilarity(d.Score),
			Message:    "no attendee matched above the threshold",
		}
	}

	if !d.AlreadySigned {
		h.saveEvidence(sess.Meeting().ID, d.UserID, frame)
	}

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

// saveEvidence stores the winning frame in the background. Failures are
// logged and never affect the decision already sent to the client.
func (h *SignInHandler) saveEvidence(meetingID, userID string, frame []byte) {
	if h.evidence == nil {
		return
	}

	snapshot := make([]byte, len(frame))
	copy(snapshot, frame)

	go func() {
		ref, err := h.evidence.Save(meetingID, userID, snapshot)
		if err != nil {
			log.Printf("WARNING: evidence save failed for meeting=%s user=%s: %v", meetingID, userID, err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.signs.UpdateSignEvidence(ctx, meetingID, userID, ref); err != nil {
			log.Printf("WARNING: evidence ref update failed for meeting=%s user=%s: %v", meetingID, userID, err)
		}
	}()
}

// closeWithError sends a terminal error message and closes the socket.
func (h *SignInHandler) closeWithError(conn *websocket.Conn, message string) {
	conn.WriteJSON(streamMessage{Status: "error", Message: message})
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// nextFrameDeadline bounds a single frame receive. The client gets at
// most idle to produce a frame and never past the end of the sign-in
// window, so a quiet connection still observes the window closing.
func nextFrameDeadline(now, signEnd time.Time, idle time.Duration) time.Time {
	d := now.Add(idle)
	if signEnd.Before(d) {
		d = signEnd
	}
	return d
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// windowMessage reports whether the session window makes the connection
// pointless right now, with the message to send if so.
func windowMessage(sess *checkin.Session, at time.Time) (string, bool) {
	switch sess.State(at) {
	case checkin.StateCreated:
		return fmt.Sprintf("sign-in has not started, opens at %s",
			sess.Meeting().SignStart.Format(signTimeLayout)), true
	case checkin.StateClosed, checkin.StateRetired:
		return fmt.Sprintf("sign-in closed at %s",
			sess.Meeting().SignEnd.Format(signTimeLayout)), true
	}
	return "", false
}

func windowErrorMessage(werr *checkin.WindowError) string {
	if werr.State == checkin.StateCreated {
		return fmt.Sprintf("sign-in has not started, opens at %s", werr.Boundary.Format(signTimeLayout))
	}
	return fmt.Sprintf("sign-in closed at %s", werr.Boundary.Format(signTimeLayout))
}

func sessionErrorMessage(err error) string {
	switch {
	case errors.Is(err, checkin.ErrMeetingNotFound):
		return "meeting not found"
	case errors.Is(err, checkin.ErrNoAttendees):
		return "meeting has no attendees with registered faces"
	default:
		return "failed to open check-in session"
	}
}
