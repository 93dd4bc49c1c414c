package checkin

import (
	"errors"
	"fmt"
	"time"
)

// ErrMeetingNotFound is returned when the requested meeting does not exist.
var ErrMeetingNotFound = errors.New("meeting not found")

// ErrNoAttendees is returned when a meeting has no attendees with
// registered face templates, so no session can be built for it.
var ErrNoAttendees = errors.New("meeting has no attendees with face templates")

// WindowError reports an attempt outside the meeting's sign-in window.
// It is terminal for the connection that receives it.
type WindowError struct {
	State    State     // StateCreated (not yet open) or StateClosed
	Boundary time.Time // opening time when not started, closing time when closed
}

func (e *WindowError) Error() string {
	if e.State == StateCreated {
		return fmt.Sprintf("sign-in window not started, opens at %s", e.Boundary.Format("2006-01-02 15:04"))
	}
	return fmt.Sprintf("sign-in window closed at %s", e.Boundary.Format("2006-01-02 15:04"))
}

// IsWindowError reports whether err is a WindowError and returns it.
func IsWindowError(err error) (*WindowError, bool) {
	var we *WindowError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
