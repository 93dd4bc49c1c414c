package store

import (
	"time"
)

// Meeting holds the metadata the check-in service needs about a meeting.
type Meeting struct {
	ID        string
	Name      string
	SignStart time.Time
	SignEnd   time.Time
}

// AttendeeTemplate is an attendee's stored reference embedding, scoped to
// the meeting it was loaded for. Immutable once loaded into a session.
type AttendeeTemplate struct {
	UserID    string
	UserName  string
	DeptName  string
	Embedding []float32
}

// User is the subset of user data the face endpoints need.
type User struct {
	ID       string
	Name     string
	DeptName string
}

// SignInRow is the durable record of a committed sign-in.
type SignInRow struct {
	MeetingID   string
	UserID      string
	Similarity  float64
	SignTime    time.Time
	EvidenceRef string
}
