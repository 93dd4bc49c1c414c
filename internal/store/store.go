// Package store defines the persistence interfaces the check-in service
// consumes, with a PostgreSQL implementation in the postgres sub-package
// and in-memory doubles in the mock sub-package.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a meeting or user does not exist.
var ErrNotFound = errors.New("not found")

// MeetingReader provides read access to meetings and their rosters.
type MeetingReader interface {
	// GetMeeting retrieves meeting metadata, ErrNotFound when absent.
	GetMeeting(ctx context.Context, meetingID string) (*Meeting, error)
	// GetAttendeeTemplates returns the templates of all attendees of the
	// meeting who have a registered face embedding. An empty slice is not
	// an error; callers decide whether that is acceptable.
	GetAttendeeTemplates(ctx context.Context, meetingID string) ([]AttendeeTemplate, error)
}

// SignInWriter persists committed sign-in decisions.
type SignInWriter interface {
	// SaveSignIn upserts the sign-in record keyed by (meeting, user).
	// Re-saving an existing record is a no-op.
	SaveSignIn(ctx context.Context, row SignInRow) error
	// UpdateSignEvidence attaches an evidence image reference to an
	// existing sign-in record.
	UpdateSignEvidence(ctx context.Context, meetingID, userID, evidenceRef string) error
}

// TemplateWriter manages registered face templates.
type TemplateWriter interface {
	// SaveTemplate stores a face embedding for a user. Multiple templates
	// per user are allowed (different angles).
	SaveTemplate(ctx context.Context, userID, userName string, embedding []float32) error
	// DeleteTemplates removes all templates for a user and returns how
	// many were removed.
	DeleteTemplates(ctx context.Context, userID string) (int64, error)
	// FindUserByName looks a user up by display name. Comparison is
	// normalized (lowercase, no diacritics, dashes as spaces), so
	// "jan-novak" finds "Jan Novák". ErrNotFound when absent.
	FindUserByName(ctx context.Context, name string) (*User, error)
}

// MeetingStore is the full persistence surface of the check-in service.
type MeetingStore interface {
	MeetingReader
	SignInWriter
	TemplateWriter
}
