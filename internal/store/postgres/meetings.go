package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/meetsign/meetsign/internal/store"
)

// MeetingRepository provides PostgreSQL-backed meeting, roster and
// sign-in storage. It implements store.MeetingStore.
type MeetingRepository struct {
	pool *Pool
}

// NewMeetingRepository creates a new PostgreSQL meeting repository.
func NewMeetingRepository(pool *Pool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

// GetMeeting retrieves meeting metadata by ID.
func (r *MeetingRepository) GetMeeting(ctx context.Context, meetingID string) (*store.Meeting, error) {
	var m store.Meeting
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, sign_start, sign_end
		FROM meetings
		WHERE id = $1
	`, meetingID).Scan(&m.ID, &m.Name, &m.SignStart, &m.SignEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query meeting: %w", err)
	}
	return &m, nil
}

// GetAttendeeTemplates returns one reference embedding per attendee of
// the meeting. When a user has several registered faces the most recently
// registered one wins.
func (r *MeetingRepository) GetAttendeeTemplates(ctx context.Context, meetingID string) ([]store.AttendeeTemplate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (u.id) u.id, u.name, u.dept_name, uf.embedding
		FROM meeting_attendees ma
		JOIN users u ON u.id = ma.user_id
		JOIN user_faces uf ON uf.user_id = u.id
		WHERE ma.meeting_id = $1
		ORDER BY u.id, uf.id DESC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("query attendee templates: %w", err)
	}
	defer rows.Close()

	var templates []store.AttendeeTemplate
	for rows.Next() {
		var t store.AttendeeTemplate
		var vec pgvector.Vector
		if err := rows.Scan(&t.UserID, &t.UserName, &t.DeptName, &vec); err != nil {
			return nil, fmt.Errorf("scan attendee template: %w", err)
		}
		t.Embedding = vec.Slice()
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendee templates: %w", err)
	}
	return templates, nil
}

// SaveSignIn records a sign-in. The first write for a (meeting, user)
// pair wins, later writes are no-ops.
func (r *MeetingRepository) SaveSignIn(ctx context.Context, row store.SignInRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sign_ins (meeting_id, user_id, similarity, sign_time, evidence_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (meeting_id, user_id) DO NOTHING
	`, row.MeetingID, row.UserID, row.Similarity, row.SignTime, row.EvidenceRef)
	if err != nil {
		return fmt.Errorf("save sign-in: %w", err)
	}
	return nil
}

// UpdateSignEvidence attaches an evidence reference to an existing
// sign-in record.
func (r *MeetingRepository) UpdateSignEvidence(ctx context.Context, meetingID, userID, evidenceRef string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sign_ins SET evidence_ref = $3
		WHERE meeting_id = $1 AND user_id = $2
	`, meetingID, userID, evidenceRef)
	if err != nil {
		return fmt.Errorf("update sign-in evidence: %w", err)
	}
	return nil
}

// SaveTemplate stores a face embedding for a user, creating the user row
// when it does not exist yet.
func (r *MeetingRepository) SaveTemplate(ctx context.Context, userID, userName string, embedding []float32) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, userID, userName)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO user_faces (user_id, embedding) VALUES ($1, $2)
	`, userID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("insert face template: %w", err)
	}
	return nil
}

// DeleteTemplates removes all face templates of a user.
func (r *MeetingRepository) DeleteTemplates(ctx context.Context, userID string) (int64, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM user_faces WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete face templates: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted templates: %w", err)
	}
	return n, nil
}

// FindUserByName looks a user up by display name. Comparison is
// normalized on both sides so "jan-novak" matches "Jan Novák".
func (r *MeetingRepository) FindUserByName(ctx context.Context, name string) (*store.User, error) {
	normalized := store.NormalizeName(name)

	var u store.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, dept_name
		FROM users
		WHERE LOWER(REPLACE(unaccent(name), '-', ' ')) = $1
		ORDER BY id
		LIMIT 1
	`, normalized).Scan(&u.ID, &u.Name, &u.DeptName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by name: %w", err)
	}
	return &u, nil
}

// AddAttendee enrolls a user on a meeting roster.
func (r *MeetingRepository) AddAttendee(ctx context.Context, meetingID, userID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO meeting_attendees (meeting_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, meetingID, userID)
	if err != nil {
		return fmt.Errorf("add attendee: %w", err)
	}
	return nil
}
