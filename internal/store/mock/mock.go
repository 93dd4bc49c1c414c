// Package mock provides in-memory implementations of the store
// interfaces for testing.
package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/meetsign/meetsign/internal/store"
)

// MockStore is an in-memory implementation of store.MeetingStore.
type MockStore struct {
	mu        sync.RWMutex
	meetings  map[string]store.Meeting
	templates map[string][]store.AttendeeTemplate // keyed by meeting ID
	users     map[string]store.User               // keyed by user ID
	signIns   map[string]store.SignInRow          // keyed by meetingID+"/"+userID
	userFaces map[string][][]float32              // registered templates keyed by user ID

	// Error injection
	GetMeetingError           error
	GetAttendeeTemplatesError error
	SaveSignInError           error
	UpdateSignEvidenceError   error
	SaveTemplateError         error
	DeleteTemplatesError      error
	FindUserByNameError       error

	// Call counters for async write and single-build assertions
	SaveSignInCalls int
	GetMeetingCalls int32
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		meetings:  make(map[string]store.Meeting),
		templates: make(map[string][]store.AttendeeTemplate),
		users:     make(map[string]store.User),
		signIns:   make(map[string]store.SignInRow),
		userFaces: make(map[string][][]float32),
	}
}

// AddMeeting adds a meeting to the mock store.
func (m *MockStore) AddMeeting(meeting store.Meeting) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meetings[meeting.ID] = meeting
}

// AddTemplate adds an attendee template to a meeting's roster.
func (m *MockStore) AddTemplate(meetingID string, tpl store.AttendeeTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[meetingID] = append(m.templates[meetingID], tpl)
}

// AddUser adds a user record.
func (m *MockStore) AddUser(u store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// GetMeeting retrieves meeting metadata.
func (m *MockStore) GetMeeting(ctx context.Context, meetingID string) (*store.Meeting, error) {
	atomic.AddInt32(&m.GetMeetingCalls, 1)
	if m.GetMeetingError != nil {
		return nil, m.GetMeetingError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	meeting, ok := m.meetings[meetingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &meeting, nil
}

// GetAttendeeTemplates returns the meeting roster templates.
func (m *MockStore) GetAttendeeTemplates(ctx context.Context, meetingID string) ([]store.AttendeeTemplate, error) {
	if m.GetAttendeeTemplatesError != nil {
		return nil, m.GetAttendeeTemplatesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.AttendeeTemplate, len(m.templates[meetingID]))
	copy(out, m.templates[meetingID])
	return out, nil
}

// SaveSignIn upserts a sign-in record.
func (m *MockStore) SaveSignIn(ctx context.Context, row store.SignInRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveSignInCalls++
	if m.SaveSignInError != nil {
		return m.SaveSignInError
	}
	key := row.MeetingID + "/" + row.UserID
	if _, exists := m.signIns[key]; exists {
		return nil
	}
	m.signIns[key] = row
	return nil
}

// UpdateSignEvidence attaches an evidence reference to a sign-in record.
func (m *MockStore) UpdateSignEvidence(ctx context.Context, meetingID, userID, evidenceRef string) error {
	if m.UpdateSignEvidenceError != nil {
		return m.UpdateSignEvidenceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := meetingID + "/" + userID
	row, ok := m.signIns[key]
	if !ok {
		return store.ErrNotFound
	}
	row.EvidenceRef = evidenceRef
	m.signIns[key] = row
	return nil
}

// SaveTemplate stores a face embedding for a user.
func (m *MockStore) SaveTemplate(ctx context.Context, userID, userName string, emb []float32) error {
	if m.SaveTemplateError != nil {
		return m.SaveTemplateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]float32, len(emb))
	copy(cp, emb)
	m.userFaces[userID] = append(m.userFaces[userID], cp)
	if _, ok := m.users[userID]; !ok {
		m.users[userID] = store.User{ID: userID, Name: userName}
	}
	return nil
}

// DeleteTemplates removes all templates for a user.
func (m *MockStore) DeleteTemplates(ctx context.Context, userID string) (int64, error) {
	if m.DeleteTemplatesError != nil {
		return 0, m.DeleteTemplatesError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.userFaces[userID]))
	delete(m.userFaces, userID)
	return n, nil
}

// FindUserByName looks a user up by normalized display name.
func (m *MockStore) FindUserByName(ctx context.Context, name string) (*store.User, error) {
	if m.FindUserByNameError != nil {
		return nil, m.FindUserByNameError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := store.NormalizeName(name)
	for _, u := range m.users {
		if store.NormalizeName(u.Name) == want {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

// GetSignIn returns the stored sign-in record, if any.
func (m *MockStore) GetSignIn(meetingID, userID string) (store.SignInRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.signIns[meetingID+"/"+userID]
	return row, ok
}

// TemplateCount returns how many templates a user has registered.
func (m *MockStore) TemplateCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.userFaces[userID])
}
