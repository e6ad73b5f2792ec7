package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Mode selects which conversation flow a session runs.
type Mode string

const (
	ModeTutoring      Mode = "tutoring"
	ModePronunciation Mode = "pronunciation"
)

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// Selection is the language and topic chosen for a session.
type Selection struct {
	Mode     Mode   `json:"mode"`
	Language string `json:"language"`
	Topic    string `json:"topic"`
}

// Session is one browser conversation. The transcript lives only as long
// as the session does.
type Session struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActiveAt time.Time     `json:"last_active_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	Status       SessionStatus `json:"status"`
	Selection    Selection     `json:"selection"`
	Transcript   *Transcript   `json:"-"`
}

// NewSession creates an active session that expires after ttl
func NewSession(selection Selection, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
		Status:       SessionStatusActive,
		Selection:    selection,
		Transcript:   NewTranscript(),
	}
}

// UpdateLastActive records activity on the session
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt) || s.Status != SessionStatusActive
}

// IsIdle reports whether nothing happened on the session for longer than timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	return timeout > 0 && time.Since(s.LastActiveAt) > timeout
}

// Terminate marks the session as terminated
func (s *Session) Terminate() {
	s.Status = SessionStatusTerminated
}

// Expire marks the session as expired
func (s *Session) Expire() {
	s.Status = SessionStatusExpired
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.Selection.Mode != ModeTutoring && s.Selection.Mode != ModePronunciation {
		return errors.New("invalid session mode")
	}
	if s.Status != SessionStatusActive && s.Status != SessionStatusExpired && s.Status != SessionStatusTerminated {
		return errors.New("invalid session status")
	}
	return nil
}
