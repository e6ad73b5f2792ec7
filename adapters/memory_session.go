package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

// MemorySessionRepository is an in-memory implementation of SessionRepository.
// Sessions are never written anywhere else and disappear on restart.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
}

var _ repositories.SessionRepository = (*MemorySessionRepository)(nil)

// NewMemorySessionRepository creates a new in-memory session repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*entities.Session),
	}
}

// Create implements SessionRepository interface
func (m *MemorySessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Transcript == nil {
		session.Transcript = entities.NewTranscript()
	}

	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return errors.New("session with this id already exists")
	}

	sessionCopy := *session
	m.sessions[session.ID] = &sessionCopy
	return nil
}

// GetByID returns a copy of the session. The copy shares the live transcript.
func (m *MemorySessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, repositories.ErrSessionNotFound
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

// Touch implements SessionRepository interface
func (m *MemorySessionRepository) Touch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return repositories.ErrSessionNotFound
	}
	session.UpdateLastActive()
	return nil
}

// Delete implements SessionRepository interface
func (m *MemorySessionRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return repositories.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// ListInactive implements SessionRepository interface
func (m *MemorySessionRepository) ListInactive(ctx context.Context, idleTimeout time.Duration) ([]*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*entities.Session, 0)
	for _, session := range m.sessions {
		if session.IsExpired() || session.IsIdle(idleTimeout) {
			sessionCopy := *session
			result = append(result, &sessionCopy)
		}
	}
	return result, nil
}

// Count implements SessionRepository interface
func (m *MemorySessionRepository) Count(ctx context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
