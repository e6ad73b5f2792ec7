package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

// SessionManager creates browser sessions and keeps one Conversation per
// live session.
type SessionManager struct {
	repo        repositories.SessionRepository
	orch        *Orchestrator
	ttl         time.Duration
	idleTimeout time.Duration
	logger      *zap.Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewSessionManager creates a session manager
func NewSessionManager(repo repositories.SessionRepository, orch *Orchestrator, ttl, idleTimeout time.Duration, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		repo:          repo,
		orch:          orch,
		ttl:           ttl,
		idleTimeout:   idleTimeout,
		logger:        logger,
		conversations: make(map[string]*Conversation),
	}
}

// Create registers a new session for mode. Empty language or topic fall
// back to the persona defaults.
func (m *SessionManager) Create(ctx context.Context, mode entities.Mode, language, topic string) (*entities.Session, error) {
	if mode != entities.ModeTutoring && mode != entities.ModePronunciation {
		return nil, domain.ConfigurationError("mode", string(mode))
	}

	sel := m.orch.DefaultSelection(mode)
	if language != "" {
		sel.Language = language
	}
	if topic != "" {
		sel.Topic = topic
	}
	if err := m.orch.personas.Validate(sel); err != nil {
		return nil, err
	}

	session := entities.NewSession(sel, m.ttl)
	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	m.mu.Lock()
	m.conversations[session.ID] = m.orch.NewConversation(session, nil)
	m.mu.Unlock()

	m.logger.Info("Session created",
		zap.String("sessionID", session.ID),
		zap.String("mode", string(mode)),
		zap.String("language", sel.Language),
		zap.String("topic", sel.Topic))
	return session, nil
}

// Attach binds pub to the conversation of session id. The returned detach
// func must be called when the client goes away.
func (m *SessionManager) Attach(ctx context.Context, id string, pub Publisher) (*Conversation, func(), error) {
	session, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session.IsExpired() {
		return nil, nil, domain.ErrSessionClosed
	}

	conv, ok := m.conversation(id)
	if !ok {
		return nil, nil, repositories.ErrSessionNotFound
	}
	if err := m.repo.Touch(ctx, id); err != nil {
		return nil, nil, err
	}

	detach := conv.SetPublisher(pub)
	m.logger.Debug("Client attached", zap.String("sessionID", id))
	return conv, detach, nil
}

// Dispatch routes cmd to the conversation of session id
func (m *SessionManager) Dispatch(ctx context.Context, id string, cmd Command) error {
	conv, ok := m.conversation(id)
	if !ok {
		return repositories.ErrSessionNotFound
	}
	if err := m.repo.Touch(ctx, id); err != nil {
		return err
	}
	return conv.Dispatch(cmd)
}

// Close stops the conversation and forgets the session
func (m *SessionManager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	conv, ok := m.conversations[id]
	delete(m.conversations, id)
	m.mu.Unlock()

	if ok {
		conv.Close()
	}
	if err := m.repo.Delete(ctx, id); err != nil && !errors.Is(err, repositories.ErrSessionNotFound) {
		return err
	}
	return nil
}

// ActiveSessions returns the number of live conversations
func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}

// ReapInactive closes sessions that expired or stayed idle too long. A
// session with a pipeline in flight is kept for the next round.
func (m *SessionManager) ReapInactive(ctx context.Context) (int, error) {
	sessions, err := m.repo.ListInactive(ctx, m.idleTimeout)
	if err != nil {
		return 0, fmt.Errorf("failed to list inactive sessions: %w", err)
	}

	reaped := 0
	for _, session := range sessions {
		if conv, ok := m.conversation(session.ID); ok && conv.Busy() {
			continue
		}
		if err := m.Close(ctx, session.ID); err != nil {
			m.logger.Warn("Failed to close session", zap.String("sessionID", session.ID), zap.Error(err))
			continue
		}
		reaped++
	}
	return reaped, nil
}

// Shutdown closes every conversation
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conversations))
	for id := range m.conversations {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil {
			m.logger.Warn("Failed to close session", zap.String("sessionID", id), zap.Error(err))
		}
	}
}

func (m *SessionManager) conversation(id string) (*Conversation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	return conv, ok
}
