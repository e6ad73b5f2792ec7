package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/satriahrh/kaiwa/domain/entities"
)

// ErrSessionNotFound is returned when no session has the requested id
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository keeps live conversation sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	Touch(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// ListInactive returns sessions that are expired or idle for longer than idleTimeout
	ListInactive(ctx context.Context, idleTimeout time.Duration) ([]*entities.Session, error)
	Count(ctx context.Context) int
}
