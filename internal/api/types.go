package api

import (
	"time"

	"github.com/satriahrh/kaiwa/domain/entities"
)

// CreateSessionRequest represents the request payload for starting a session
type CreateSessionRequest struct {
	Mode     entities.Mode `json:"mode"`
	Language string        `json:"language,omitempty"`
	Topic    string        `json:"topic,omitempty"`
}

// CreateSessionResponse carries the token the browser presents on /ws
type CreateSessionResponse struct {
	SessionID string             `json:"session_id"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	Selection entities.Selection `json:"selection"`
}

// ModePersonas lists the choices offered for one mode
type ModePersonas struct {
	Languages []string           `json:"languages"`
	Topics    []string           `json:"topics,omitempty"`
	Default   entities.Selection `json:"default"`
}

// PersonasResponse is keyed by mode
type PersonasResponse map[entities.Mode]ModePersonas

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
