package repositories

import "context"

// LargeLanguageModel abstracts any chat completion provider
type LargeLanguageModel interface {
	// Complete returns the whole reply in one call
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Stream returns the reply as an ordered sequence of text fragments
	Stream(ctx context.Context, req CompletionRequest) (CompletionStream, error)
}

// CompletionRequest is an ordered role-tagged message list plus sampling settings.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// CompletionStream yields reply fragments in order. Fragments may be empty.
// Close must be called once the caller is done reading.
type CompletionStream interface {
	Next() bool
	Fragment() string
	Err() error
	Close() error
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	SystemRole    Role = "system"
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)
