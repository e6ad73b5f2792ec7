package entities

import (
	"errors"
	"sync"
	"time"
)

// ErrEmptyTranscript is returned when a reply is written before any turn exists.
var ErrEmptyTranscript = errors.New("transcript has no turns")

// Turn is one user utterance paired with the assistant reply. A nil Assistant
// means the reply is still pending.
type Turn struct {
	User      string  `json:"user"`
	Assistant *string `json:"assistant"`
}

// Pending reports whether the turn is still awaiting its reply.
func (t Turn) Pending() bool {
	return t.Assistant == nil
}

// Reply returns the assistant content, or "" while pending.
func (t Turn) Reply() string {
	if t.Assistant == nil {
		return ""
	}
	return *t.Assistant
}

func (t Turn) clone() Turn {
	out := Turn{User: t.User}
	if t.Assistant != nil {
		reply := *t.Assistant
		out.Assistant = &reply
	}
	return out
}

// Transcript is the ordered dialog history of one conversation session.
// Insertion order is display order, and index order is what the composer
// uses to assign roles.
type Transcript struct {
	mu        sync.RWMutex
	turns     []Turn
	updatedAt time.Time
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{
		turns:     make([]Turn, 0),
		updatedAt: time.Now(),
	}
}

// Append adds a new pending turn and returns its index
func (t *Transcript) Append(user string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = append(t.turns, Turn{User: user})
	t.touch()
	return len(t.turns) - 1
}

// Seed replaces the whole history with a single pending turn.
func (t *Transcript) Seed(user string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = []Turn{{User: user}}
	t.touch()
}

// BeginReply marks the last turn as being answered by setting its reply to "".
func (t *Transcript) BeginReply() error {
	return t.SetReply("")
}

// SetReply overwrites the reply of the last turn.
func (t *Transcript) SetReply(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.turns) == 0 {
		return ErrEmptyTranscript
	}
	reply := text
	t.turns[len(t.turns)-1].Assistant = &reply
	t.touch()
	return nil
}

// AppendReply appends a fragment to the reply of the last turn. A pending
// reply is treated as "".
func (t *Transcript) AppendReply(fragment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.turns) == 0 {
		return ErrEmptyTranscript
	}
	last := &t.turns[len(t.turns)-1]
	reply := last.Reply() + fragment
	last.Assistant = &reply
	t.touch()
	return nil
}

// Turns returns a deep copy of the history.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Turn, len(t.turns))
	for i, turn := range t.turns {
		out[i] = turn.clone()
	}
	return out
}

// Last returns a copy of the most recent turn
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1].clone(), true
}

// Len returns the number of turns
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Clear empties the history
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = make([]Turn, 0)
	t.touch()
}

// UpdatedAt returns the time of the last mutation
func (t *Transcript) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}

func (t *Transcript) touch() {
	t.updatedAt = time.Now()
}
