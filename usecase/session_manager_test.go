package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/kaiwa/adapters"
	"github.com/satriahrh/kaiwa/adapters/llm"
	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

func newSessionManager(t *testing.T, idleTimeout time.Duration) *SessionManager {
	t.Helper()
	f := newFixture(t, englishTutoring, &llm.MockLLM{Replies: []string{"Hello!"}})
	m := NewSessionManager(adapters.NewMemorySessionRepository(), f.orch, time.Hour, idleTimeout, zaptest.NewLogger(t))
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func TestSessionManagerCreate(t *testing.T) {
	m := newSessionManager(t, time.Hour)
	ctx := context.Background()

	tests := []struct {
		name     string
		mode     entities.Mode
		language string
		topic    string
		want     entities.Selection
		wantErr  error
	}{
		{"tutoring defaults", entities.ModeTutoring, "", "", entities.Selection{Mode: entities.ModeTutoring, Language: "ja-JP"}, nil},
		{"practice defaults", entities.ModePronunciation, "", "", entities.Selection{Mode: entities.ModePronunciation, Language: "en-US", Topic: "Business"}, nil},
		{"practice override", entities.ModePronunciation, "ja-JP", "Hobby", entities.Selection{Mode: entities.ModePronunciation, Language: "ja-JP", Topic: "Hobby"}, nil},
		{"unknown mode", "karaoke", "", "", entities.Selection{}, domain.ErrConfiguration},
		{"unknown language", entities.ModeTutoring, "xx-XX", "", entities.Selection{}, domain.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := m.Create(ctx, tt.mode, tt.language, tt.topic)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if session.Selection != tt.want {
				t.Errorf("selection = %+v, want %+v", session.Selection, tt.want)
			}
		})
	}

	if n := m.ActiveSessions(); n != 3 {
		t.Errorf("ActiveSessions = %d, want 3", n)
	}
}

func TestSessionManagerAttachAndDispatch(t *testing.T) {
	m := newSessionManager(t, time.Hour)
	ctx := context.Background()

	session, err := m.Create(ctx, entities.ModeTutoring, "en-US", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := &recorder{}
	conv, detach, err := m.Attach(ctx, session.ID, rec)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer detach()

	if snap := conv.Snapshot(); snap.SessionID != session.ID || snap.State != StateIdle {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := m.Dispatch(ctx, session.ID, Command{Kind: CommandClear}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.ofKind(UpdateTranscript)) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(rec.ofKind(UpdateTranscript)) == 0 {
		t.Error("attached publisher received no update")
	}

	if err := m.Dispatch(ctx, "missing", Command{Kind: CommandClear}); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Dispatch to unknown session = %v, want ErrSessionNotFound", err)
	}
	if _, _, err := m.Attach(ctx, "missing", rec); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Attach to unknown session = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManagerReapInactive(t *testing.T) {
	m := newSessionManager(t, 10*time.Millisecond)
	ctx := context.Background()

	session, err := m.Create(ctx, entities.ModeTutoring, "en-US", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	reaped, err := m.ReapInactive(ctx)
	if err != nil {
		t.Fatalf("ReapInactive: %v", err)
	}
	if reaped != 1 || m.ActiveSessions() != 0 {
		t.Errorf("reaped = %d, active = %d", reaped, m.ActiveSessions())
	}
	if err := m.Dispatch(ctx, session.ID, Command{Kind: CommandClear}); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Dispatch after reap = %v, want ErrSessionNotFound", err)
	}
}
