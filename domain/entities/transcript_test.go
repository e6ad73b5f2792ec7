package entities

import (
	"errors"
	"testing"
)

func TestTranscriptAppendAndReply(t *testing.T) {
	tr := NewTranscript()

	if idx := tr.Append("Hello"); idx != 0 {
		t.Errorf("Expected index 0, got %d", idx)
	}

	last, ok := tr.Last()
	if !ok {
		t.Fatal("Expected a last turn")
	}
	if !last.Pending() {
		t.Error("Expected new turn to be pending")
	}

	if err := tr.BeginReply(); err != nil {
		t.Fatalf("BeginReply: %v", err)
	}
	last, _ = tr.Last()
	if last.Pending() || last.Reply() != "" {
		t.Errorf("Expected started empty reply, got pending=%v reply=%q", last.Pending(), last.Reply())
	}

	for _, frag := range []string{"Hi", " there", "!"} {
		if err := tr.AppendReply(frag); err != nil {
			t.Fatalf("AppendReply: %v", err)
		}
	}
	last, _ = tr.Last()
	if last.Reply() != "Hi there!" {
		t.Errorf("Expected reply %q, got %q", "Hi there!", last.Reply())
	}
}

func TestTranscriptReplyOnEmpty(t *testing.T) {
	tr := NewTranscript()

	if err := tr.SetReply("x"); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("Expected ErrEmptyTranscript, got %v", err)
	}
	if err := tr.AppendReply("x"); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("Expected ErrEmptyTranscript, got %v", err)
	}
	if _, ok := tr.Last(); ok {
		t.Error("Expected no last turn on empty transcript")
	}
}

func TestTranscriptTurnsIsDeepCopy(t *testing.T) {
	tr := NewTranscript()
	tr.Append("a")
	_ = tr.SetReply("b")

	turns := tr.Turns()
	*turns[0].Assistant = "mutated"
	turns[0].User = "mutated"

	last, _ := tr.Last()
	if last.User != "a" || last.Reply() != "b" {
		t.Errorf("Snapshot mutation leaked into transcript: %+v", last)
	}
}

func TestTranscriptSeedAndClear(t *testing.T) {
	tr := NewTranscript()
	tr.Append("one")
	tr.Append("two")

	tr.Seed("first")
	if tr.Len() != 1 {
		t.Fatalf("Expected 1 turn after seed, got %d", tr.Len())
	}
	last, _ := tr.Last()
	if last.User != "first" || !last.Pending() {
		t.Errorf("Unexpected seeded turn: %+v", last)
	}

	before := tr.UpdatedAt()
	tr.Clear()
	if tr.Len() != 0 {
		t.Errorf("Expected empty transcript, got %d turns", tr.Len())
	}
	if tr.UpdatedAt().Before(before) {
		t.Error("Expected UpdatedAt to move forward on clear")
	}
}
