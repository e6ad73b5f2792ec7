package entities

import (
	"testing"
	"time"
)

func TestSessionCreation(t *testing.T) {
	sel := Selection{Mode: ModeTutoring, Language: "en-US", Topic: "Business"}
	session := NewSession(sel, time.Hour)

	if session.ID == "" {
		t.Error("Expected session ID to be generated")
	}
	if session.Status != SessionStatusActive {
		t.Errorf("Expected status %s, got %s", SessionStatusActive, session.Status)
	}
	if session.Transcript == nil || session.Transcript.Len() != 0 {
		t.Error("Expected an empty transcript")
	}
	if session.Selection != sel {
		t.Errorf("Expected selection %+v, got %+v", sel, session.Selection)
	}
	if err := session.Validate(); err != nil {
		t.Errorf("Expected valid session, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	session := NewSession(Selection{Mode: ModePronunciation}, -time.Second)
	if !session.IsExpired() {
		t.Error("Expected session with negative ttl to be expired")
	}

	session = NewSession(Selection{Mode: ModePronunciation}, time.Hour)
	session.Terminate()
	if !session.IsExpired() {
		t.Error("Expected terminated session to count as expired")
	}
}

func TestSessionIdle(t *testing.T) {
	session := NewSession(Selection{Mode: ModeTutoring}, time.Hour)
	session.LastActiveAt = time.Now().Add(-time.Hour)

	if !session.IsIdle(30 * time.Minute) {
		t.Error("Expected session to be idle")
	}
	if session.IsIdle(0) {
		t.Error("Expected zero timeout to disable idle detection")
	}

	session.UpdateLastActive()
	if session.IsIdle(30 * time.Minute) {
		t.Error("Expected session to be active after UpdateLastActive")
	}
}

func TestSessionValidate(t *testing.T) {
	session := NewSession(Selection{Mode: "karaoke"}, time.Hour)
	if err := session.Validate(); err == nil {
		t.Error("Expected invalid mode to fail validation")
	}
}
