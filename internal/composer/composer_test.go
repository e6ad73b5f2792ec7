package composer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/markup"
	"github.com/satriahrh/kaiwa/internal/persona"
)

func newComposer(t *testing.T) (*Composer, string) {
	t.Helper()
	catalog, err := persona.Default()
	if err != nil {
		t.Fatalf("persona.Default: %v", err)
	}
	prompt, err := catalog.SystemPrompt(entities.Selection{Mode: entities.ModeTutoring, Language: "en-US"})
	if err != nil {
		t.Fatalf("SystemPrompt: %v", err)
	}
	return New(catalog), prompt
}

func strPtr(s string) *string { return &s }

func TestComposePendingTurnWithAudio(t *testing.T) {
	c, prompt := newComposer(t)

	turns := []entities.Turn{{User: "Hello" + markup.AudioPlayer([]byte("wav"))}}
	got, err := c.Compose(turns, entities.Selection{Mode: entities.ModeTutoring, Language: "en-US"})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	want := []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: prompt},
		{Role: repositories.UserRole, Content: "Hello"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Compose() = %+v, want %+v", got, want)
	}
}

func TestComposeRolesAndOrder(t *testing.T) {
	c, _ := newComposer(t)
	sel := entities.Selection{Mode: entities.ModeTutoring, Language: "en-US"}

	turns := []entities.Turn{
		{User: "one", Assistant: strPtr("reply one\n\n" + markup.AudioPlayer([]byte("x")))},
		{User: "two", Assistant: strPtr("")},
		{User: "three", Assistant: strPtr("reply three")},
		{User: "four"},
	}

	got, err := c.Compose(turns, sel)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	wantRoles := []repositories.Role{
		repositories.SystemRole,
		repositories.UserRole, repositories.AssistantRole,
		repositories.UserRole,
		repositories.UserRole, repositories.AssistantRole,
		repositories.UserRole,
	}
	if len(got) != len(wantRoles) {
		t.Fatalf("Expected %d messages, got %d", len(wantRoles), len(got))
	}
	for i, role := range wantRoles {
		if got[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, got[i].Role, role)
		}
	}
	if got[2].Content != "reply one\n\n" {
		t.Errorf("Expected stripped assistant content, got %q", got[2].Content)
	}

	users := 0
	for _, m := range got {
		if m.Role == repositories.SystemRole && m != got[0] {
			t.Error("Expected exactly one system message at index 0")
		}
		if m.Role == repositories.UserRole {
			users++
		}
	}
	if users != len(turns) {
		t.Errorf("Expected %d user messages, got %d", len(turns), users)
	}
}

func TestComposeDeterministicAndPrefixStable(t *testing.T) {
	c, _ := newComposer(t)
	sel := entities.Selection{Mode: entities.ModeTutoring, Language: "sv-SE"}

	tr := entities.NewTranscript()
	tr.Append("Hej")
	_ = tr.SetReply("Hej hej")

	before, err := c.Compose(tr.Turns(), sel)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	again, _ := c.Compose(tr.Turns(), sel)
	if !reflect.DeepEqual(before, again) {
		t.Error("Compose is not deterministic")
	}

	tr.Append("Hur mår du?")
	_ = tr.SetReply("Bra, tack.")
	after, err := c.Compose(tr.Turns(), sel)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !reflect.DeepEqual(after[:len(before)], before) {
		t.Error("Appending a turn changed earlier messages")
	}
}

func TestComposePracticePromptByTopic(t *testing.T) {
	c, _ := newComposer(t)

	got, err := c.Compose(nil, entities.Selection{Mode: entities.ModePronunciation, Language: "ja-JP", Topic: "Hobby"})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(got) != 1 || got[0].Role != repositories.SystemRole {
		t.Fatalf("Expected only the system message, got %+v", got)
	}
}

func TestComposeUnknownLanguage(t *testing.T) {
	c, _ := newComposer(t)

	_, err := c.Compose(nil, entities.Selection{Mode: entities.ModeTutoring, Language: "xx-XX"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}
}
