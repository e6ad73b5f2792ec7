package persona

import (
	"errors"
	"strings"
	"testing"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
)

const englishTutor = "You are an experienced English teacher.\n" +
	"You are teaching English through a dialog with the student.\n" +
	"Your response should be at the same level of fluency as the student.\n" +
	"If the student is a beginner, your response should be simple and short.\n" +
	"If the student is an advanced English speaker, your response may be elaborate and long.\n"

func mustDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return c
}

func TestDefaultCatalogTutoring(t *testing.T) {
	c := mustDefault(t)

	want := []string{"en-US", "en-GB", "sv-SE", "ja-JP"}
	got := c.Languages(entities.ModeTutoring)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Languages(tutoring) = %v, want %v", got, want)
	}

	for _, lang := range []string{"en-US", "en-GB"} {
		prompt, err := c.SystemPrompt(entities.Selection{Mode: entities.ModeTutoring, Language: lang})
		if err != nil {
			t.Fatalf("SystemPrompt(%s): %v", lang, err)
		}
		if prompt != englishTutor {
			t.Errorf("SystemPrompt(%s) = %q, want English tutor prompt", lang, prompt)
		}
	}

	voices := map[string]string{
		"en-US": "en-US-JennyNeural",
		"en-GB": "en-GB-SoniaNeural",
		"sv-SE": "sv-SE-SofieNeural",
		"ja-JP": "ja-JP-NanamiNeural",
	}
	for lang, want := range voices {
		got, err := c.Voice(entities.Selection{Mode: entities.ModeTutoring, Language: lang}, "azure")
		if err != nil || got != want {
			t.Errorf("Voice(%s) = %q, %v; want %q", lang, got, err, want)
		}
	}

	if sel := c.DefaultSelection(entities.ModeTutoring); sel.Language != "ja-JP" {
		t.Errorf("Expected default tutoring language ja-JP, got %s", sel.Language)
	}
}

func TestDefaultCatalogPractice(t *testing.T) {
	c := mustDefault(t)

	if got := c.Languages(entities.ModePronunciation); strings.Join(got, ",") != "en-US,ja-JP" {
		t.Errorf("Languages(pronunciation) = %v", got)
	}
	if got := c.Topics(); strings.Join(got, ",") != "Business,Hobby,Daily life" {
		t.Errorf("Topics() = %v", got)
	}

	kick, err := c.KickStart("en-US", "Hobby")
	if err != nil {
		t.Fatalf("KickStart: %v", err)
	}
	if kick != "Start practicing Hobby related English! Remember placing an example in back quotes" {
		t.Errorf("Unexpected kick start: %q", kick)
	}

	kick, err = c.KickStart("ja-JP", "Daily life")
	if err != nil {
		t.Fatalf("KickStart: %v", err)
	}
	if !strings.HasPrefix(kick, "日常生活に関連した") {
		t.Errorf("Expected localized topic in kick start, got %q", kick)
	}

	prompt, err := c.SystemPrompt(entities.Selection{Mode: entities.ModePronunciation, Language: "en-US", Topic: "Business"})
	if err != nil {
		t.Fatalf("SystemPrompt: %v", err)
	}
	for _, want := range []string{"pronunciation on Business-related English", "lower than 80", "three or more times", "`Good morning How are you?`"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected practice prompt to contain %q", want)
		}
	}

	sel := c.DefaultSelection(entities.ModePronunciation)
	if sel.Language != "en-US" || sel.Topic != "Business" {
		t.Errorf("Unexpected practice default: %+v", sel)
	}
}

func TestCatalogConfigurationErrors(t *testing.T) {
	c := mustDefault(t)

	tests := []struct {
		name string
		run  func() error
	}{
		{"unknown tutoring language", func() error {
			_, err := c.SystemPrompt(entities.Selection{Mode: entities.ModeTutoring, Language: "xx-XX"})
			return err
		}},
		{"practice has no en-GB", func() error {
			_, err := c.SystemPrompt(entities.Selection{Mode: entities.ModePronunciation, Language: "en-GB", Topic: "Business"})
			return err
		}},
		{"unknown topic", func() error {
			_, err := c.KickStart("en-US", "Cooking")
			return err
		}},
		{"unknown mode", func() error {
			return c.Validate(entities.Selection{Mode: "karaoke", Language: "en-US"})
		}},
		{"unknown voice language", func() error {
			_, err := c.Voice(entities.Selection{Mode: entities.ModePronunciation, Language: "sv-SE"}, "azure")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("Expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	doc := `
tutoring:
  languages:
    - language: en-US
      system_prompt: hi
      voice: en-US-JennyNeural
`
	if _, err := LoadFromReader(strings.NewReader(doc)); err == nil {
		t.Fatal("Expected unknown field to be rejected")
	}
}

func TestLoadFromReaderValidation(t *testing.T) {
	doc := `
tutoring:
  default_language: fr-FR
  languages:
    - language: en-US
      system_prompt: hi
    - language: en-US
      system_prompt: ""
practice:
  topics: [Business]
  default_topic: Hobby
  languages:
    - language: en-US
      system_prompt: "{{.Topic}}"
`
	_, err := LoadFromReader(strings.NewReader(doc))
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	for _, want := range []string{
		"tutoring.default_language",
		"is a duplicate of tutoring.languages[0]",
		"tutoring.languages[1].system_prompt is required",
		"practice.default_topic",
		"practice.languages[0].kick_start is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got:\n%v", want, err)
		}
	}
}

func TestLoadFromReaderTemplateError(t *testing.T) {
	doc := `
practice:
  topics: [Business]
  languages:
    - language: en-US
      system_prompt: "{{.Missing}}"
      kick_start: "go"
`
	if _, err := LoadFromReader(strings.NewReader(doc)); err == nil {
		t.Fatal("Expected template execution error for unknown field")
	}
}
