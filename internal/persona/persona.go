// Package persona holds the immutable language and topic keyed prompt and
// voice catalog. A Catalog is built once at startup and passed explicitly
// to the composer and the orchestrator.
package persona

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/template"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultDocument []byte

type document struct {
	Tutoring struct {
		DefaultLanguage string          `yaml:"default_language"`
		Languages       []tutoringEntry `yaml:"languages"`
	} `yaml:"tutoring"`
	Practice struct {
		DefaultLanguage string          `yaml:"default_language"`
		DefaultTopic    string          `yaml:"default_topic"`
		Topics          []string        `yaml:"topics"`
		Languages       []practiceEntry `yaml:"languages"`
	} `yaml:"practice"`
}

type tutoringEntry struct {
	Language     string            `yaml:"language"`
	SystemPrompt string            `yaml:"system_prompt"`
	Voices       map[string]string `yaml:"voices"`
}

type practiceEntry struct {
	Language     string            `yaml:"language"`
	SystemPrompt string            `yaml:"system_prompt"`
	KickStart    string            `yaml:"kick_start"`
	TopicNames   map[string]string `yaml:"topic_names"`
	Voices       map[string]string `yaml:"voices"`
}

type promptData struct {
	Topic string
}

// TopicPrompts is the rendered text for one practice language and topic.
type TopicPrompts struct {
	SystemPrompt string
	KickStart    string
}

type tutorPersona struct {
	systemPrompt string
	voices       map[string]string
}

type practicePersona struct {
	topics map[string]TopicPrompts
	voices map[string]string
}

// Catalog is the rendered persona configuration. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	tutoring          map[string]tutorPersona
	practice          map[string]practicePersona
	tutoringLanguages []string
	practiceLanguages []string
	topics            []string
	defaults          map[entities.Mode]entities.Selection
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return LoadFromReader(bytes.NewReader(defaultDocument))
}

// Load reads a catalog from a YAML file
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persona: open %q: %w", path, err)
	}
	defer f.Close()

	catalog, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("persona: parse %q: %w", path, err)
	}
	return catalog, nil
}

// LoadFromReader decodes, validates and renders a catalog.
func LoadFromReader(r io.Reader) (*Catalog, error) {
	doc := &document{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("persona: decode yaml: %w", err)
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	return render(doc)
}

func validate(doc *document) error {
	var errs []error

	seen := make(map[string]int)
	for i, entry := range doc.Tutoring.Languages {
		prefix := fmt.Sprintf("tutoring.languages[%d]", i)
		if entry.Language == "" {
			errs = append(errs, fmt.Errorf("%s.language is required", prefix))
		} else if prev, ok := seen[entry.Language]; ok {
			errs = append(errs, fmt.Errorf("%s.language %q is a duplicate of tutoring.languages[%d]", prefix, entry.Language, prev))
		} else {
			seen[entry.Language] = i
		}
		if strings.TrimSpace(entry.SystemPrompt) == "" {
			errs = append(errs, fmt.Errorf("%s.system_prompt is required", prefix))
		}
	}
	if d := doc.Tutoring.DefaultLanguage; d != "" {
		if _, ok := seen[d]; !ok {
			errs = append(errs, fmt.Errorf("tutoring.default_language %q is not a configured language", d))
		}
	}

	if len(doc.Practice.Topics) == 0 && len(doc.Practice.Languages) > 0 {
		errs = append(errs, errors.New("practice.topics must list at least one topic"))
	}
	if d := doc.Practice.DefaultTopic; d != "" && !slices.Contains(doc.Practice.Topics, d) {
		errs = append(errs, fmt.Errorf("practice.default_topic %q is not a configured topic", d))
	}

	seen = make(map[string]int)
	for i, entry := range doc.Practice.Languages {
		prefix := fmt.Sprintf("practice.languages[%d]", i)
		if entry.Language == "" {
			errs = append(errs, fmt.Errorf("%s.language is required", prefix))
		} else if prev, ok := seen[entry.Language]; ok {
			errs = append(errs, fmt.Errorf("%s.language %q is a duplicate of practice.languages[%d]", prefix, entry.Language, prev))
		} else {
			seen[entry.Language] = i
		}
		if strings.TrimSpace(entry.SystemPrompt) == "" {
			errs = append(errs, fmt.Errorf("%s.system_prompt is required", prefix))
		}
		if strings.TrimSpace(entry.KickStart) == "" {
			errs = append(errs, fmt.Errorf("%s.kick_start is required", prefix))
		}
		for topic := range entry.TopicNames {
			if !slices.Contains(doc.Practice.Topics, topic) {
				errs = append(errs, fmt.Errorf("%s.topic_names has unknown topic %q", prefix, topic))
			}
		}
	}
	if d := doc.Practice.DefaultLanguage; d != "" {
		if _, ok := seen[d]; !ok {
			errs = append(errs, fmt.Errorf("practice.default_language %q is not a configured language", d))
		}
	}

	return errors.Join(errs...)
}

func render(doc *document) (*Catalog, error) {
	c := &Catalog{
		tutoring: make(map[string]tutorPersona, len(doc.Tutoring.Languages)),
		practice: make(map[string]practicePersona, len(doc.Practice.Languages)),
		topics:   slices.Clone(doc.Practice.Topics),
		defaults: make(map[entities.Mode]entities.Selection, 2),
	}

	for _, entry := range doc.Tutoring.Languages {
		c.tutoring[entry.Language] = tutorPersona{
			systemPrompt: entry.SystemPrompt,
			voices:       cloneVoices(entry.Voices),
		}
		c.tutoringLanguages = append(c.tutoringLanguages, entry.Language)
	}

	var errs []error
	for _, entry := range doc.Practice.Languages {
		systemTmpl, err := template.New(entry.Language + "/system_prompt").Parse(entry.SystemPrompt)
		if err != nil {
			errs = append(errs, fmt.Errorf("practice %s system_prompt: %w", entry.Language, err))
			continue
		}
		kickTmpl, err := template.New(entry.Language + "/kick_start").Parse(entry.KickStart)
		if err != nil {
			errs = append(errs, fmt.Errorf("practice %s kick_start: %w", entry.Language, err))
			continue
		}

		p := practicePersona{
			topics: make(map[string]TopicPrompts, len(doc.Practice.Topics)),
			voices: cloneVoices(entry.Voices),
		}
		for _, topic := range doc.Practice.Topics {
			data := promptData{Topic: topic}
			if name, ok := entry.TopicNames[topic]; ok {
				data.Topic = name
			}

			var system, kick strings.Builder
			if err := systemTmpl.Execute(&system, data); err != nil {
				errs = append(errs, fmt.Errorf("practice %s/%s system_prompt: %w", entry.Language, topic, err))
				continue
			}
			if err := kickTmpl.Execute(&kick, data); err != nil {
				errs = append(errs, fmt.Errorf("practice %s/%s kick_start: %w", entry.Language, topic, err))
				continue
			}
			p.topics[topic] = TopicPrompts{SystemPrompt: system.String(), KickStart: kick.String()}
		}
		c.practice[entry.Language] = p
		c.practiceLanguages = append(c.practiceLanguages, entry.Language)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c.defaults[entities.ModeTutoring] = entities.Selection{
		Mode:     entities.ModeTutoring,
		Language: firstNonEmpty(doc.Tutoring.DefaultLanguage, first(c.tutoringLanguages)),
	}
	c.defaults[entities.ModePronunciation] = entities.Selection{
		Mode:     entities.ModePronunciation,
		Language: firstNonEmpty(doc.Practice.DefaultLanguage, first(c.practiceLanguages)),
		Topic:    firstNonEmpty(doc.Practice.DefaultTopic, first(c.topics)),
	}
	return c, nil
}

// SystemPrompt resolves the system message for a selection. Tutoring mode
// ignores the topic.
func (c *Catalog) SystemPrompt(sel entities.Selection) (string, error) {
	switch sel.Mode {
	case entities.ModeTutoring:
		p, ok := c.tutoring[sel.Language]
		if !ok {
			return "", domain.ConfigurationError("language", sel.Language)
		}
		return p.systemPrompt, nil
	case entities.ModePronunciation:
		prompts, err := c.topicPrompts(sel.Language, sel.Topic)
		if err != nil {
			return "", err
		}
		return prompts.SystemPrompt, nil
	}
	return "", domain.ConfigurationError("mode", string(sel.Mode))
}

// KickStart returns the fixed instruction that opens a practice session.
func (c *Catalog) KickStart(language, topic string) (string, error) {
	prompts, err := c.topicPrompts(language, topic)
	if err != nil {
		return "", err
	}
	return prompts.KickStart, nil
}

func (c *Catalog) topicPrompts(language, topic string) (TopicPrompts, error) {
	p, ok := c.practice[language]
	if !ok {
		return TopicPrompts{}, domain.ConfigurationError("language", language)
	}
	prompts, ok := p.topics[topic]
	if !ok {
		return TopicPrompts{}, domain.ConfigurationError("topic", topic)
	}
	return prompts, nil
}

// Voice returns the voice the given synthesis provider should use for a
// selection. An empty result means the provider's own default voice.
func (c *Catalog) Voice(sel entities.Selection, provider string) (string, error) {
	var voices map[string]string
	switch sel.Mode {
	case entities.ModeTutoring:
		p, ok := c.tutoring[sel.Language]
		if !ok {
			return "", domain.ConfigurationError("language", sel.Language)
		}
		voices = p.voices
	case entities.ModePronunciation:
		p, ok := c.practice[sel.Language]
		if !ok {
			return "", domain.ConfigurationError("language", sel.Language)
		}
		voices = p.voices
	default:
		return "", domain.ConfigurationError("mode", string(sel.Mode))
	}
	return voices[provider], nil
}

// Validate checks that a selection resolves to a persona.
func (c *Catalog) Validate(sel entities.Selection) error {
	_, err := c.SystemPrompt(sel)
	return err
}

// Languages lists the languages supported by a mode in configured order.
func (c *Catalog) Languages(mode entities.Mode) []string {
	switch mode {
	case entities.ModeTutoring:
		return slices.Clone(c.tutoringLanguages)
	case entities.ModePronunciation:
		return slices.Clone(c.practiceLanguages)
	}
	return nil
}

// Topics lists the practice topics in configured order.
func (c *Catalog) Topics() []string {
	return slices.Clone(c.topics)
}

// DefaultSelection returns the preselected language and topic for a mode.
func (c *Catalog) DefaultSelection(mode entities.Mode) entities.Selection {
	return c.defaults[mode]
}

func cloneVoices(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
