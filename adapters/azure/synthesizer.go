package azure

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

const (
	// mp3 keeps the data:audio/mpeg players truthful.
	outputFormat    = "audio-24khz-48kbitrate-mono-mp3"
	defaultVoice    = "en-US-JennyNeural"
	defaultLanguage = "en-US"
)

// Synthesizer implements TextToSpeech with SSML requests
type Synthesizer struct {
	client *Client
}

var _ repositories.TextToSpeech = (*Synthesizer)(nil)

// NewSynthesizer creates a synthesizer on top of a shared client
func NewSynthesizer(client *Client) *Synthesizer {
	return &Synthesizer{client: client}
}

// SynthesizeAudio implements TextToSpeech
func (s *Synthesizer) SynthesizeAudio(ctx context.Context, text string, voice repositories.VoiceConfig) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	ssml, err := buildSSML(text, voice)
	if err != nil {
		return nil, err
	}

	s.client.logger.Info("Synthesizing speech",
		zap.String("voice", voice.Voice),
		zap.String("language", voice.Language),
		zap.Int("textLength", len(text)))

	status, body, err := s.client.post(ctx, s.client.synthesisURL, []byte(ssml), map[string]string{
		"Content-Type":             "application/ssml+xml",
		"X-Microsoft-OutputFormat": outputFormat,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("synthesis interrupted: %w", ctx.Err())
		}
		return nil, &domain.CancellationError{Stage: domain.StageSynthesis, Reason: domain.CancellationReasonError, Details: err.Error()}
	}
	if status != http.StatusOK {
		return nil, &domain.CancellationError{
			Stage:   domain.StageSynthesis,
			Reason:  domain.CancellationReasonError,
			Details: fmt.Sprintf("status %d: %s", status, string(body)),
		}
	}
	if len(body) == 0 {
		return nil, &domain.CancellationError{Stage: domain.StageSynthesis, Reason: domain.CancellationReasonEndOfStream, Details: "empty audio"}
	}
	return body, nil
}

func buildSSML(text string, voice repositories.VoiceConfig) (string, error) {
	name := voice.Voice
	if name == "" {
		name = defaultVoice
	}
	lang := voice.Language
	if lang == "" {
		lang = defaultLanguage
	}

	var escaped strings.Builder
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return "", fmt.Errorf("failed to escape text: %w", err)
	}

	var b strings.Builder
	b.WriteString(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="`)
	xml.EscapeText(&b, []byte(lang))
	b.WriteString(`"><voice name="`)
	xml.EscapeText(&b, []byte(name))
	b.WriteString(`">`)
	b.WriteString(escaped.String())
	b.WriteString(`</voice></speak>`)
	return b.String(), nil
}
