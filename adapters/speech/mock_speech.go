// Package speech provides offline speech adapters for development and tests.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

// MockSpeechToText is a placeholder implementation for speech recognition.
// Text, when set, is returned for every capture; otherwise the reply depends
// on the capture size.
type MockSpeechToText struct {
	mu     sync.Mutex
	logger *zap.Logger

	Text  string
	Err   error
	Calls []repositories.AudioConfig
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio implements SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))

	s.Calls = append(s.Calls, config)
	if s.Err != nil {
		return "", s.Err
	}
	if s.Text != "" {
		return s.Text, nil
	}

	switch {
	case len(audioData) > 10000:
		return "Hello, how are you? I want to tell you about my day.", nil
	case len(audioData) > 5000:
		return "Thank you for listening.", nil
	case len(audioData) > 1000:
		return "Hello!", nil
	default:
		return "Hi", nil
	}
}

// SynthesisCall records one SynthesizeAudio invocation
type SynthesisCall struct {
	Text  string
	Voice repositories.VoiceConfig
}

// MockTextToSpeech returns a short fake MP3 frame sequence
type MockTextToSpeech struct {
	mu     sync.Mutex
	logger *zap.Logger

	Err   error
	Calls []SynthesisCall
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// SynthesizeAudio implements TextToSpeech
func (t *MockTextToSpeech) SynthesizeAudio(ctx context.Context, text string, voice repositories.VoiceConfig) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logger.Info("Processing text-to-speech",
		zap.Int("textLength", len(text)),
		zap.String("voice", voice.Voice))

	t.Calls = append(t.Calls, SynthesisCall{Text: text, Voice: voice})
	if t.Err != nil {
		return nil, t.Err
	}

	// Simulate audio size from the text length
	mockAudio := make([]byte, 3+len(text)*10)
	copy(mockAudio, "ID3")
	for i := 3; i < len(mockAudio); i++ {
		mockAudio[i] = byte(i % 256)
	}
	return mockAudio, nil
}

// AssessmentCall records one AssessPronunciation invocation
type AssessmentCall struct {
	ReferenceText string
	Config        repositories.AudioConfig
}

// MockPronunciationAssessor grades every word of the reference text. Scores
// are consumed per word in order and the last one repeats; with no scores a
// word scores by its length so results are stable.
type MockPronunciationAssessor struct {
	mu     sync.Mutex
	logger *zap.Logger

	Scores []float64
	Err    error
	Calls  []AssessmentCall
	next   int
}

var _ repositories.PronunciationAssessor = (*MockPronunciationAssessor)(nil)

// NewMockPronunciationAssessor creates a new mock assessor
func NewMockPronunciationAssessor(logger *zap.Logger) *MockPronunciationAssessor {
	return &MockPronunciationAssessor{logger: logger}
}

type mockWord struct {
	Word                    string `json:"Word"`
	PronunciationAssessment struct {
		AccuracyScore json.Number `json:"AccuracyScore"`
	} `json:"PronunciationAssessment"`
}

// AssessPronunciation implements PronunciationAssessor
func (a *MockPronunciationAssessor) AssessPronunciation(ctx context.Context, audioData []byte, referenceText string, config repositories.AudioConfig) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("Assessing pronunciation",
		zap.String("referenceText", referenceText),
		zap.Int("audioSize", len(audioData)))

	a.Calls = append(a.Calls, AssessmentCall{ReferenceText: referenceText, Config: config})
	if a.Err != nil {
		return nil, a.Err
	}

	fields := strings.Fields(referenceText)
	words := make([]mockWord, len(fields))
	for i, field := range fields {
		words[i].Word = strings.ToLower(strings.Trim(field, ".,!?;:\"'"))
		words[i].PronunciationAssessment.AccuracyScore = json.Number(entities.FormatScore(a.score(field)))
	}

	result := map[string]any{
		"RecognitionStatus": "Success",
		"DisplayText":       referenceText,
		"NBest":             []map[string]any{{"Display": referenceText, "Words": words}},
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assessment: %w", err)
	}
	return raw, nil
}

func (a *MockPronunciationAssessor) score(word string) float64 {
	if len(a.Scores) == 0 {
		return float64(60 + (len(word)*13)%41)
	}
	idx := a.next
	if idx >= len(a.Scores) {
		idx = len(a.Scores) - 1
	} else {
		a.next++
	}
	return a.Scores[idx]
}
