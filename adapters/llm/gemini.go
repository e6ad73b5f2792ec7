package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/kaiwa/domain/repositories"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig holds configuration for the Gemini completion adapter
type GeminiConfig struct {
	APIKey string // Required
	Model  string // Optional: defaults to gemini-2.0-flash
}

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	client *genai.Client
	logger *zap.Logger
	model  string
}

var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	return &GeminiLLM{
		client: client,
		logger: logger,
		model:  model,
	}, nil
}

// Complete implements LargeLanguageModel
func (g *GeminiLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	contents, config := g.buildRequest(req)

	response, err := g.client.Models.GenerateContent(ctx, g.modelFor(req), contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := responseText(response)
	if text == "" {
		return "", fmt.Errorf("gemini: no content generated")
	}
	return text, nil
}

// Stream implements LargeLanguageModel
func (g *GeminiLLM) Stream(ctx context.Context, req repositories.CompletionRequest) (repositories.CompletionStream, error) {
	contents, config := g.buildRequest(req)

	seq := g.client.Models.GenerateContentStream(ctx, g.modelFor(req), contents, config)
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

func (g *GeminiLLM) modelFor(req repositories.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.model
}

// buildRequest moves system messages into the system instruction and maps
// assistant turns to the model role.
func (g *GeminiLLM) buildRequest(req repositories.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}

	var contents []*genai.Content
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case repositories.SystemRole:
			system = append(system, msg.Content)
		case repositories.AssistantRole:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n"), genai.RoleUser)
	}
	return contents, config
}

// responseText concatenates the text parts of the first candidate.
func responseText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

type geminiStream struct {
	next     func() (*genai.GenerateContentResponse, error, bool)
	stop     func()
	fragment string
	err      error
	done     bool
}

func (s *geminiStream) Next() bool {
	if s.done {
		return false
	}
	resp, err, ok := s.next()
	if !ok {
		s.done = true
		return false
	}
	if err != nil {
		s.err = fmt.Errorf("gemini: stream: %w", err)
		s.done = true
		return false
	}
	s.fragment = responseText(resp)
	return true
}

func (s *geminiStream) Fragment() string {
	return s.fragment
}

func (s *geminiStream) Err() error {
	return s.err
}

func (s *geminiStream) Close() error {
	s.done = true
	s.stop()
	return nil
}
