package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain/repositories"
)

const defaultOpenAIModel = "gpt-3.5-turbo"

// OpenAIConfig holds configuration for the OpenAI completion adapter
type OpenAIConfig struct {
	APIKey  string        // Required
	Model   string        // Optional: defaults to gpt-3.5-turbo
	BaseURL string        // Optional: alternative OpenAI compatible endpoint
	Timeout time.Duration // Optional: per request HTTP timeout, zero means none
}

// OpenAILLM implements LargeLanguageModel using the OpenAI chat completions API
type OpenAILLM struct {
	client oai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*OpenAILLM)(nil)

// NewOpenAILLM creates a new OpenAI completion adapter. Requests are never retried.
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", model))
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: config.Timeout,
		}))
	}

	return &OpenAILLM{
		client: oai.NewClient(reqOpts...),
		model:  model,
		logger: logger,
	}, nil
}

// Complete implements LargeLanguageModel
func (o *OpenAILLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	params, err := o.buildParams(req)
	if err != nil {
		return "", err
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	o.logger.Debug("Completion received",
		zap.String("model", string(params.Model)),
		zap.Int64("promptTokens", resp.Usage.PromptTokens),
		zap.Int64("completionTokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// Stream implements LargeLanguageModel
func (o *OpenAILLM) Stream(ctx context.Context, req repositories.CompletionRequest) (repositories.CompletionStream, error) {
	params, err := o.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

func (o *OpenAILLM) buildParams(req repositories.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}
	return oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: param.NewOpt(req.Temperature),
	}, nil
}

// convertMessage converts a ChatMessage to an OpenAI SDK message param.
func convertMessage(m repositories.ChatMessage) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case repositories.SystemRole:
		return oai.SystemMessage(m.Content), nil
	case repositories.UserRole:
		return oai.UserMessage(m.Content), nil
	case repositories.AssistantRole:
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(m.Content)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}

// openAIStream adapts the SDK's server-sent event stream to CompletionStream.
type openAIStream struct {
	stream   *ssestream.Stream[oai.ChatCompletionChunk]
	fragment string
}

func (s *openAIStream) Next() bool {
	if !s.stream.Next() {
		return false
	}
	s.fragment = ""
	if chunk := s.stream.Current(); len(chunk.Choices) > 0 {
		s.fragment = chunk.Choices[0].Delta.Content
	}
	return true
}

func (s *openAIStream) Fragment() string {
	return s.fragment
}

func (s *openAIStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
