package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/kaiwa/domain/repositories"
)

func TestConvertMessage(t *testing.T) {
	t.Run("system", func(t *testing.T) {
		param, err := convertMessage(repositories.ChatMessage{Role: repositories.SystemRole, Content: "You are a tutor."})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if param.OfSystem == nil {
			t.Fatal("expected OfSystem to be set")
		}
	})

	t.Run("user", func(t *testing.T) {
		param, err := convertMessage(repositories.ChatMessage{Role: repositories.UserRole, Content: "Hello"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if param.OfUser == nil {
			t.Fatal("expected OfUser to be set")
		}
	})

	t.Run("assistant", func(t *testing.T) {
		param, err := convertMessage(repositories.ChatMessage{Role: repositories.AssistantRole, Content: "Hi!"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if param.OfAssistant == nil {
			t.Fatal("expected OfAssistant to be set")
		}
		if got := param.OfAssistant.Content.OfString.Value; got != "Hi!" {
			t.Errorf("assistant content = %q, want %q", got, "Hi!")
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		if _, err := convertMessage(repositories.ChatMessage{Role: "tool", Content: "x"}); err == nil {
			t.Fatal("expected error for unknown role")
		}
	})
}

func TestNewOpenAILLM_MissingAPIKey(t *testing.T) {
	if _, err := NewOpenAILLM(OpenAIConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

type capturedRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newOpenAITestServer(t *testing.T, handler func(w http.ResponseWriter, req capturedRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

var tutorRequest = repositories.CompletionRequest{
	Messages: []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "You are a tutor."},
		{Role: repositories.UserRole, Content: "Hello"},
	},
	Temperature: 0.8,
}

func TestOpenAILLM_Complete(t *testing.T) {
	var got capturedRequest
	srv := newOpenAITestServer(t, func(w http.ResponseWriter, req capturedRequest) {
		got = req
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hi there!"}}],`+
			`"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`)
	})

	model, err := NewOpenAILLM(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAILLM: %v", err)
	}

	reply, err := model.Complete(context.Background(), tutorRequest)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "Hi there!" {
		t.Errorf("reply = %q, want %q", reply, "Hi there!")
	}
	if got.Model != defaultOpenAIModel {
		t.Errorf("model = %q, want %q", got.Model, defaultOpenAIModel)
	}
	if got.Temperature != 0.8 {
		t.Errorf("temperature = %v, want 0.8", got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Hello" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAILLM_CompleteModelOverride(t *testing.T) {
	var got capturedRequest
	srv := newOpenAITestServer(t, func(w http.ResponseWriter, req capturedRequest) {
		got = req
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`)
	})

	model, err := NewOpenAILLM(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAILLM: %v", err)
	}

	req := tutorRequest
	req.Model = "gpt-4o"
	if _, err := model.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", got.Model)
	}
}

func TestOpenAILLM_CompleteServerError(t *testing.T) {
	calls := 0
	srv := newOpenAITestServer(t, func(w http.ResponseWriter, req capturedRequest) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	model, err := NewOpenAILLM(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAILLM: %v", err)
	}

	if _, err := model.Complete(context.Background(), tutorRequest); err == nil {
		t.Fatal("expected error from failing server")
	}
	if calls != 1 {
		t.Errorf("server called %d times, want exactly 1 (no retries)", calls)
	}
}

func TestOpenAILLM_Stream(t *testing.T) {
	var got capturedRequest
	srv := newOpenAITestServer(t, func(w http.ResponseWriter, req capturedRequest) {
		got = req
		w.Header().Set("Content-Type", "text/event-stream")
		for _, fragment := range []string{"Hel", "lo", " there"} {
			fmt.Fprintf(w, "data: {\"id\":\"s1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-3.5-turbo\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", fragment)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	model, err := NewOpenAILLM(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewOpenAILLM: %v", err)
	}

	stream, err := model.Stream(context.Background(), tutorRequest)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Fragment())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if joined := strings.Join(fragments, ""); joined != "Hello there" {
		t.Errorf("streamed %q, want %q", joined, "Hello there")
	}
	if !got.Stream {
		t.Error("expected stream flag in request")
	}
}
