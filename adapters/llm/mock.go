package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/markup"
)

// CompleteCall records a single invocation of Complete or Stream.
type CompleteCall struct {
	Ctx context.Context
	Req repositories.CompletionRequest
}

// MockLLM is a scripted LargeLanguageModel for tests. Replies are consumed
// in order; once exhausted the last reply repeats.
type MockLLM struct {
	mu sync.Mutex

	// Replies are returned by Complete and split into word fragments by Stream.
	Replies []string
	// Fragments, if set, are streamed verbatim instead of splitting Replies.
	Fragments []string
	// CompleteErr, if non-nil, is returned by Complete.
	CompleteErr error
	// StreamErr, if non-nil, is returned by Stream instead of a stream.
	StreamErr error
	// StreamFailAfter, if non-nil, ends the stream with this error after all fragments.
	StreamFailAfter error

	CompleteCalls []CompleteCall
	StreamCalls   []CompleteCall
	next          int
}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

// Complete implements LargeLanguageModel
func (m *MockLLM) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteCalls = append(m.CompleteCalls, CompleteCall{Ctx: ctx, Req: cloneRequest(req)})
	if m.CompleteErr != nil {
		return "", m.CompleteErr
	}
	return m.popReply(), nil
}

// Stream implements LargeLanguageModel
func (m *MockLLM) Stream(ctx context.Context, req repositories.CompletionRequest) (repositories.CompletionStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StreamCalls = append(m.StreamCalls, CompleteCall{Ctx: ctx, Req: cloneRequest(req)})
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}

	fragments := m.Fragments
	if fragments == nil {
		fragments = SplitFragments(m.popReply())
	}
	return NewSliceStream(fragments, m.StreamFailAfter), nil
}

func (m *MockLLM) popReply() string {
	if len(m.Replies) == 0 {
		return ""
	}
	idx := m.next
	if idx >= len(m.Replies) {
		idx = len(m.Replies) - 1
	} else {
		m.next++
	}
	return m.Replies[idx]
}

func cloneRequest(req repositories.CompletionRequest) repositories.CompletionRequest {
	req.Messages = append([]repositories.ChatMessage(nil), req.Messages...)
	return req
}

// SplitFragments cuts text after every space so the fragments concatenate
// back to text exactly.
func SplitFragments(text string) []string {
	var out []string
	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// SliceStream is a CompletionStream over fixed fragments.
type SliceStream struct {
	fragments []string
	failAfter error
	pos       int
	current   string
	err       error
	closed    bool
}

// NewSliceStream streams fragments and then ends with failAfter, which may be nil.
func NewSliceStream(fragments []string, failAfter error) *SliceStream {
	return &SliceStream{fragments: fragments, failAfter: failAfter}
}

func (s *SliceStream) Next() bool {
	if s.closed || s.pos >= len(s.fragments) {
		if !s.closed && s.failAfter != nil {
			s.err = s.failAfter
		}
		return false
	}
	s.current = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *SliceStream) Fragment() string { return s.current }
func (s *SliceStream) Err() error       { return s.err }

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// AccuracyThreshold is the per-word score below which a word needs more practice.
const AccuracyThreshold = 80

// MaxAttempts is how many graded attempts a sentence gets before the tutor moves on.
const MaxAttempts = 3

// DemoTutor is an offline LargeLanguageModel that follows the persona
// contract of the practice prompts: it presents one backtick-delimited
// sentence per reply, repeats a sentence while any word scores under
// AccuracyThreshold, and switches sentence after MaxAttempts graded tries.
// In tutoring conversations it answers with a short acknowledgement.
type DemoTutor struct {
	sentences map[string][]string
	logger    *zap.Logger
}

var _ repositories.LargeLanguageModel = (*DemoTutor)(nil)

// NewDemoTutor creates the offline tutor
func NewDemoTutor(logger *zap.Logger) *DemoTutor {
	return &DemoTutor{
		logger: logger,
		sentences: map[string][]string{
			"en": {
				"Good morning.",
				"Nice to meet you.",
				"Could you tell me more about your plans?",
				"I would like to schedule a meeting for next Tuesday.",
				"Let's review the quarterly results together this afternoon.",
			},
			"ja": {
				"おはようございます。",
				"はじめまして。",
				"趣味は何ですか。",
				"来週の火曜日に会議を設定したいです。",
			},
		},
	}
}

// Complete implements LargeLanguageModel
func (d *DemoTutor) Complete(ctx context.Context, req repositories.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply := d.reply(req.Messages)
	d.logger.Debug("Demo tutor replied", zap.String("reply", reply))
	return reply, nil
}

// Stream implements LargeLanguageModel
func (d *DemoTutor) Stream(ctx context.Context, req repositories.CompletionRequest) (repositories.CompletionStream, error) {
	reply, err := d.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return NewSliceStream(SplitFragments(reply), nil), nil
}

func (d *DemoTutor) reply(messages []repositories.ChatMessage) string {
	if len(messages) == 0 {
		return "Hello!"
	}
	system := messages[0].Content
	last := messages[len(messages)-1]

	if !strings.Contains(system, "`") {
		if strings.TrimSpace(last.Content) == "" {
			return "I could not hear you. Could you say that again?"
		}
		return fmt.Sprintf("You said: %q. Can you tell me more?", strings.TrimSpace(last.Content))
	}

	sentences := d.sentences["en"]
	if strings.Contains(system, "日本語") {
		sentences = d.sentences["ja"]
	}

	if !strings.HasPrefix(last.Content, entities.PronunciationHeader) {
		return "Let's start with a simple phrase.\n`" + sentences[0] + "`"
	}

	current, attempts := currentAssignment(messages)
	weak, ok := weakestWord(last.Content)
	switch {
	case !ok:
		return "Excellent! Next one.\n`" + nextSentence(sentences, current) + "`"
	case attempts >= MaxAttempts:
		return fmt.Sprintf("Let's leave %q for now and try something different.\n`%s`", weak, nextSentence(sentences, current))
	default:
		return fmt.Sprintf("Almost! Let's practice %q again.\n`%s`", weak, current)
	}
}

// currentAssignment returns the sentence of the latest assistant reply and
// how many trailing assistant replies assigned that same sentence.
func currentAssignment(messages []repositories.ChatMessage) (string, int) {
	current := ""
	attempts := 0
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != repositories.AssistantRole {
			continue
		}
		ref, ok := markup.ExtractReference(m.Content)
		if !ok {
			break
		}
		if current == "" {
			current = ref
		}
		if ref != current {
			break
		}
		attempts++
	}
	return current, attempts
}

// weakestWord returns the lowest scoring word under the threshold.
func weakestWord(graded string) (string, bool) {
	lines := strings.Split(strings.TrimPrefix(graded, entities.PronunciationHeader), "\n")
	word, low, found := "", float64(AccuracyThreshold), false
	for _, line := range lines {
		idx := strings.LastIndex(line, ": ")
		if idx < 0 {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(line[idx+2:]), 64)
		if err != nil {
			continue
		}
		if score < low {
			word, low, found = line[:idx], score, true
		}
	}
	return word, found
}

func nextSentence(sentences []string, current string) string {
	for i, s := range sentences {
		if s == current {
			return sentences[(i+1)%len(sentences)]
		}
	}
	return sentences[0]
}
