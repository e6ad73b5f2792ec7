package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type testDefinition struct {
	id      string
	steps   []Step
	timeout time.Duration
}

func (d *testDefinition) ID() string             { return d.id }
func (d *testDefinition) Steps() []Step          { return d.steps }
func (d *testDefinition) Timeout() time.Duration { return d.timeout }

type recordingObserver struct {
	mu    sync.Mutex
	steps []StepID
	errs  []error
}

func (o *recordingObserver) StepFinished(definition string, step StepID, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, step)
	o.errs = append(o.errs, err)
}

func recordStep(id StepID, calls *[]StepID, err error) Step {
	return NewStep(id, func(ctx context.Context, data Data) StepResult {
		*calls = append(*calls, id)
		if err != nil {
			return Failed(err)
		}
		return Succeeded(string(id))
	})
}

func TestManagerRunsStepsInOrder(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), 0)
	obs := &recordingObserver{}
	m.AddObserver(obs)

	var calls []StepID
	m.RegisterDefinition(&testDefinition{id: "chain", steps: []Step{
		recordStep("a", &calls, nil),
		recordStep("b", &calls, nil),
		recordStep("c", &calls, nil),
	}})

	id, err := m.Run(context.Background(), "chain", Data{DataKeySessionID: "s1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) != 3 || calls[0] != "a" || calls[1] != "b" || calls[2] != "c" {
		t.Errorf("Unexpected call order: %v", calls)
	}

	instance, ok := m.Get(id)
	if !ok {
		t.Fatal("Expected instance to be retained")
	}
	if instance.State != StateCompleted {
		t.Errorf("Expected completed, got %s", instance.State)
	}
	if instance.SessionID != "s1" {
		t.Errorf("Expected session id s1, got %q", instance.SessionID)
	}
	for _, step := range instance.Steps {
		if step.State != StepStateCompleted || step.StartedAt == nil || step.CompletedAt == nil {
			t.Errorf("Unexpected step execution: %+v", step)
		}
	}
	if len(obs.steps) != 3 {
		t.Errorf("Expected observer to see 3 steps, got %d", len(obs.steps))
	}
}

func TestManagerStopsOnFirstFailure(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), 0)
	boom := errors.New("boom")

	var calls []StepID
	def := &testDefinition{id: "failing", steps: []Step{
		recordStep("user", &calls, nil),
		recordStep("respond", &calls, boom),
		recordStep("speak", &calls, nil),
		recordStep("clear", &calls, nil),
	}}

	id, err := m.RunDefinition(context.Background(), def, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("Expected later steps to be skipped, calls: %v", calls)
	}

	instance, _ := m.Get(id)
	if instance.State != StateFailed || instance.Error == "" {
		t.Errorf("Expected failed instance with error, got %+v", instance)
	}
	want := []StepState{StepStateCompleted, StepStateFailed, StepStateSkipped, StepStateSkipped}
	for i, s := range want {
		if instance.Steps[i].State != s {
			t.Errorf("step %d state = %s, want %s", i, instance.Steps[i].State, s)
		}
	}
}

func TestManagerFailureWithoutError(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), 0)
	def := &testDefinition{id: "silent", steps: []Step{
		NewStep("bad", func(ctx context.Context, data Data) StepResult { return StepResult{} }),
	}}

	if _, err := m.RunDefinition(context.Background(), def, nil); err == nil {
		t.Error("Expected an error for a failed step without one")
	}
}

func TestManagerTimeout(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), 0)

	var calls []StepID
	def := &testDefinition{id: "slow", timeout: 10 * time.Millisecond, steps: []Step{
		NewStep("wait", func(ctx context.Context, data Data) StepResult {
			<-ctx.Done()
			return Failed(ctx.Err())
		}),
		recordStep("after", &calls, nil),
	}}

	_, err := m.RunDefinition(context.Background(), def, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if len(calls) != 0 {
		t.Error("Expected step after timeout to be skipped")
	}
}

func TestManagerUnknownDefinition(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), 0)
	if _, err := m.Run(context.Background(), "missing", nil); err == nil {
		t.Error("Expected error for unknown definition")
	}
}

func TestManagerRetention(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), 2)
	def := &testDefinition{id: "noop", steps: []Step{
		NewStep("noop", func(ctx context.Context, data Data) StepResult { return Succeeded(nil) }),
	}}

	var ids []ID
	for i := 0; i < 3; i++ {
		id, err := m.RunDefinition(context.Background(), def, nil)
		if err != nil {
			t.Fatalf("RunDefinition: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(time.Millisecond)
	}

	if _, ok := m.Get(ids[0]); ok {
		t.Error("Expected oldest run to be evicted")
	}
	if _, ok := m.Get(ids[2]); !ok {
		t.Error("Expected newest run to be retained")
	}
}

func TestManagerEmitsEvents(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), 0)
	def := &testDefinition{id: "events", steps: []Step{
		NewStep("only", func(ctx context.Context, data Data) StepResult { return Succeeded(nil) }),
	}}

	if _, err := m.RunDefinition(context.Background(), def, Data{DataKeySessionID: "abc"}); err != nil {
		t.Fatalf("RunDefinition: %v", err)
	}

	want := []string{EventPipelineStarted, EventStepStarted, EventStepCompleted, EventPipelineCompleted}
	for _, typ := range want {
		select {
		case ev := <-m.EventChannel():
			if ev.Type != typ {
				t.Errorf("event type = %s, want %s", ev.Type, typ)
			}
			if ev.SessionID != "abc" {
				t.Errorf("event session = %q, want abc", ev.SessionID)
			}
		default:
			t.Fatalf("Expected event %s", typ)
		}
	}
}
