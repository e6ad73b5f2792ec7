package pipeline

import (
	"context"
	"time"
)

// State represents the current state of a pipeline run
type State string

const (
	StateStarted   State = "started"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// StepState represents the state of an individual step
type StepState string

const (
	StepStatePending   StepState = "pending"
	StepStateRunning   StepState = "running"
	StepStateCompleted StepState = "completed"
	StepStateFailed    StepState = "failed"
	StepStateSkipped   StepState = "skipped"
)

// ID uniquely identifies a pipeline run
type ID string

// StepID uniquely identifies a step within a pipeline
type StepID string

// Data holds the values steps share during one run
type Data map[string]interface{}

// DataKeySessionID is copied onto every event of a run when present.
const DataKeySessionID = "session_id"

// StepResult represents the result of a step execution
type StepResult struct {
	Success bool
	Data    interface{}
	Error   error
}

// Step represents a single stage of a pipeline
type Step interface {
	ID() StepID
	Execute(ctx context.Context, data Data) StepResult
}

// Definition defines the ordered steps of a pipeline. A zero Timeout means
// the run is bounded only by the caller's context.
type Definition interface {
	ID() string
	Steps() []Step
	Timeout() time.Duration
}

// Observer is notified after every step finishes
type Observer interface {
	StepFinished(definition string, step StepID, duration time.Duration, err error)
}

// Instance represents one run of a pipeline
type Instance struct {
	ID          ID              `json:"id"`
	Definition  string          `json:"definition"`
	SessionID   string          `json:"session_id,omitempty"`
	State       State           `json:"state"`
	Data        Data            `json:"-"`
	Steps       []StepExecution `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// StepExecution represents the execution state of a step
type StepExecution struct {
	ID          StepID      `json:"id"`
	State       StepState   `json:"state"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
	Result      interface{} `json:"result,omitempty"`
}

// Event represents an event in the pipeline lifecycle
type Event struct {
	PipelineID ID          `json:"pipeline_id"`
	Definition string      `json:"definition"`
	SessionID  string      `json:"session_id,omitempty"`
	StepID     StepID      `json:"step_id,omitempty"`
	Type       string      `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       interface{} `json:"data,omitempty"`
}

// Event types
const (
	EventPipelineStarted   = "pipeline_started"
	EventPipelineCompleted = "pipeline_completed"
	EventPipelineFailed    = "pipeline_failed"
	EventStepStarted       = "step_started"
	EventStepCompleted     = "step_completed"
	EventStepFailed        = "step_failed"
)

// StepFunc adapts a function to the Step interface
type StepFunc struct {
	id StepID
	fn func(ctx context.Context, data Data) StepResult
}

// NewStep wraps fn as a step with the given id
func NewStep(id StepID, fn func(ctx context.Context, data Data) StepResult) *StepFunc {
	return &StepFunc{id: id, fn: fn}
}

func (s *StepFunc) ID() StepID {
	return s.id
}

func (s *StepFunc) Execute(ctx context.Context, data Data) StepResult {
	return s.fn(ctx, data)
}

// Succeeded is a successful result carrying data
func Succeeded(data interface{}) StepResult {
	return StepResult{Success: true, Data: data}
}

// Failed is a failed result carrying err
func Failed(err error) StepResult {
	return StepResult{Success: false, Error: err}
}
