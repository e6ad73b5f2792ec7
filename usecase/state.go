package usecase

import (
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

// State is the position of a conversation in its turn cycle. Commands are
// only accepted in the resting states Idle and Recognized.
type State string

const (
	StateIdle          State = "idle"
	StateRecording     State = "recording"
	StateRecognized    State = "recognized"
	StateAwaitingReply State = "awaiting_reply"
	StateReplying      State = "replying"
	StateSynthesizing  State = "synthesizing"
	StateStarting      State = "starting"
	StateGrading       State = "grading"
)

func (s State) resting() bool {
	return s == StateIdle || s == StateRecognized
}

// CommandKind names a user interaction
type CommandKind string

const (
	CommandConfigure      CommandKind = "configure"
	CommandCapture        CommandKind = "capture"
	CommandSubmit         CommandKind = "submit"
	CommandReset          CommandKind = "reset"
	CommandClear          CommandKind = "clear"
	CommandKickStart      CommandKind = "kick_start"
	CommandPracticeSubmit CommandKind = "practice_submit"
)

// Command is one user interaction routed to a conversation
type Command struct {
	Kind CommandKind

	// configure and kick_start; empty keeps the current value
	Language string
	Topic    string

	// submit
	Text string

	// capture
	Audio       []byte
	AudioConfig repositories.AudioConfig
}

// UpdateKind names what changed in an Update
type UpdateKind string

const (
	UpdateState        UpdateKind = "state"
	UpdateRecognized   UpdateKind = "recognized"
	UpdateTranscript   UpdateKind = "transcript"
	UpdateAssessment   UpdateKind = "assessment"
	UpdateControls     UpdateKind = "controls"
	UpdateInputCleared UpdateKind = "input_cleared"
	UpdatePipeline     UpdateKind = "pipeline"
	UpdateError        UpdateKind = "error"
)

// Update is pushed to the browser whenever conversation state changes.
// Only the fields relevant to Kind are set.
type Update struct {
	Kind UpdateKind

	State         State
	Text          string
	Turns         []entities.Turn
	Grades        []entities.WordGrade
	SubmitEnabled bool
	PipelineID    string
	PipelineState string
	ErrorCode     string
	Message       string
}

// Publisher receives conversation updates in order
type Publisher interface {
	Publish(Update)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Update)

func (f PublisherFunc) Publish(u Update) {
	f(u)
}

type discardPublisher struct{}

func (discardPublisher) Publish(Update) {}

// Snapshot is a consistent view of a conversation for newly attached clients
type Snapshot struct {
	SessionID     string             `json:"session_id"`
	Mode          entities.Mode      `json:"mode"`
	State         State              `json:"state"`
	Selection     entities.Selection `json:"selection"`
	SubmitEnabled bool               `json:"submit_enabled"`
	Turns         []entities.Turn    `json:"turns"`
}
