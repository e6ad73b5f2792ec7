package websocket

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/usecase"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client to server message types
const (
	MessageTypeConfigure      MessageType = "configure"
	MessageTypeCapture        MessageType = "capture"
	MessageTypeSubmit         MessageType = "submit"
	MessageTypeReset          MessageType = "reset"
	MessageTypeClear          MessageType = "clear"
	MessageTypeKickStart      MessageType = "kick_start"
	MessageTypePracticeSubmit MessageType = "practice_submit"
	MessageTypePing           MessageType = "ping"
)

// Server to client message types
const (
	MessageTypeHello        MessageType = "hello"
	MessageTypeState        MessageType = "state"
	MessageTypeRecognized   MessageType = "recognized"
	MessageTypeTranscript   MessageType = "transcript"
	MessageTypeAssessment   MessageType = "assessment"
	MessageTypeControls     MessageType = "controls"
	MessageTypeInputCleared MessageType = "input_cleared"
	MessageTypePipeline     MessageType = "pipeline"
	MessageTypeError        MessageType = "error"
	MessageTypePong         MessageType = "pong"
)

// Defaults for captures that arrive as binary frames, which carry a WAV file
// as recorded by the chat widget.
const (
	defaultSampleRate = 16000
	defaultEncoding   = repositories.EncodingLinear16
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ConfigureMessage changes the language or topic between turns
type ConfigureMessage struct {
	BaseMessage
	Language string `json:"language,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// CaptureMessage carries one finished recording
type CaptureMessage struct {
	BaseMessage
	AudioData  string `json:"audio_data"` // base64 encoded
	SampleRate int    `json:"sample_rate,omitempty"`
	Encoding   string `json:"encoding,omitempty"`

	audio []byte
}

// SubmitMessage sends the edited recognition text
type SubmitMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// KickStartMessage opens a practice session
type KickStartMessage struct {
	BaseMessage
	Language string `json:"language,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// HelloMessage greets a newly attached client with the session snapshot
type HelloMessage struct {
	BaseMessage
	SessionID     string             `json:"session_id"`
	Mode          entities.Mode      `json:"mode"`
	State         usecase.State      `json:"state"`
	Selection     entities.Selection `json:"selection"`
	SubmitEnabled bool               `json:"submit_enabled"`
}

// StateMessage reports a turn cycle transition
type StateMessage struct {
	BaseMessage
	State usecase.State `json:"state"`
}

// RecognizedMessage fills the editable input with recognized text
type RecognizedMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// TranscriptMessage carries the whole transcript
type TranscriptMessage struct {
	BaseMessage
	Turns []entities.Turn `json:"turns"`
}

// AssessmentMessage carries the word grades of the last capture
type AssessmentMessage struct {
	BaseMessage
	Grades []entities.WordGrade `json:"grades"`
}

// ControlsMessage toggles the submit control
type ControlsMessage struct {
	BaseMessage
	SubmitEnabled bool `json:"submit_enabled"`
}

// PipelineMessage reports the outcome of a pipeline run
type PipelineMessage struct {
	BaseMessage
	PipelineID string `json:"pipeline_id"`
	State      string `json:"state"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses and validates an incoming text frame
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeConfigure:
		var msg ConfigureMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid configure message: %w", err)
		}
		if msg.Language == "" && msg.Topic == "" {
			return nil, fmt.Errorf("language or topic is required")
		}
		return &msg, nil

	case MessageTypeCapture:
		var msg CaptureMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid capture message: %w", err)
		}
		if err := v.validateCapture(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeSubmit:
		var msg SubmitMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid submit message: %w", err)
		}
		return &msg, nil

	case MessageTypeKickStart:
		var msg KickStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid kick start message: %w", err)
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case MessageTypeReset, MessageTypeClear, MessageTypePracticeSubmit:
		return &base, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateCapture validates and decodes capture message fields
func (v *MessageValidator) validateCapture(msg *CaptureMessage) error {
	if msg.AudioData == "" {
		return fmt.Errorf("audio_data is required")
	}
	audio, err := base64.StdEncoding.DecodeString(msg.AudioData)
	if err != nil {
		return fmt.Errorf("audio_data must be base64: %w", err)
	}
	msg.audio = audio

	if msg.SampleRate == 0 {
		msg.SampleRate = defaultSampleRate
	}
	if msg.SampleRate < 8000 || msg.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}

	if msg.Encoding == "" {
		msg.Encoding = defaultEncoding
	}
	validEncodings := map[string]bool{
		repositories.EncodingLinear16: true,
		repositories.EncodingWebmOpus: true,
		repositories.EncodingOggOpus:  true,
		repositories.EncodingMP3:      true,
	}
	if !validEncodings[msg.Encoding] {
		return fmt.Errorf("encoding must be one of: LINEAR16, WEBM_OPUS, OGG_OPUS, MP3")
	}
	return nil
}

// ToCommand converts a validated client message to an orchestrator command.
// It reports false for messages handled by the transport itself.
func ToCommand(msg interface{}) (usecase.Command, bool) {
	switch m := msg.(type) {
	case *ConfigureMessage:
		return usecase.Command{Kind: usecase.CommandConfigure, Language: m.Language, Topic: m.Topic}, true
	case *CaptureMessage:
		return captureCommand(m.audio, m.SampleRate, m.Encoding), true
	case *SubmitMessage:
		return usecase.Command{Kind: usecase.CommandSubmit, Text: m.Text}, true
	case *KickStartMessage:
		return usecase.Command{Kind: usecase.CommandKickStart, Language: m.Language, Topic: m.Topic}, true
	case *BaseMessage:
		switch m.Type {
		case MessageTypeReset:
			return usecase.Command{Kind: usecase.CommandReset}, true
		case MessageTypeClear:
			return usecase.Command{Kind: usecase.CommandClear}, true
		case MessageTypePracticeSubmit:
			return usecase.Command{Kind: usecase.CommandPracticeSubmit}, true
		}
	}
	return usecase.Command{}, false
}

func captureCommand(audio []byte, sampleRate int, encoding string) usecase.Command {
	return usecase.Command{
		Kind:        usecase.CommandCapture,
		Audio:       audio,
		AudioConfig: repositories.AudioConfig{SampleRate: sampleRate, Encoding: encoding},
	}
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// EncodeUpdate renders an orchestrator update as its wire message
func EncodeUpdate(u usecase.Update) interface{} {
	switch u.Kind {
	case usecase.UpdateState:
		return &StateMessage{BaseMessage: newBase(MessageTypeState), State: u.State}
	case usecase.UpdateRecognized:
		return &RecognizedMessage{BaseMessage: newBase(MessageTypeRecognized), Text: u.Text}
	case usecase.UpdateTranscript:
		turns := u.Turns
		if turns == nil {
			turns = []entities.Turn{}
		}
		return &TranscriptMessage{BaseMessage: newBase(MessageTypeTranscript), Turns: turns}
	case usecase.UpdateAssessment:
		return &AssessmentMessage{BaseMessage: newBase(MessageTypeAssessment), Grades: u.Grades}
	case usecase.UpdateControls:
		return &ControlsMessage{BaseMessage: newBase(MessageTypeControls), SubmitEnabled: u.SubmitEnabled}
	case usecase.UpdateInputCleared:
		msg := newBase(MessageTypeInputCleared)
		return &msg
	case usecase.UpdatePipeline:
		return &PipelineMessage{BaseMessage: newBase(MessageTypePipeline), PipelineID: u.PipelineID, State: u.PipelineState}
	case usecase.UpdateError:
		return CreateErrorMessage(u.ErrorCode, u.Message, "")
	}
	return CreateErrorMessage("internal_error", fmt.Sprintf("unknown update %q", u.Kind), "")
}

// CreateHelloMessage greets a client with the conversation snapshot
func CreateHelloMessage(snap usecase.Snapshot) *HelloMessage {
	return &HelloMessage{
		BaseMessage:   newBase(MessageTypeHello),
		SessionID:     snap.SessionID,
		Mode:          snap.Mode,
		State:         snap.State,
		Selection:     snap.Selection,
		SubmitEnabled: snap.SubmitEnabled,
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}
