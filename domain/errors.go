package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by adapters, the composer and the orchestrator.
var (
	// ErrRecognitionEmpty means the recognizer heard nothing it could match.
	ErrRecognitionEmpty = errors.New("no speech could be recognized")
	// ErrRecognitionCanceled means the recognition service canceled the request.
	ErrRecognitionCanceled = errors.New("speech recognition canceled")
	// ErrSynthesisCanceled means the synthesis service canceled the request.
	ErrSynthesisCanceled = errors.New("speech synthesis canceled")
	// ErrConfiguration is returned for unknown language or topic keys.
	ErrConfiguration = errors.New("configuration error")
	// ErrMissingExample means a reply carried no backtick-delimited example phrase.
	ErrMissingExample = errors.New("no example phrase in reply")
	// ErrNoReferenceText means the latest assistant turn has no phrase to grade against.
	ErrNoReferenceText = errors.New("no reference text in transcript")
	// ErrInvalidTransition is returned when a command does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSessionBusy is returned when a command arrives while a pipeline is running.
	ErrSessionBusy = errors.New("session is busy")
	// ErrSessionClosed is returned when a command reaches a session that was shut down.
	ErrSessionClosed = errors.New("session closed")
	// ErrCompletionFailed wraps any failure of the completion service.
	ErrCompletionFailed = errors.New("completion failed")
)

// CancellationReason mirrors the reason codes speech services report on cancellation.
type CancellationReason string

const (
	CancellationReasonError       CancellationReason = "Error"
	CancellationReasonEndOfStream CancellationReason = "EndOfStream"
	CancellationReasonTimeout     CancellationReason = "Timeout"
)

// CancellationError reports an adapter-level cancellation. It unwraps to
// ErrRecognitionCanceled or ErrSynthesisCanceled depending on Stage.
type CancellationError struct {
	Stage   string
	Reason  CancellationReason
	Details string
}

const (
	StageRecognition = "recognition"
	StageSynthesis   = "synthesis"
)

func (e *CancellationError) Error() string {
	msg := fmt.Sprintf("%s canceled: %s", e.Stage, e.Reason)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *CancellationError) Unwrap() error {
	switch e.Stage {
	case StageRecognition:
		return ErrRecognitionCanceled
	case StageSynthesis:
		return ErrSynthesisCanceled
	}
	return nil
}

// ConfigurationError wraps ErrConfiguration with the key that failed to resolve.
func ConfigurationError(kind, key string) error {
	return fmt.Errorf("%w: unknown %s %q", ErrConfiguration, kind, key)
}

// ErrorCode maps an error to the stable code surfaced to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrMissingExample):
		return "missing_example"
	case errors.Is(err, ErrNoReferenceText):
		return "no_reference_text"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrSessionBusy):
		return "session_busy"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrCompletionFailed):
		return "completion_failed"
	case errors.Is(err, ErrRecognitionEmpty):
		return "recognition_empty"
	case errors.Is(err, ErrRecognitionCanceled):
		return "recognition_canceled"
	case errors.Is(err, ErrSynthesisCanceled):
		return "synthesis_canceled"
	}
	return "internal_error"
}
