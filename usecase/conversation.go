package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/metrics"
	"github.com/satriahrh/kaiwa/internal/pipeline"
)

type request struct {
	cmd  Command
	done chan error
}

// Conversation runs the turn cycle of one session. A single worker goroutine
// owns the transcript and executes one command at a time; a command that
// arrives while another is in flight is rejected with domain.ErrSessionBusy.
type Conversation struct {
	o          *Orchestrator
	id         string
	mode       entities.Mode
	transcript *entities.Transcript
	logger     *zap.Logger

	requests chan request
	busy     atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}

	mu            sync.RWMutex
	publisher     Publisher
	generation    int
	state         State
	selection     entities.Selection
	submitEnabled bool

	// owned by the worker goroutine
	capture       []byte
	captureConfig repositories.AudioConfig
	recognized    string
}

// NewConversation starts the worker for session. Updates go to pub, which
// may be nil until a client attaches.
func (o *Orchestrator) NewConversation(session *entities.Session, pub Publisher) *Conversation {
	if pub == nil {
		pub = discardPublisher{}
	}
	transcript := session.Transcript
	if transcript == nil {
		transcript = entities.NewTranscript()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		o:          o,
		id:         session.ID,
		mode:       session.Selection.Mode,
		transcript: transcript,
		logger:     o.logger.With(zap.String("sessionID", session.ID)),
		requests:   make(chan request, 1),
		ctx:        ctx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
		publisher:  pub,
		state:      StateIdle,
		selection:  session.Selection,
		// tutoring can submit right away; practice waits for kick_start
		submitEnabled: session.Selection.Mode == entities.ModeTutoring,
	}
	go c.run()
	return c
}

// ID returns the session id
func (c *Conversation) ID() string {
	return c.id
}

// SetPublisher redirects updates, used when a browser reconnects. The
// returned func detaches pub again unless another publisher replaced it.
func (c *Conversation) SetPublisher(pub Publisher) (detach func()) {
	if pub == nil {
		pub = discardPublisher{}
	}
	c.mu.Lock()
	c.publisher = pub
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.generation == generation {
			c.publisher = discardPublisher{}
		}
	}
}

// Snapshot returns the current state for a newly attached client
func (c *Conversation) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		SessionID:     c.id,
		Mode:          c.mode,
		State:         c.state,
		Selection:     c.selection,
		SubmitEnabled: c.submitEnabled,
		Turns:         c.transcript.Turns(),
	}
}

// Busy reports whether a command is in flight
func (c *Conversation) Busy() bool {
	return c.busy.Load()
}

// Dispatch queues cmd without waiting for it. Failures of the command itself
// are published as error updates.
func (c *Conversation) Dispatch(cmd Command) error {
	_, err := c.enqueue(cmd)
	return err
}

// Do runs cmd and waits for its outcome
func (c *Conversation) Do(ctx context.Context, cmd Command) error {
	done, err := c.enqueue(cmd)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker and cancels any running pipeline
func (c *Conversation) Close() {
	c.cancel()
	<-c.stopped
}

func (c *Conversation) enqueue(cmd Command) (chan error, error) {
	select {
	case <-c.ctx.Done():
		return nil, domain.ErrSessionClosed
	default:
	}
	if !c.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrSessionBusy
	}

	req := request{cmd: cmd, done: make(chan error, 1)}
	select {
	case c.requests <- req:
		return req.done, nil
	case <-c.ctx.Done():
		c.busy.Store(false)
		return nil, domain.ErrSessionClosed
	}
}

func (c *Conversation) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.ctx.Done():
			return
		case req := <-c.requests:
			err := c.handle(req.cmd)
			if err != nil {
				c.publish(Update{Kind: UpdateError, ErrorCode: domain.ErrorCode(err), Message: err.Error()})
			}
			c.busy.Store(false)
			req.done <- err
		}
	}
}

// handle validates cmd against the current state and executes it
func (c *Conversation) handle(cmd Command) error {
	c.logger.Debug("Handling command", zap.String("command", string(cmd.Kind)), zap.String("state", string(c.State())))

	if !c.State().resting() {
		return fmt.Errorf("%w: %s while %s", domain.ErrInvalidTransition, cmd.Kind, c.State())
	}

	switch cmd.Kind {
	case CommandConfigure:
		return c.configure(cmd.Language, cmd.Topic)
	case CommandCapture:
		return c.handleCapture(cmd)
	case CommandSubmit:
		return c.handleSubmit(cmd.Text)
	case CommandReset:
		c.resetInput()
		return nil
	case CommandClear:
		c.clearConversation()
		return nil
	case CommandKickStart:
		return c.handleKickStart(cmd.Language, cmd.Topic)
	case CommandPracticeSubmit:
		return c.handlePracticeSubmit()
	}
	return fmt.Errorf("%w: unknown command %q", domain.ErrInvalidTransition, cmd.Kind)
}

// State returns the current state
func (c *Conversation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Selection returns the current language and topic
func (c *Conversation) Selection() entities.Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection
}

func (c *Conversation) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.publish(Update{Kind: UpdateState, State: s})
	}
}

func (c *Conversation) setSubmitEnabled(enabled bool) {
	c.mu.Lock()
	c.submitEnabled = enabled
	c.mu.Unlock()
	c.publish(Update{Kind: UpdateControls, SubmitEnabled: enabled})
}

func (c *Conversation) publish(u Update) {
	c.mu.RLock()
	pub := c.publisher
	c.mu.RUnlock()
	pub.Publish(u)
}

func (c *Conversation) publishTranscript() {
	c.publish(Update{Kind: UpdateTranscript, Turns: c.transcript.Turns()})
}

// configure switches language and topic between turns
func (c *Conversation) configure(language, topic string) error {
	sel := c.Selection()
	if language != "" {
		sel.Language = language
	}
	if topic != "" {
		sel.Topic = topic
	}
	if err := c.o.personas.Validate(sel); err != nil {
		return err
	}

	c.mu.Lock()
	c.selection = sel
	c.mu.Unlock()
	c.logger.Info("Selection changed", zap.String("language", sel.Language), zap.String("topic", sel.Topic))
	return nil
}

// resetInput drops the capture and recognized text without touching the transcript
func (c *Conversation) resetInput() {
	c.capture = nil
	c.captureConfig = repositories.AudioConfig{}
	c.recognized = ""
	c.publish(Update{Kind: UpdateInputCleared})
	c.setState(StateIdle)
}

// clearConversation empties the transcript and returns to Idle
func (c *Conversation) clearConversation() {
	c.transcript.Clear()
	c.publishTranscript()
	if c.mode == entities.ModePronunciation {
		c.setSubmitEnabled(false)
	}
	c.setState(StateIdle)
}

// runPipeline executes steps through the pipeline manager and reports the
// outcome. On failure the conversation rests in Idle with its input kept.
func (c *Conversation) runPipeline(id string, steps []pipeline.Step) error {
	def := &definition{id: id, steps: steps, timeout: c.o.tuning.PipelineTimeout}
	data := pipeline.Data{pipeline.DataKeySessionID: c.id}

	metrics.TurnsTotal.WithLabelValues(string(c.mode), "started").Inc()
	runID, err := c.o.pipelines.RunDefinition(c.ctx, def, data)

	state := pipeline.StateCompleted
	outcome := "completed"
	if err != nil {
		state = pipeline.StateFailed
		outcome = "failed"
		c.setState(StateIdle)
	}
	metrics.TurnsTotal.WithLabelValues(string(c.mode), outcome).Inc()
	c.publish(Update{Kind: UpdatePipeline, PipelineID: string(runID), PipelineState: string(state)})
	return err
}

// nonFatal logs and counts a reported-but-tolerated adapter outcome
func (c *Conversation) nonFatal(msg string, err error) {
	var cancel *domain.CancellationError
	if errors.As(err, &cancel) {
		c.logger.Warn(msg,
			zap.String("stage", cancel.Stage),
			zap.String("reason", string(cancel.Reason)),
			zap.String("details", cancel.Details))
	} else {
		c.logger.Warn(msg, zap.Error(err))
	}
	metrics.RecordCancellation(err)
}
