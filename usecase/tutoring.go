package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/markup"
	"github.com/satriahrh/kaiwa/internal/pipeline"
)

// Step ids of the tutoring pipelines
const (
	StepRecognize pipeline.StepID = "recognize"
	StepUser      pipeline.StepID = "user"
	StepRespond   pipeline.StepID = "respond"
	StepSpeak     pipeline.StepID = "speak"
	StepClear     pipeline.StepID = "clear"
)

// handleCapture stores a finished recording. In tutoring mode the recording
// is transcribed into the editable input; recognition failures leave it empty.
func (c *Conversation) handleCapture(cmd Command) error {
	if len(cmd.Audio) == 0 {
		return fmt.Errorf("%w: empty capture", domain.ErrInvalidTransition)
	}

	sel := c.Selection()
	audioConfig := cmd.AudioConfig
	if audioConfig.Language == "" {
		audioConfig.Language = sel.Language
	}
	c.capture = cmd.Audio
	c.captureConfig = audioConfig
	c.recognized = ""

	if c.mode != entities.ModeTutoring {
		c.setState(StateRecognized)
		return nil
	}

	c.setState(StateRecording)
	recognize := pipeline.NewStep(StepRecognize, func(ctx context.Context, data pipeline.Data) pipeline.StepResult {
		text, err := c.o.stt.TranscribeAudio(ctx, c.capture, c.captureConfig)
		if err != nil {
			c.nonFatal("Recognition produced no text", err)
			text = ""
		}
		c.recognized = text
		return pipeline.Succeeded(text)
	})

	if err := c.runPipeline("capture", []pipeline.Step{recognize}); err != nil {
		return err
	}
	c.publish(Update{Kind: UpdateRecognized, Text: c.recognized})
	c.setState(StateRecognized)
	return nil
}

// handleSubmit appends the edited text as a new turn, streams the reply,
// voices it and clears the input.
func (c *Conversation) handleSubmit(text string) error {
	if c.mode != entities.ModeTutoring {
		return fmt.Errorf("%w: submit is only available in tutoring mode", domain.ErrInvalidTransition)
	}
	if c.State() == StateIdle && strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: nothing to submit", domain.ErrInvalidTransition)
	}

	steps := []pipeline.Step{
		pipeline.NewStep(StepUser, func(ctx context.Context, data pipeline.Data) pipeline.StepResult {
			c.setState(StateAwaitingReply)
			content := text
			if c.capture != nil {
				content = markup.Attach(text, markup.AudioPlayer(c.capture))
			}
			c.transcript.Append(content)
			c.publishTranscript()
			return pipeline.Succeeded(text)
		}),
		pipeline.NewStep(StepRespond, c.respondStep),
		pipeline.NewStep(StepSpeak, c.speakStep),
		c.clearStep(),
	}
	return c.runPipeline("tutoring_turn", steps)
}

// respondStep streams the completion into the pending turn, republishing the
// transcript after every fragment.
func (c *Conversation) respondStep(ctx context.Context, data pipeline.Data) pipeline.StepResult {
	c.setState(StateReplying)

	messages, err := c.o.composer.Compose(c.transcript.Turns(), c.Selection())
	if err != nil {
		return pipeline.Failed(err)
	}
	stream, err := c.o.llm.Stream(ctx, repositories.CompletionRequest{
		Messages:    messages,
		Temperature: c.o.tuning.TutorTemperature,
	})
	if err != nil {
		return pipeline.Failed(fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err))
	}
	defer stream.Close()

	if err := c.transcript.BeginReply(); err != nil {
		return pipeline.Failed(err)
	}
	fragments := 0
	for stream.Next() {
		fragment := stream.Fragment()
		if fragment == "" {
			continue
		}
		if err := c.transcript.AppendReply(fragment); err != nil {
			return pipeline.Failed(err)
		}
		fragments++
		c.publishTranscript()
	}
	if err := stream.Err(); err != nil {
		return pipeline.Failed(fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err))
	}

	c.logger.Debug("Reply streamed", zap.Int("fragments", fragments))
	return pipeline.Succeeded(fragments)
}

// speakStep voices the final reply with the persona voice. A failed synthesis
// leaves the turn text-only.
func (c *Conversation) speakStep(ctx context.Context, data pipeline.Data) pipeline.StepResult {
	c.setState(StateSynthesizing)

	last, ok := c.transcript.Last()
	if !ok {
		return pipeline.Failed(errors.New("no turn to voice"))
	}
	reply := last.Reply()
	if strings.TrimSpace(reply) == "" {
		return pipeline.Succeeded(false)
	}

	audio, err := c.synthesize(ctx, reply)
	if errors.Is(err, domain.ErrConfiguration) {
		return pipeline.Failed(err)
	}
	if err != nil {
		c.nonFatal("Reply left without audio", err)
		return pipeline.Succeeded(domain.ErrorCode(err))
	}

	if err := c.transcript.SetReply(markup.Attach(reply, markup.AudioPlayer(audio))); err != nil {
		return pipeline.Failed(err)
	}
	c.publishTranscript()
	return pipeline.Succeeded(true)
}

// clearStep empties the capture and edit field once a turn is finished
func (c *Conversation) clearStep() pipeline.Step {
	return pipeline.NewStep(StepClear, func(ctx context.Context, data pipeline.Data) pipeline.StepResult {
		c.resetInput()
		return pipeline.Succeeded(nil)
	})
}

// synthesize renders text with the voice configured for the current selection
func (c *Conversation) synthesize(ctx context.Context, text string) ([]byte, error) {
	sel := c.Selection()
	voice, err := c.o.personas.Voice(sel, c.o.voiceProvider)
	if err != nil {
		return nil, err
	}
	return c.o.tts.SynthesizeAudio(ctx, text, repositories.VoiceConfig{Language: sel.Language, Voice: voice})
}
