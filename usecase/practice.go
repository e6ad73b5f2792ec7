package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/markup"
	"github.com/satriahrh/kaiwa/internal/pipeline"
)

// Step ids of the pronunciation practice pipelines
const (
	StepKickStart   pipeline.StepID = "kick_start"
	StepGrade       pipeline.StepID = "grade"
	StepBot         pipeline.StepID = "bot"
	StepPlayExample pipeline.StepID = "play_example"
)

const dataKeyGrades = "grades"

func (c *Conversation) requirePractice(kind CommandKind) error {
	if c.mode != entities.ModePronunciation {
		return fmt.Errorf("%w: %s is only available in pronunciation mode", domain.ErrInvalidTransition, kind)
	}
	return nil
}

// handleKickStart seeds the transcript with the topic instruction, asks for
// the opening assignment and voices its example phrase.
func (c *Conversation) handleKickStart(language, topic string) error {
	if err := c.requirePractice(CommandKickStart); err != nil {
		return err
	}
	if err := c.configure(language, topic); err != nil {
		return err
	}

	steps := []pipeline.Step{
		pipeline.NewStep(StepKickStart, c.kickStartStep),
		pipeline.NewStep(StepPlayExample, c.playExampleStep),
	}
	if err := c.runPipeline("kick_start", steps); err != nil {
		return err
	}
	c.setState(StateIdle)
	return nil
}

func (c *Conversation) kickStartStep(ctx context.Context, data pipeline.Data) pipeline.StepResult {
	c.setState(StateStarting)

	sel := c.Selection()
	instruction, err := c.o.personas.KickStart(sel.Language, sel.Topic)
	if err != nil {
		return pipeline.Failed(err)
	}

	// the history is only replaced once the opening reply arrived
	reply, err := c.complete(ctx, []entities.Turn{{User: instruction}}, c.o.tuning.KickStartTemperature)
	if err != nil {
		return pipeline.Failed(err)
	}
	c.transcript.Seed(instruction)
	if err := c.transcript.SetReply(reply); err != nil {
		return pipeline.Failed(err)
	}
	c.publishTranscript()
	c.setSubmitEnabled(true)
	return pipeline.Succeeded(reply)
}

// handlePracticeSubmit grades the capture against the current assignment and
// asks for the next one.
func (c *Conversation) handlePracticeSubmit() error {
	if err := c.requirePractice(CommandPracticeSubmit); err != nil {
		return err
	}
	c.mu.RLock()
	enabled := c.submitEnabled
	c.mu.RUnlock()
	if !enabled {
		return fmt.Errorf("%w: practice has not been started", domain.ErrInvalidTransition)
	}
	if c.capture == nil {
		return fmt.Errorf("%w: nothing recorded", domain.ErrInvalidTransition)
	}

	steps := []pipeline.Step{
		pipeline.NewStep(StepGrade, c.gradeStep),
		pipeline.NewStep(StepUser, c.gradedUserStep),
		pipeline.NewStep(StepBot, c.botStep),
		pipeline.NewStep(StepPlayExample, c.playExampleStep),
		c.clearStep(),
	}
	return c.runPipeline("practice_turn", steps)
}

// gradeStep scores the capture against the phrase of the latest assistant turn
func (c *Conversation) gradeStep(ctx context.Context, data pipeline.Data) pipeline.StepResult {
	c.setState(StateGrading)

	reference, ok := c.latestReference()
	if !ok {
		return pipeline.Failed(domain.ErrNoReferenceText)
	}

	raw, err := c.o.assessor.AssessPronunciation(ctx, c.capture, reference, c.captureConfig)
	if err != nil {
		return pipeline.Failed(err)
	}
	grades, err := entities.ParseAssessment(raw)
	if err != nil {
		return pipeline.Failed(err)
	}

	data[dataKeyGrades] = grades
	c.publish(Update{Kind: UpdateAssessment, Grades: grades})
	c.logger.Debug("Pronunciation graded", zap.String("reference", reference), zap.Int("words", len(grades)))
	return pipeline.Succeeded(grades)
}

// gradedUserStep appends the formatted grades and the recording as a pending turn
func (c *Conversation) gradedUserStep(ctx context.Context, data pipeline.Data) pipeline.StepResult {
	grades, _ := data[dataKeyGrades].([]entities.WordGrade)
	c.setState(StateAwaitingReply)
	c.transcript.Append(markup.Attach(entities.FormatGrades(grades), markup.AudioPlayer(c.capture)))
	c.publishTranscript()
	return pipeline.Succeeded(len(grades))
}

// botStep requests the whole reply, then reveals it one word at a time
func (c *Conversation) botStep(ctx context.Context, data pipeline.Data) pipeline.StepResult {
	reply, err := c.complete(ctx, c.transcript.Turns(), c.o.tuning.PracticeTemperature)
	if err != nil {
		return pipeline.Failed(err)
	}

	c.setState(StateReplying)
	if err := c.transcript.BeginReply(); err != nil {
		return pipeline.Failed(err)
	}
	c.publishTranscript()

	words := strings.Fields(reply)
	for i, word := range words {
		if i > 0 && c.o.tuning.RevealInterval > 0 {
			select {
			case <-ctx.Done():
				return pipeline.Failed(ctx.Err())
			case <-time.After(c.o.tuning.RevealInterval):
			}
		}
		if err := c.transcript.AppendReply(word + " "); err != nil {
			return pipeline.Failed(err)
		}
		c.publishTranscript()
	}
	return pipeline.Succeeded(len(words))
}

// playExampleStep voices the example phrase of the newest reply. A reply with
// no phrase fails the run and is left as it is.
func (c *Conversation) playExampleStep(ctx context.Context, data pipeline.Data) pipeline.StepResult {
	c.setState(StateSynthesizing)

	last, ok := c.transcript.Last()
	if !ok {
		return pipeline.Failed(domain.ErrMissingExample)
	}
	reply := last.Reply()
	example, ok := markup.ExtractReference(reply)
	if !ok {
		return pipeline.Failed(domain.ErrMissingExample)
	}

	audio, err := c.synthesize(ctx, example)
	if errors.Is(err, domain.ErrConfiguration) {
		return pipeline.Failed(err)
	}
	if err != nil {
		c.nonFatal("Example left without audio", err)
		return pipeline.Succeeded(example)
	}

	if err := c.transcript.SetReply(markup.Attach(reply, markup.AudioPlayer(audio))); err != nil {
		return pipeline.Failed(err)
	}
	c.publishTranscript()
	return pipeline.Succeeded(example)
}

// latestReference returns the phrase of the latest turn's reply. A pending
// or empty reply has no phrase.
func (c *Conversation) latestReference() (string, bool) {
	last, ok := c.transcript.Last()
	if !ok || last.Reply() == "" {
		return "", false
	}
	return markup.ExtractReference(last.Reply())
}

// complete asks for one whole reply to the composed turns
func (c *Conversation) complete(ctx context.Context, turns []entities.Turn, temperature float64) (string, error) {
	messages, err := c.o.composer.Compose(turns, c.Selection())
	if err != nil {
		return "", err
	}
	reply, err := c.o.llm.Complete(ctx, repositories.CompletionRequest{
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCompletionFailed, err)
	}
	return reply, nil
}
