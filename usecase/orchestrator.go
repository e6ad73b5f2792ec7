package usecase

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/domain/repositories"
	"github.com/satriahrh/kaiwa/internal/composer"
	"github.com/satriahrh/kaiwa/internal/pipeline"
)

// Personas is the part of the persona catalog the orchestrator reads
type Personas interface {
	composer.PromptSource
	KickStart(language, topic string) (string, error)
	Voice(sel entities.Selection, provider string) (string, error)
	Validate(sel entities.Selection) error
	DefaultSelection(mode entities.Mode) entities.Selection
}

// Tuning holds sampling and pacing constants of the two flows
type Tuning struct {
	TutorTemperature     float64
	KickStartTemperature float64
	PracticeTemperature  float64
	// RevealInterval paces the word-by-word reveal of practice replies
	RevealInterval time.Duration
	// PipelineTimeout bounds a whole run; zero means unbounded
	PipelineTimeout time.Duration
}

// DefaultTuning matches the values the tutor personas were written for
var DefaultTuning = Tuning{
	TutorTemperature:     0.8,
	KickStartTemperature: 0.8,
	PracticeTemperature:  0.5,
	RevealInterval:       100 * time.Millisecond,
}

// Config wires the orchestrator to its collaborators
type Config struct {
	LLM      repositories.LargeLanguageModel
	STT      repositories.SpeechToText
	TTS      repositories.TextToSpeech
	Assessor repositories.PronunciationAssessor
	Personas Personas
	// VoiceProvider selects which persona voice column to use, e.g. "azure"
	VoiceProvider string
	Pipelines     *pipeline.Manager
	Tuning        Tuning
	Logger        *zap.Logger
}

// Orchestrator holds the shared collaborators and spawns one Conversation
// per browser session.
type Orchestrator struct {
	llm           repositories.LargeLanguageModel
	stt           repositories.SpeechToText
	tts           repositories.TextToSpeech
	assessor      repositories.PronunciationAssessor
	personas      Personas
	composer      *composer.Composer
	voiceProvider string
	pipelines     *pipeline.Manager
	tuning        Tuning
	logger        *zap.Logger
}

// NewOrchestrator validates cfg and creates an orchestrator
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.LLM == nil {
		errs = append(errs, errors.New("completion adapter is required"))
	}
	if cfg.STT == nil {
		errs = append(errs, errors.New("recognition adapter is required"))
	}
	if cfg.TTS == nil {
		errs = append(errs, errors.New("synthesis adapter is required"))
	}
	if cfg.Assessor == nil {
		errs = append(errs, errors.New("pronunciation adapter is required"))
	}
	if cfg.Personas == nil {
		errs = append(errs, errors.New("persona catalog is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pipelines := cfg.Pipelines
	if pipelines == nil {
		pipelines = pipeline.NewManager(logger, pipeline.DefaultRetention)
	}

	return &Orchestrator{
		llm:           cfg.LLM,
		stt:           cfg.STT,
		tts:           cfg.TTS,
		assessor:      cfg.Assessor,
		personas:      cfg.Personas,
		composer:      composer.New(cfg.Personas),
		voiceProvider: cfg.VoiceProvider,
		pipelines:     pipelines,
		tuning:        cfg.Tuning,
		logger:        logger,
	}, nil
}

// Pipelines exposes the run history for inspection
func (o *Orchestrator) Pipelines() *pipeline.Manager {
	return o.pipelines
}

// DefaultSelection returns the preselected persona for a mode
func (o *Orchestrator) DefaultSelection(mode entities.Mode) entities.Selection {
	return o.personas.DefaultSelection(mode)
}

// definition is a pipeline assembled for a single run
type definition struct {
	id      string
	steps   []pipeline.Step
	timeout time.Duration
}

func (d *definition) ID() string             { return d.id }
func (d *definition) Steps() []pipeline.Step { return d.steps }
func (d *definition) Timeout() time.Duration { return d.timeout }
