// Package config loads process configuration from an optional .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Provider names per adapter kind
var (
	LLMProviders      = []string{"openai", "gemini", "mock"}
	STTProviders      = []string{"azure", "google", "mock"}
	TTSProviders      = []string{"azure", "elevenlabs", "mock"}
	AssessorProviders = []string{"azure", "mock"}
	LogLevels         = []string{"debug", "info", "warn", "error"}
	LogFormats        = []string{"json", "console"}
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	SessionSecret      string        `env:"SESSION_SECRET"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`

	// PersonaFile overrides the embedded persona catalog when set.
	PersonaFile string `env:"PERSONA_FILE"`

	LLM      LLMConfig
	Tuning   TuningConfig
	Speech   SpeechConfig
	Eleven   ElevenLabsConfig
	Pipeline PipelineConfig
}

type LLMConfig struct {
	Provider      string `env:"LLM_PROVIDER" envDefault:"openai"`
	Model         string `env:"LLM_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

// TuningConfig holds sampling and pacing constants of the two flows.
type TuningConfig struct {
	TutorTemperature     float64       `env:"TUTOR_TEMPERATURE" envDefault:"0.8"`
	KickStartTemperature float64       `env:"KICKSTART_TEMPERATURE" envDefault:"0.8"`
	PracticeTemperature  float64       `env:"PRACTICE_TEMPERATURE" envDefault:"0.5"`
	RevealInterval       time.Duration `env:"REVEAL_INTERVAL" envDefault:"100ms"`
}

type SpeechConfig struct {
	STTProvider      string `env:"STT_PROVIDER" envDefault:"azure"`
	TTSProvider      string `env:"TTS_PROVIDER" envDefault:"azure"`
	AssessorProvider string `env:"ASSESSOR_PROVIDER" envDefault:"azure"`
	Key              string `env:"SPEECH_KEY"`
	Region           string `env:"SPEECH_REGION"`
	// Endpoint replaces the regional Azure host, mainly for tests and proxies.
	Endpoint string `env:"SPEECH_ENDPOINT"`
}

type ElevenLabsConfig struct {
	APIKey       string  `env:"ELEVEN_LABS_API_KEY"`
	APIBaseURL   string  `env:"ELEVEN_LABS_API_BASE_URL"`
	VoiceID      string  `env:"ELEVEN_LABS_VOICE_ID"`
	ModelID      string  `env:"ELEVEN_LABS_MODEL_ID"`
	OutputFormat string  `env:"ELEVEN_LABS_OUTPUT_FORMAT"`
	Stability    float64 `env:"ELEVEN_LABS_STABILITY"`
	Clarity      float64 `env:"ELEVEN_LABS_CLARITY"`
}

type PipelineConfig struct {
	// Timeout bounds one pipeline run; zero leaves adapter calls unbounded.
	Timeout   time.Duration `env:"PIPELINE_TIMEOUT" envDefault:"0s"`
	Retention int           `env:"PIPELINE_RETENTION" envDefault:"256"`
}

// Load reads configuration from an .env file and environment variables.
// Priority: environment variables > .env file > struct defaults.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %q: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	oneOf := func(key, value string, valid []string) {
		if !slices.Contains(valid, value) {
			errs = append(errs, fmt.Errorf("%s %q is invalid; valid values: %v", key, value, valid))
		}
	}
	required := func(key, value, reason string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required when %s", key, reason))
		}
	}

	oneOf("LOG_LEVEL", cfg.LogLevel, LogLevels)
	oneOf("LOG_FORMAT", cfg.LogFormat, LogFormats)
	oneOf("LLM_PROVIDER", cfg.LLM.Provider, LLMProviders)
	oneOf("STT_PROVIDER", cfg.Speech.STTProvider, STTProviders)
	oneOf("TTS_PROVIDER", cfg.Speech.TTSProvider, TTSProviders)
	oneOf("ASSESSOR_PROVIDER", cfg.Speech.AssessorProvider, AssessorProviders)

	switch cfg.LLM.Provider {
	case "openai":
		required("OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey, "LLM_PROVIDER is openai")
	case "gemini":
		required("GEMINI_API_KEY", cfg.LLM.GeminiAPIKey, "LLM_PROVIDER is gemini")
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("LLM_MODEL must not be empty"))
	}

	if cfg.UsesAzure() {
		required("SPEECH_KEY", cfg.Speech.Key, "an azure speech provider is selected")
		if cfg.Speech.Endpoint == "" {
			required("SPEECH_REGION", cfg.Speech.Region, "an azure speech provider is selected")
		}
	}
	if cfg.Speech.TTSProvider == "elevenlabs" {
		required("ELEVEN_LABS_API_KEY", cfg.Eleven.APIKey, "TTS_PROVIDER is elevenlabs")
	}

	for key, temp := range map[string]float64{
		"TUTOR_TEMPERATURE":     cfg.Tuning.TutorTemperature,
		"KICKSTART_TEMPERATURE": cfg.Tuning.KickStartTemperature,
		"PRACTICE_TEMPERATURE":  cfg.Tuning.PracticeTemperature,
	} {
		if temp < 0 || temp > 2 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 2]", key, temp))
		}
	}
	if cfg.Tuning.RevealInterval < 0 {
		errs = append(errs, fmt.Errorf("REVEAL_INTERVAL %s must not be negative", cfg.Tuning.RevealInterval))
	}
	if cfg.Pipeline.Timeout < 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_TIMEOUT %s must not be negative", cfg.Pipeline.Timeout))
	}
	if cfg.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL %s must be positive", cfg.SessionTTL))
	}
	if cfg.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT %s must not be negative", cfg.SessionIdleTimeout))
	}

	return errors.Join(errs...)
}

// UsesAzure reports whether any speech adapter talks to Azure Speech.
func (c *Config) UsesAzure() bool {
	return c.Speech.STTProvider == "azure" || c.Speech.TTSProvider == "azure" || c.Speech.AssessorProvider == "azure"
}
