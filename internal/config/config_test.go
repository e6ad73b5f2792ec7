package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func offlineEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("STT_PROVIDER", "mock")
	t.Setenv("TTS_PROVIDER", "mock")
	t.Setenv("ASSESSOR_PROVIDER", "mock")
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		offlineEnv(t)

		cfg, err := Load("nonexistent.env")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("Port = %q, want 8080", cfg.Port)
		}
		if cfg.LLM.Model != "gpt-3.5-turbo" {
			t.Errorf("LLM.Model = %q, want gpt-3.5-turbo", cfg.LLM.Model)
		}
		if cfg.Tuning.TutorTemperature != 0.8 || cfg.Tuning.KickStartTemperature != 0.8 {
			t.Errorf("Unexpected tutoring temperatures: %+v", cfg.Tuning)
		}
		if cfg.Tuning.PracticeTemperature != 0.5 {
			t.Errorf("PracticeTemperature = %v, want 0.5", cfg.Tuning.PracticeTemperature)
		}
		if cfg.Tuning.RevealInterval != 100*time.Millisecond {
			t.Errorf("RevealInterval = %s, want 100ms", cfg.Tuning.RevealInterval)
		}
		if cfg.Pipeline.Timeout != 0 {
			t.Errorf("Pipeline.Timeout = %s, want 0", cfg.Pipeline.Timeout)
		}
		if cfg.SessionIdleTimeout != 30*time.Minute {
			t.Errorf("SessionIdleTimeout = %s, want 30m", cfg.SessionIdleTimeout)
		}
	})

	t.Run("env_file", func(t *testing.T) {
		offlineEnv(t)
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("REVEAL_INTERVAL=250ms\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Unsetenv("REVEAL_INTERVAL") })

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Tuning.RevealInterval != 250*time.Millisecond {
			t.Errorf("RevealInterval = %s, want 250ms", cfg.Tuning.RevealInterval)
		}
	})

	t.Run("env_wins_over_file", func(t *testing.T) {
		offlineEnv(t)
		t.Setenv("PORT", "9090")
		path := filepath.Join(t.TempDir(), "test.env")
		if err := os.WriteFile(path, []byte("PORT=7070\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Port != "9090" {
			t.Errorf("Port = %q, want 9090", cfg.Port)
		}
	})
}

func TestValidate(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("STT_PROVIDER", "azure")
	t.Setenv("TTS_PROVIDER", "elevenlabs")
	t.Setenv("ASSESSOR_PROVIDER", "whisper")
	t.Setenv("PRACTICE_TEMPERATURE", "3")
	t.Setenv("LOG_LEVEL", "verbose")
	for _, key := range []string{"OPENAI_API_KEY", "SPEECH_KEY", "SPEECH_REGION", "SPEECH_ENDPOINT", "ELEVEN_LABS_API_KEY"} {
		t.Setenv(key, "")
	}

	_, err := Load("nonexistent.env")
	if err == nil {
		t.Fatal("Expected validation errors")
	}

	for _, want := range []string{
		"OPENAI_API_KEY is required",
		"SPEECH_KEY is required",
		"SPEECH_REGION is required",
		"ELEVEN_LABS_API_KEY is required",
		`ASSESSOR_PROVIDER "whisper" is invalid`,
		"PRACTICE_TEMPERATURE 3.00 is out of range",
		`LOG_LEVEL "verbose" is invalid`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got:\n%v", want, err)
		}
	}
}

func TestValidateAzureEndpointOverride(t *testing.T) {
	cfg := &Config{
		LogLevel:   "info",
		LogFormat:  "json",
		SessionTTL: time.Hour,
		LLM:        LLMConfig{Provider: "mock", Model: "m"},
		Speech: SpeechConfig{
			STTProvider:      "azure",
			TTSProvider:      "mock",
			AssessorProvider: "mock",
			Key:              "k",
			Endpoint:         "http://localhost:1234",
		},
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected endpoint to replace region, got %v", err)
	}
	if !cfg.UsesAzure() {
		t.Error("Expected UsesAzure to be true")
	}
}
