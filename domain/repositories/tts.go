package repositories

import "context"

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// SynthesizeAudio renders text as MP3 audio with the given voice
	SynthesizeAudio(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)
}

// VoiceConfig selects the synthesis voice
type VoiceConfig struct {
	Language string `json:"language"`
	Voice    string `json:"voice"`
}
