package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts one captured utterance to text.
	// It returns "" with domain.ErrRecognitionEmpty when nothing was heard.
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// AudioConfig describes captured audio
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// Supported capture encodings
const (
	EncodingLinear16 = "LINEAR16"
	EncodingWebmOpus = "WEBM_OPUS"
	EncodingOggOpus  = "OGG_OPUS"
	EncodingMP3      = "MP3"
)
