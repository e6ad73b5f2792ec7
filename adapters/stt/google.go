package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

// recognizeClient is the subset of the Speech client the adapter uses
type recognizeClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleSpeechToText implements SpeechToText for Google Cloud using
// synchronous recognition of one captured utterance.
type GoogleSpeechToText struct {
	client recognizeClient
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a client with application default credentials
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

// TranscribeAudio implements SpeechToText
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	req, err := buildRecognizeRequest(audioData, config)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("recognition interrupted: %w", ctx.Err())
		}
		return "", &domain.CancellationError{Stage: domain.StageRecognition, Reason: domain.CancellationReasonError, Details: err.Error()}
	}

	text := transcriptOf(resp)
	g.logger.Debug("Recognition finished",
		zap.String("language", config.Language),
		zap.Int("audioSize", len(audioData)),
		zap.Int("textLength", len(text)))
	if text == "" {
		return "", domain.ErrRecognitionEmpty
	}
	return text, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func buildRecognizeRequest(audioData []byte, config repositories.AudioConfig) (*speechpb.RecognizeRequest, error) {
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		Encoding:                   encoding,
		LanguageCode:               config.Language,
		EnableAutomaticPunctuation: true,
	}
	// WAV and Opus containers carry their own rate
	if config.SampleRate > 0 && encoding != speechpb.RecognitionConfig_WEBM_OPUS {
		recognitionConfig.SampleRateHertz = int32(config.SampleRate)
	}

	return &speechpb.RecognizeRequest{
		Config: recognitionConfig,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	}, nil
}

// transcriptOf joins the best alternative of every result
func transcriptOf(resp *speechpb.RecognizeResponse) string {
	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 && alts[0].GetTranscript() != "" {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	return strings.Join(parts, " ")
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", repositories.EncodingLinear16:
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case repositories.EncodingOggOpus:
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case repositories.EncodingWebmOpus:
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	case repositories.EncodingMP3:
		return speechpb.RecognitionConfig_MP3, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
