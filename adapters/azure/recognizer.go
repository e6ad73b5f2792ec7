package azure

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/satriahrh/kaiwa/domain"
	"github.com/satriahrh/kaiwa/domain/repositories"
)

// Recognition statuses reported by the short-audio API.
const (
	statusSuccess               = "Success"
	statusNoMatch               = "NoMatch"
	statusInitialSilenceTimeout = "InitialSilenceTimeout"
	statusBabbleTimeout         = "BabbleTimeout"
	statusError                 = "Error"
)

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		Display string `json:"Display"`
	} `json:"NBest"`
}

// Recognizer implements SpeechToText and PronunciationAssessor
type Recognizer struct {
	client *Client
}

var (
	_ repositories.SpeechToText          = (*Recognizer)(nil)
	_ repositories.PronunciationAssessor = (*Recognizer)(nil)
)

// NewRecognizer creates a recognizer on top of a shared client
func NewRecognizer(client *Client) *Recognizer {
	return &Recognizer{client: client}
}

// TranscribeAudio implements SpeechToText
func (r *Recognizer) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	body, err := r.recognize(ctx, audioData, config, nil)
	if err != nil {
		return "", err
	}

	var result recognitionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode recognition result: %w", err)
	}
	if result.DisplayText != "" {
		return result.DisplayText, nil
	}
	if len(result.NBest) > 0 {
		return result.NBest[0].Display, nil
	}
	return "", domain.ErrRecognitionEmpty
}

// AssessPronunciation implements PronunciationAssessor. The returned JSON is
// the detailed recognition result with per-word PronunciationAssessment.
func (r *Recognizer) AssessPronunciation(ctx context.Context, audioData []byte, referenceText string, config repositories.AudioConfig) ([]byte, error) {
	params, err := json.Marshal(map[string]any{
		"ReferenceText": referenceText,
		"GradingSystem": "HundredMark",
		"Granularity":   "Phoneme",
		"Dimension":     "Comprehensive",
		"EnableMiscue":  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assessment parameters: %w", err)
	}

	r.client.logger.Info("Assessing pronunciation",
		zap.String("referenceText", referenceText),
		zap.String("language", config.Language),
		zap.Int("audioSize", len(audioData)))

	return r.recognize(ctx, audioData, config, map[string]string{
		"Pronunciation-Assessment": base64.StdEncoding.EncodeToString(params),
	})
}

// recognize posts one utterance and maps recognition statuses to domain errors.
func (r *Recognizer) recognize(ctx context.Context, audioData []byte, config repositories.AudioConfig, extra map[string]string) ([]byte, error) {
	query := url.Values{}
	query.Set("language", config.Language)
	query.Set("format", "detailed")

	headers := map[string]string{
		"Content-Type": contentType(config.Encoding, config.SampleRate),
		"Accept":       "application/json",
	}
	for k, v := range extra {
		headers[k] = v
	}

	status, body, err := r.client.post(ctx, r.client.recognitionURL+"?"+query.Encode(), audioData, headers)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("recognition interrupted: %w", ctx.Err())
		}
		return nil, &domain.CancellationError{Stage: domain.StageRecognition, Reason: domain.CancellationReasonError, Details: err.Error()}
	}
	if status != http.StatusOK {
		return nil, &domain.CancellationError{
			Stage:   domain.StageRecognition,
			Reason:  domain.CancellationReasonError,
			Details: fmt.Sprintf("status %d: %s", status, string(body)),
		}
	}

	var result recognitionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode recognition result: %w", err)
	}

	switch result.RecognitionStatus {
	case statusSuccess:
		return body, nil
	case statusNoMatch, statusInitialSilenceTimeout, statusBabbleTimeout:
		return nil, domain.ErrRecognitionEmpty
	case statusError:
		return nil, &domain.CancellationError{Stage: domain.StageRecognition, Reason: domain.CancellationReasonError, Details: "service reported an error"}
	default:
		return nil, &domain.CancellationError{
			Stage:   domain.StageRecognition,
			Reason:  domain.CancellationReasonEndOfStream,
			Details: "unexpected status " + result.RecognitionStatus,
		}
	}
}
