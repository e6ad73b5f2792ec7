package repositories

import "context"

// PronunciationAssessor grades captured speech against a reference phrase
type PronunciationAssessor interface {
	// AssessPronunciation returns the detailed assessment result as raw JSON.
	// Word level scores live at NBest[0].Words[].PronunciationAssessment.AccuracyScore.
	AssessPronunciation(ctx context.Context, audioData []byte, referenceText string, config AudioConfig) ([]byte, error)
}
