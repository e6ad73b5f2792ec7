package entities

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoHypothesis is returned when an assessment carries no recognized hypothesis.
var ErrNoHypothesis = errors.New("assessment has no recognized hypothesis")

// PronunciationHeader starts every graded user turn.
const PronunciationHeader = "Pronunciation score:\n"

// WordGrade is the accuracy of a single recognized word, 0 to 100.
type WordGrade struct {
	Word          string  `json:"word"`
	AccuracyScore float64 `json:"accuracy_score"`

	// display is the score as the assessment payload wrote it
	display string
}

// assessmentResult is the detailed JSON result of a pronunciation assessment.
// Words carry their score under PronunciationAssessment; older REST payloads
// put AccuracyScore directly on the word.
type assessmentResult struct {
	RecognitionStatus string `json:"RecognitionStatus,omitempty"`
	NBest             []struct {
		Words []struct {
			Word                    string      `json:"Word"`
			AccuracyScore           json.Number `json:"AccuracyScore,omitempty"`
			PronunciationAssessment *struct {
				AccuracyScore json.Number `json:"AccuracyScore"`
			} `json:"PronunciationAssessment,omitempty"`
		} `json:"Words"`
	} `json:"NBest"`
}

// ParseAssessment extracts per-word accuracy from the best hypothesis.
func ParseAssessment(raw []byte) ([]WordGrade, error) {
	var result assessmentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	if len(result.NBest) == 0 {
		return nil, ErrNoHypothesis
	}

	words := result.NBest[0].Words
	grades := make([]WordGrade, 0, len(words))
	for _, w := range words {
		score := w.AccuracyScore
		if w.PronunciationAssessment != nil {
			score = w.PronunciationAssessment.AccuracyScore
		}
		grade := WordGrade{Word: w.Word}
		if score != "" {
			value, err := score.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid score for %q: %w", w.Word, err)
			}
			grade.AccuracyScore = value
			grade.display = formatNumber(score, value)
		}
		grades = append(grades, grade)
	}
	return grades, nil
}

// FormatGrades renders grades as the text of a graded user turn:
// the header followed by one "word: score" line per word. Parsed grades keep
// the payload's number kind: an integer token prints as "75", a decimal one
// as "75.0".
func FormatGrades(grades []WordGrade) string {
	lines := make([]string, len(grades))
	for i, g := range grades {
		score := g.display
		if score == "" {
			score = FormatScore(g.AccuracyScore)
		}
		lines[i] = g.Word + ": " + score
	}
	return PronunciationHeader + strings.Join(lines, "\n")
}

// FormatScore prints a score with the shortest exact decimal form, always
// keeping one fractional digit (75 -> "75.0", 87.25 -> "87.25").
func FormatScore(score float64) string {
	s := strconv.FormatFloat(score, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

// formatNumber prints integer tokens as written and decimal tokens in float form
func formatNumber(token json.Number, value float64) string {
	if strings.ContainsAny(string(token), ".eE") {
		return FormatScore(value)
	}
	return string(token)
}
