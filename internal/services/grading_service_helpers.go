package services

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/quizforge/assessment-engine/internal/models"
)

// autoGradeRecord scores one question record from its frozen snapshot.
// Subjective types are left ungraded for a manual pass. An unanswered
// objective question scores zero.
func autoGradeRecord(record *models.QuestionRecord, partialCredit bool) error {
	var snapshot models.QuestionSnapshot
	if err := json.Unmarshal(record.Snapshot, &snapshot); err != nil {
		return fmt.Errorf("failed to decode question snapshot: %w", err)
	}

	if !snapshot.Type.IsAutoGradeable() {
		return nil
	}

	now := time.Now()

	if len(record.Response) == 0 {
		zero := 0.0
		incorrect := false
		record.PointsEarned = &zero
		record.IsCorrect = &incorrect
		record.GradedAt = &now
		return nil
	}

	fraction, correct, err := scoreResponse(&snapshot, json.RawMessage(record.Response), partialCredit)
	if err != nil {
		return err
	}

	earned := roundScore(fraction * record.PointsPossible)
	record.PointsEarned = &earned
	record.IsCorrect = &correct
	record.GradedAt = &now
	// GradedBy stays nil for auto-graded records.
	return nil
}

// scoreResponse dispatches on question type and returns the earned
// fraction in [0, 1] plus full correctness. A response the engine cannot
// decode scores zero rather than failing the submission.
func scoreResponse(snapshot *models.QuestionSnapshot, response json.RawMessage, partialCredit bool) (float64, bool, error) {
	switch snapshot.Type {
	case models.MultipleChoice:
		return gradeMultipleChoice(snapshot.Content, response, partialCredit)
	case models.TrueFalse:
		return gradeTrueFalse(snapshot.Content, response)
	case models.ShortAnswer:
		return gradeShortAnswer(snapshot.Content, response)
	case models.FillInBlank:
		return gradeFillBlank(snapshot.Content, response, partialCredit)
	case models.Essay:
		return 0, false, ErrGradingNotAllowed
	default:
		return 0, false, fmt.Errorf("unsupported question type: %s", snapshot.Type)
	}
}

func gradeMultipleChoice(content json.RawMessage, response json.RawMessage, partialCredit bool) (float64, bool, error) {
	var mc models.MultipleChoiceContent
	if err := json.Unmarshal(content, &mc); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	// Responses arrive as a list of option IDs, or a bare ID for
	// single-select questions. Selections are compared as a set, so a
	// repeated option ID counts once.
	var selected []string
	if err := json.Unmarshal(response, &selected); err != nil {
		var single string
		if err := json.Unmarshal(response, &single); err != nil {
			return 0, false, nil
		}
		selected = []string{single}
	}
	selected = uniqueStrings(selected)

	correctAnswers := mc.CorrectAnswers

	if reflect.DeepEqual(sortStrings(selected), sortStrings(correctAnswers)) {
		return 1.0, true, nil
	}

	// Partial credit for multi-select: (correct - incorrect) / total
	// correct, clamped to [0, 1].
	if partialCredit && mc.MultipleCorrect && len(correctAnswers) > 1 {
		correctSet := make(map[string]bool, len(correctAnswers))
		for _, c := range correctAnswers {
			correctSet[c] = true
		}

		correct := 0
		incorrect := 0
		for _, a := range selected {
			if correctSet[a] {
				correct++
			} else {
				incorrect++
			}
		}

		score := float64(correct-incorrect) / float64(len(correctAnswers))
		return math.Min(1, math.Max(0, score)), false, nil
	}

	return 0, false, nil
}

func gradeTrueFalse(content json.RawMessage, response json.RawMessage) (float64, bool, error) {
	var tf models.TrueFalseContent
	if err := json.Unmarshal(content, &tf); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	var answer bool
	if err := json.Unmarshal(response, &answer); err != nil {
		return 0, false, nil
	}

	if answer == tf.CorrectAnswer {
		return 1.0, true, nil
	}

	return 0, false, nil
}

func gradeShortAnswer(content json.RawMessage, response json.RawMessage) (float64, bool, error) {
	var sa models.ShortAnswerContent
	if err := json.Unmarshal(content, &sa); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	var answer string
	if err := json.Unmarshal(response, &answer); err != nil {
		return 0, false, nil
	}

	for _, accepted := range sa.AcceptedAnswers {
		if compareStrings(answer, accepted, sa.CaseSensitive) {
			return 1.0, true, nil
		}
	}

	return 0, false, nil
}

func gradeFillBlank(content json.RawMessage, response json.RawMessage, partialCredit bool) (float64, bool, error) {
	var fb models.FillBlankContent
	if err := json.Unmarshal(content, &fb); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal question content: %w", err)
	}

	var answers map[string]string
	if err := json.Unmarshal(response, &answers); err != nil {
		return 0, false, nil
	}

	totalPoints := 0
	earnedPoints := 0
	allCorrect := true

	for blankID, blankDef := range fb.Blanks {
		totalPoints += blankDef.Points

		given, exists := answers[blankID]
		if !exists {
			allCorrect = false
			continue
		}

		correct := false
		for _, accepted := range blankDef.AcceptedAnswers {
			if compareStrings(given, accepted, fb.CaseSensitive) {
				correct = true
				break
			}
		}

		if correct {
			earnedPoints += blankDef.Points
		} else {
			allCorrect = false
		}
	}

	if totalPoints == 0 {
		return 0, false, nil
	}

	if allCorrect {
		return 1.0, true, nil
	}

	if partialCredit {
		return float64(earnedPoints) / float64(totalPoints), false, nil
	}

	return 0, false, nil
}

// aggregateScores recomputes the attempt totals from its records. Ungraded
// records count toward the possible total but contribute no points, and
// pass/fail stays undecided until every record is graded.
func aggregateScores(attempt *models.AssessmentAttempt, passingScore float64) {
	var raw, possible float64
	complete := true

	for i := range attempt.Questions {
		record := &attempt.Questions[i]
		possible += record.PointsPossible
		if record.PointsEarned != nil {
			raw += *record.PointsEarned
		} else {
			complete = false
		}
	}

	attempt.RawScore = roundScore(raw)
	attempt.PossibleScore = possible
	if possible > 0 {
		attempt.PercentageScore = roundScore(raw / possible * 100)
	} else {
		attempt.PercentageScore = 0
	}

	attempt.GradingComplete = complete
	attempt.RequiresManualGrading = !complete
	if complete {
		passed := attempt.PercentageScore >= passingScore
		attempt.Passed = &passed
	} else {
		attempt.Passed = nil
	}
}

func compareStrings(a, b string, caseSensitive bool) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	return a == b
}

func uniqueStrings(arr []string) []string {
	seen := make(map[string]bool, len(arr))
	out := make([]string, 0, len(arr))
	for _, s := range arr {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sortStrings(arr []string) []string {
	sorted := make([]string, len(arr))
	copy(sorted, arr)
	sort.Strings(sorted)
	return sorted
}

// roundScore keeps scores stable at two decimal places.
func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
