package services

import (
	"encoding/json"
	"time"

	"github.com/quizforge/assessment-engine/internal/models"
)

// viewOptions controls how much of an attempt a caller may see.
type viewOptions struct {
	includeScores bool
	revealAnswers bool
}

// graderView sees everything, including accepted-answer data.
func graderView() viewOptions {
	return viewOptions{includeScores: true, revealAnswers: true}
}

// learnerView applies the assessment's feedback policy to the owner's view
// of their own attempt.
func learnerView(assessment *models.Assessment, status models.AttemptStatus) viewOptions {
	if assessment == nil {
		return viewOptions{}
	}

	afterSubmit := status == models.AttemptSubmitted || status == models.AttemptGraded

	opts := viewOptions{
		includeScores: assessment.ShowScore && afterSubmit,
	}

	switch assessment.RevealAnswers {
	case models.RevealAfterSubmit:
		opts.revealAnswers = afterSubmit
	case models.RevealAfterGrading:
		opts.revealAnswers = status == models.AttemptGraded
	default:
		opts.revealAnswers = false
	}

	return opts
}

// buildAttemptResponse projects an attempt onto the caller's view.
func buildAttemptResponse(attempt *models.AssessmentAttempt, assessment *models.Assessment, opts viewOptions) *AttemptResponse {
	resp := &AttemptResponse{
		ID:               attempt.ID,
		AssessmentID:     attempt.AssessmentID,
		LearnerID:        attempt.LearnerID,
		AttemptNumber:    attempt.AttemptNumber,
		Status:           attempt.Status,
		StartedAt:        attempt.StartedAt,
		SubmittedAt:      attempt.SubmittedAt,
		TimeLimitSeconds: attempt.TimeLimitSeconds,
		TimeSpentSeconds: attempt.TimeSpentSeconds,
		GradingComplete:  attempt.GradingComplete,

		RequiresManualGrading: attempt.RequiresManualGrading,
	}

	if assessment != nil {
		resp.AssessmentTitle = assessment.Title
		if !assessment.ShowTimer {
			resp.TimeLimitSeconds = nil
		}
	}

	if attempt.Status == models.AttemptInProgress && resp.TimeLimitSeconds != nil {
		remaining := *attempt.TimeLimitSeconds - int(time.Since(attempt.StartedAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp.TimeRemaining = &remaining
	}

	if opts.includeScores {
		resp.RawScore = &attempt.RawScore
		resp.PossibleScore = &attempt.PossibleScore
		resp.PercentageScore = &attempt.PercentageScore
		resp.Passed = attempt.Passed
	}

	resp.Questions = make([]QuestionRecordView, 0, len(attempt.Questions))
	for i := range attempt.Questions {
		resp.Questions = append(resp.Questions, buildQuestionView(&attempt.Questions[i], opts))
	}

	return resp
}

func buildQuestionView(record *models.QuestionRecord, opts viewOptions) QuestionRecordView {
	var snapshot models.QuestionSnapshot
	_ = json.Unmarshal(record.Snapshot, &snapshot)

	view := QuestionRecordView{
		Position:   record.Position,
		QuestionID: record.QuestionID,
		Type:       snapshot.Type,
		Text:       snapshot.Text,
		Points:     record.PointsPossible,
		Response:   json.RawMessage(record.Response),
	}

	if opts.revealAnswers {
		view.Content = snapshot.Content
		view.Explanation = snapshot.Explanation
		view.IsCorrect = record.IsCorrect
		view.Feedback = record.Feedback
		view.GradedBy = record.GradedBy
		view.GradedAt = record.GradedAt
	} else {
		view.Content = sanitizeSnapshotContent(snapshot.Type, snapshot.Content)
	}

	if opts.includeScores {
		view.PointsEarned = record.PointsEarned
	}

	return view
}

// sanitizeSnapshotContent strips accepted-answer data from the frozen
// content before it reaches a learner who is not allowed to see it.
func sanitizeSnapshotContent(qType models.QuestionType, content json.RawMessage) json.RawMessage {
	if len(content) == 0 {
		return nil
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(content, &payload); err != nil {
		return json.RawMessage("{}")
	}

	switch qType {
	case models.MultipleChoice:
		delete(payload, "correct_answers")
	case models.TrueFalse:
		delete(payload, "correct_answer")
	case models.ShortAnswer:
		delete(payload, "accepted_answers")
	case models.FillInBlank:
		if blanks, ok := payload["blanks"].(map[string]interface{}); ok {
			for id, blank := range blanks {
				if blankMap, ok := blank.(map[string]interface{}); ok {
					delete(blankMap, "accepted_answers")
					blanks[id] = blankMap
				}
			}
		}
	}

	sanitized, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage("{}")
	}
	return sanitized
}
