package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/quizforge/assessment-engine/internal/events"
	"github.com/quizforge/assessment-engine/internal/models"
)

func startAttempt(t *testing.T, env *testEnv, assessmentID uint, learnerID string) *AttemptResponse {
	t.Helper()
	resp, err := env.attempts.Start(context.Background(), &StartAttemptRequest{AssessmentID: assessmentID}, learnerID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return resp
}

func TestStartAttempt(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	resp := startAttempt(t, env, 1, "learner-1")

	if resp.Status != models.AttemptInProgress {
		t.Errorf("status = %s, want in_progress", resp.Status)
	}
	if resp.AttemptNumber != 1 {
		t.Errorf("attempt number = %d, want 1", resp.AttemptNumber)
	}
	if len(resp.Questions) != 2 {
		t.Errorf("got %d questions, want 2", len(resp.Questions))
	}

	published := env.publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.AttemptStarted {
		t.Errorf("expected one attempt.started event, got %+v", published)
	}
}

func TestStartAttemptRedactsAnswers(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	resp := startAttempt(t, env, 1, "learner-1")

	for _, q := range resp.Questions {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(q.Content, &payload); err != nil {
			t.Fatalf("unmarshal question content: %v", err)
		}
		if _, ok := payload["correct_answer"]; ok {
			t.Error("correct_answer leaked into a fresh attempt")
		}
		if _, ok := payload["correct_answers"]; ok {
			t.Error("correct_answers leaked into a fresh attempt")
		}
	}
}

func TestStartAttemptRejectsSecondActive(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	startAttempt(t, env, 1, "learner-1")

	_, err := env.attempts.Start(context.Background(), &StartAttemptRequest{AssessmentID: 1}, "learner-1")
	if !errors.Is(err, ErrAttemptAlreadyActive) {
		t.Fatalf("got %v, want ErrAttemptAlreadyActive", err)
	}

	// A different learner is unaffected.
	if _, err := env.attempts.Start(context.Background(), &StartAttemptRequest{AssessmentID: 1}, "learner-2"); err != nil {
		t.Fatalf("second learner blocked: %v", err)
	}
}

func TestStartAttemptEnforcesLimit(t *testing.T) {
	env := newTestEnv(t)
	assessment := seedAssessment(env, 1, 2)
	assessment.MaxAttempts = 2
	seedObjectivePool(t, env)

	for i := 0; i < 2; i++ {
		resp := startAttempt(t, env, 1, "learner-1")
		if _, err := env.attempts.Submit(context.Background(), resp.ID, "learner-1"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	_, err := env.attempts.Start(context.Background(), &StartAttemptRequest{AssessmentID: 1}, "learner-1")
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("got %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestStartAttemptUnlimitedWhenZero(t *testing.T) {
	env := newTestEnv(t)
	assessment := seedAssessment(env, 1, 2)
	assessment.MaxAttempts = 0
	seedObjectivePool(t, env)

	for i := 0; i < 5; i++ {
		resp := startAttempt(t, env, 1, "learner-1")
		if resp.AttemptNumber != i+1 {
			t.Errorf("attempt number = %d, want %d", resp.AttemptNumber, i+1)
		}
		if _, err := env.attempts.Submit(context.Background(), resp.ID, "learner-1"); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
}

func TestStartAttemptUnpublishedAssessment(t *testing.T) {
	env := newTestEnv(t)
	assessment := seedAssessment(env, 1, 2)
	assessment.Published = false
	seedObjectivePool(t, env)

	_, err := env.attempts.Start(context.Background(), &StartAttemptRequest{AssessmentID: 1}, "learner-1")
	if !errors.Is(err, ErrAssessmentNotFound) {
		t.Fatalf("got %v, want ErrAssessmentNotFound", err)
	}
}

func TestStartAttemptFreezesTimeLimit(t *testing.T) {
	env := newTestEnv(t)
	assessment := seedAssessment(env, 1, 2)
	limit := 1800
	assessment.TimeLimitSeconds = &limit
	seedObjectivePool(t, env)

	resp := startAttempt(t, env, 1, "learner-1")

	stored := env.repo.attempts.store[resp.ID]
	if stored.TimeLimitSeconds == nil || *stored.TimeLimitSeconds != 1800 {
		t.Fatalf("time limit not frozen on attempt: %v", stored.TimeLimitSeconds)
	}

	// A later policy change must not reach the running attempt.
	longer := 60
	assessment.TimeLimitSeconds = &longer
	if *stored.TimeLimitSeconds != 1800 {
		t.Error("frozen limit changed with the policy")
	}

	if resp.TimeRemaining == nil || *resp.TimeRemaining <= 0 || *resp.TimeRemaining > 1800 {
		t.Errorf("time remaining = %v, want within (0, 1800]", resp.TimeRemaining)
	}
}

func TestSaveProgress(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")

	req := &SaveProgressRequest{
		Responses: []QuestionResponse{
			{QuestionID: 1, Response: mustRawJSON(t, true)},
		},
	}

	resp, err := env.attempts.SaveProgress(context.Background(), started.ID, req, "learner-1")
	if err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	var saved bool
	if err := json.Unmarshal(resp.Questions[0].Response, &saved); err != nil || !saved {
		t.Errorf("response not persisted: %s", resp.Questions[0].Response)
	}

	// Overwriting an earlier response is allowed while in progress.
	req.Responses[0].Response = mustRawJSON(t, false)
	resp, err = env.attempts.SaveProgress(context.Background(), started.ID, req, "learner-1")
	if err != nil {
		t.Fatalf("SaveProgress overwrite: %v", err)
	}
	if err := json.Unmarshal(resp.Questions[0].Response, &saved); err != nil || saved {
		t.Errorf("overwrite not persisted: %s", resp.Questions[0].Response)
	}
}

func TestSaveProgressUnknownQuestion(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")

	req := &SaveProgressRequest{
		Responses: []QuestionResponse{
			{QuestionID: 999, Response: mustRawJSON(t, true)},
		},
	}

	_, err := env.attempts.SaveProgress(context.Background(), started.ID, req, "learner-1")
	if !errors.Is(err, ErrQuestionNotInAttempt) {
		t.Fatalf("got %v, want ErrQuestionNotInAttempt", err)
	}
}

func TestSaveProgressWrongOwner(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")

	req := &SaveProgressRequest{
		Responses: []QuestionResponse{{QuestionID: 1, Response: mustRawJSON(t, true)}},
	}

	_, err := env.attempts.SaveProgress(context.Background(), started.ID, req, "learner-2")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("got %v, want PermissionError", err)
	}
}

func TestSaveProgressAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")

	// Backdate the attempt past its frozen limit.
	stored := env.repo.attempts.store[started.ID]
	limit := 600
	stored.TimeLimitSeconds = &limit
	stored.StartedAt = time.Now().Add(-11 * time.Minute)

	req := &SaveProgressRequest{
		Responses: []QuestionResponse{{QuestionID: 1, Response: mustRawJSON(t, true)}},
	}

	_, err := env.attempts.SaveProgress(context.Background(), started.ID, req, "learner-1")
	if !errors.Is(err, ErrAttemptTimeExpired) {
		t.Fatalf("got %v, want ErrAttemptTimeExpired", err)
	}
}

func TestSubmitAutoGradesObjectiveAttempt(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")

	req := &SaveProgressRequest{
		Responses: []QuestionResponse{
			{QuestionID: 1, Response: mustRawJSON(t, true)},
			{QuestionID: 2, Response: mustRawJSON(t, []string{"a"})},
		},
	}
	if _, err := env.attempts.SaveProgress(context.Background(), started.ID, req, "learner-1"); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	resp, err := env.attempts.Submit(context.Background(), started.ID, "learner-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if resp.Status != models.AttemptGraded {
		t.Errorf("status = %s, want graded", resp.Status)
	}
	if !resp.GradingComplete {
		t.Error("grading should be complete with no essays")
	}
	if resp.RequiresManualGrading {
		t.Error("fully objective attempt needs no manual grading")
	}
	if resp.PercentageScore == nil || *resp.PercentageScore != 100 {
		t.Errorf("percentage = %v, want 100", resp.PercentageScore)
	}
	if resp.Passed == nil || !*resp.Passed {
		t.Errorf("passed = %v, want true", resp.Passed)
	}

	var types []string
	for _, e := range env.publisher.GetPublishedEvents() {
		types = append(types, e.Type)
	}
	want := []string{events.AttemptStarted, events.AttemptSubmitted, events.AttemptGraded}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestSubmitWithEssayWaitsForManualGrade(t *testing.T) {
	env := newTestEnv(t)
	assessment := seedAssessment(env, 1, 3)
	assessment.ShowScore = true
	seedObjectivePool(t, env)
	seedQuestion(env, 3, models.Essay, 20, mustJSON(t, models.EssayContent{}))

	started := startAttempt(t, env, 1, "learner-1")

	req := &SaveProgressRequest{
		Responses: []QuestionResponse{
			{QuestionID: 1, Response: mustRawJSON(t, true)},
			{QuestionID: 3, Response: mustRawJSON(t, "my essay")},
		},
	}
	if _, err := env.attempts.SaveProgress(context.Background(), started.ID, req, "learner-1"); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	resp, err := env.attempts.Submit(context.Background(), started.ID, "learner-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if resp.Status != models.AttemptSubmitted {
		t.Errorf("status = %s, want submitted", resp.Status)
	}
	if resp.GradingComplete {
		t.Error("grading cannot be complete with an ungraded essay")
	}
	if !resp.RequiresManualGrading {
		t.Error("attempt with an ungraded essay must flag manual grading")
	}
	if resp.Passed != nil {
		t.Errorf("passed should be undecided, got %v", *resp.Passed)
	}

	for _, e := range env.publisher.GetPublishedEvents() {
		if e.Type == events.AttemptGraded {
			t.Error("graded event must wait for the manual pass")
		}
	}
}

func TestSubmitTwice(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")
	if _, err := env.attempts.Submit(context.Background(), started.ID, "learner-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err := env.attempts.Submit(context.Background(), started.ID, "learner-1")
	if !errors.Is(err, ErrAttemptAlreadySubmitted) {
		t.Fatalf("got %v, want ErrAttemptAlreadySubmitted", err)
	}
}

func TestSubmitAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")

	stored := env.repo.attempts.store[started.ID]
	limit := 60
	stored.TimeLimitSeconds = &limit
	stored.StartedAt = time.Now().Add(-2 * time.Minute)

	_, err := env.attempts.Submit(context.Background(), started.ID, "learner-1")
	if !errors.Is(err, ErrAttemptTimeExpired) {
		t.Fatalf("got %v, want ErrAttemptTimeExpired", err)
	}
}

func TestGetResultsOwnershipAndRoles(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")
	if _, err := env.attempts.Submit(context.Background(), started.ID, "learner-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The owner can read their own attempt.
	if _, err := env.attempts.GetResults(context.Background(), started.ID, "learner-1", models.RoleLearner); err != nil {
		t.Fatalf("owner GetResults: %v", err)
	}

	// Another learner cannot.
	_, err := env.attempts.GetResults(context.Background(), started.ID, "learner-2", models.RoleLearner)
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("got %v, want PermissionError", err)
	}

	// A grader can read anyone's attempt.
	if _, err := env.attempts.GetResults(context.Background(), started.ID, "grader-1", models.RoleGrader); err != nil {
		t.Fatalf("grader GetResults: %v", err)
	}
}

func TestGetResultsRedactionByPolicy(t *testing.T) {
	env := newTestEnv(t)
	assessment := seedAssessment(env, 1, 2)
	assessment.ShowScore = false
	assessment.RevealAnswers = models.RevealNever
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")
	if _, err := env.attempts.Submit(context.Background(), started.ID, "learner-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	learnerResp, err := env.attempts.GetResults(context.Background(), started.ID, "learner-1", models.RoleLearner)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}

	if learnerResp.PercentageScore != nil {
		t.Error("score shown despite show_score=false")
	}
	for _, q := range learnerResp.Questions {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(q.Content, &payload); err != nil {
			t.Fatalf("unmarshal content: %v", err)
		}
		if _, ok := payload["correct_answer"]; ok {
			t.Error("correct_answer leaked to learner with reveal=never")
		}
		if q.IsCorrect != nil {
			t.Error("per-question correctness leaked to learner with reveal=never")
		}
	}

	graderResp, err := env.attempts.GetResults(context.Background(), started.ID, "grader-1", models.RoleGrader)
	if err != nil {
		t.Fatalf("grader GetResults: %v", err)
	}
	if graderResp.PercentageScore == nil {
		t.Error("grader should always see scores")
	}
	var tf models.TrueFalseContent
	if err := json.Unmarshal(graderResp.Questions[0].Content, &tf); err != nil {
		t.Fatalf("grader content: %v", err)
	}
	if !tf.CorrectAnswer {
		t.Error("grader should see the correct answer")
	}
}

func TestGetResultsRevealAfterSubmit(t *testing.T) {
	env := newTestEnv(t)
	assessment := seedAssessment(env, 1, 2)
	assessment.RevealAnswers = models.RevealAfterSubmit
	seedObjectivePool(t, env)

	started := startAttempt(t, env, 1, "learner-1")

	// While in progress, nothing is revealed.
	resp, err := env.attempts.GetResults(context.Background(), started.ID, "learner-1", models.RoleLearner)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(resp.Questions[0].Content, &payload); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	if _, ok := payload["correct_answer"]; ok {
		t.Error("answers revealed before submission")
	}

	if _, err := env.attempts.Submit(context.Background(), started.ID, "learner-1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	resp, err = env.attempts.GetResults(context.Background(), started.ID, "learner-1", models.RoleLearner)
	if err != nil {
		t.Fatalf("GetResults after submit: %v", err)
	}
	var tf models.TrueFalseContent
	if err := json.Unmarshal(resp.Questions[0].Content, &tf); err != nil {
		t.Fatalf("unmarshal revealed content: %v", err)
	}
	if !tf.CorrectAnswer {
		t.Error("answers should be revealed after submission")
	}
}

func TestAbandonStaleAttempts(t *testing.T) {
	env := newTestEnv(t)
	seedAssessment(env, 1, 2)
	seedObjectivePool(t, env)

	stale := startAttempt(t, env, 1, "learner-1")
	fresh := startAttempt(t, env, 1, "learner-2")

	env.repo.attempts.store[stale.ID].LastActivityAt = time.Now().Add(-3 * time.Hour)
	env.publisher.ClearEvents()

	count, err := env.attempts.AbandonStaleAttempts(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("AbandonStaleAttempts: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if env.repo.attempts.store[stale.ID].Status != models.AttemptAbandoned {
		t.Error("stale attempt not abandoned")
	}
	if env.repo.attempts.store[fresh.ID].Status != models.AttemptInProgress {
		t.Error("fresh attempt should stay in progress")
	}

	// Each swept attempt gets its own abandoned event.
	published := env.publisher.GetPublishedEvents()
	if len(published) != 1 || published[0].Type != events.AttemptAbandoned {
		t.Fatalf("expected one attempt.abandoned event, got %+v", published)
	}
	payload, ok := published[0].Data.(events.AttemptEvent)
	if !ok {
		t.Fatalf("unexpected event payload type %T", published[0].Data)
	}
	if payload.AttemptID != stale.ID {
		t.Errorf("abandoned event attempt = %d, want %d", payload.AttemptID, stale.ID)
	}
	if payload.Status != string(models.AttemptAbandoned) {
		t.Errorf("abandoned event status = %s, want abandoned", payload.Status)
	}
}
