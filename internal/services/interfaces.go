package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quizforge/assessment-engine/internal/models"
)

// ===== REQUEST DTOs =====

type StartAttemptRequest struct {
	AssessmentID uint    `json:"assessment_id" validate:"required"`
	EnrollmentID *string `json:"enrollment_id" validate:"omitempty,max=255"`
}

type QuestionResponse struct {
	QuestionID uint            `json:"question_id" validate:"required"`
	Response   json.RawMessage `json:"response" validate:"required"`
}

type SaveProgressRequest struct {
	Responses []QuestionResponse `json:"responses" validate:"required,min=1,dive"`
}

type GradeQuestionRequest struct {
	PointsEarned float64 `json:"points_earned" validate:"min=0"`
	Feedback     *string `json:"feedback" validate:"omitempty,max=2000"`
}

type SweepAbandonedRequest struct {
	InactiveMinutes int `json:"inactive_minutes" validate:"required,min=1,max=10080"`
}

// ===== RESPONSE DTOs =====

// QuestionRecordView is the per-question projection returned to callers.
// Content is redacted according to the feedback policy and the caller's
// role before it leaves the service.
type QuestionRecordView struct {
	Position     int                 `json:"position"`
	QuestionID   uint                `json:"question_id"`
	Type         models.QuestionType `json:"type"`
	Text         string              `json:"text"`
	Points       float64             `json:"points"`
	Content      json.RawMessage     `json:"content"`
	Explanation  *string             `json:"explanation,omitempty"`
	Response     json.RawMessage     `json:"response,omitempty"`
	PointsEarned *float64            `json:"points_earned,omitempty"`
	IsCorrect    *bool               `json:"is_correct,omitempty"`
	Feedback     *string             `json:"feedback,omitempty"`
	GradedBy     *string             `json:"graded_by,omitempty"`
	GradedAt     *time.Time          `json:"graded_at,omitempty"`
}

type AttemptResponse struct {
	ID               uint                 `json:"id"`
	AssessmentID     uint                 `json:"assessment_id"`
	AssessmentTitle  string               `json:"assessment_title,omitempty"`
	LearnerID        string               `json:"learner_id"`
	AttemptNumber    int                  `json:"attempt_number"`
	Status           models.AttemptStatus `json:"status"`
	StartedAt        time.Time            `json:"started_at"`
	SubmittedAt      *time.Time           `json:"submitted_at,omitempty"`
	TimeLimitSeconds *int                 `json:"time_limit_seconds,omitempty"`
	TimeRemaining    *int                 `json:"time_remaining_seconds,omitempty"`
	TimeSpentSeconds int                  `json:"time_spent_seconds"`

	// Scoring, omitted while the policy hides scores from the learner.
	RawScore        *float64 `json:"raw_score,omitempty"`
	PossibleScore   *float64 `json:"possible_score,omitempty"`
	PercentageScore *float64 `json:"percentage_score,omitempty"`
	Passed          *bool    `json:"passed,omitempty"`
	GradingComplete bool     `json:"grading_complete"`

	RequiresManualGrading bool `json:"requires_manual_grading"`

	Questions []QuestionRecordView `json:"questions"`
}

type SweepAbandonedResponse struct {
	AbandonedCount int64 `json:"abandoned_count"`
}

// ===== SERVICE INTERFACES =====

// AttemptService owns the attempt lifecycle: start, progress saves,
// submission, results, and the stale-attempt sweep.
type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, learnerID string) (*AttemptResponse, error)
	SaveProgress(ctx context.Context, attemptID uint, req *SaveProgressRequest, learnerID string) (*AttemptResponse, error)
	Submit(ctx context.Context, attemptID uint, learnerID string) (*AttemptResponse, error)
	GetResults(ctx context.Context, attemptID uint, callerID string, callerRole models.UserRole) (*AttemptResponse, error)
	AbandonStaleAttempts(ctx context.Context, inactiveFor time.Duration) (int64, error)
}

// GradingService applies manual grades to submitted attempts.
type GradingService interface {
	GradeQuestion(ctx context.Context, attemptID uint, position int, req *GradeQuestionRequest, graderID string) (*AttemptResponse, error)
}

// AssessmentService reads attempt policies from published assessments.
type AssessmentService interface {
	GetPublished(ctx context.Context, id uint) (*models.Assessment, error)
}

// ServiceManager wires the services together.
type ServiceManager interface {
	Attempt() AttemptService
	Grading() GradingService
	Assessment() AssessmentService

	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
