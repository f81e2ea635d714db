package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quizforge/assessment-engine/internal/events"
	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
	"github.com/quizforge/assessment-engine/internal/validator"
)

type gradingService struct {
	repo           repositories.Repository
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewGradingService(
	repo repositories.Repository,
	logger *slog.Logger,
	v *validator.Validator,
	eventPublisher events.EventPublisher,
) GradingService {
	return &gradingService{
		repo:           repo,
		logger:         logger,
		validator:      v,
		eventPublisher: eventPublisher,
	}
}

// GradeQuestion records a manual grade for one question of a submitted
// attempt and re-aggregates the attempt score. Once the last ungraded
// question receives a grade the attempt moves to graded and pass/fail is
// decided.
func (s *gradingService) GradeQuestion(ctx context.Context, attemptID uint, position int, req *GradeQuestionRequest, graderID string) (*AttemptResponse, error) {
	s.logger.Info("Grading question", "attempt_id", attemptID, "position", position, "grader_id", graderID)

	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError("request", err.Error(), nil)
	}

	grader, err := s.repo.User().GetByID(ctx, graderID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewPermissionError(graderID, "attempt", "grade", "grader identity not found")
		}
		return nil, fmt.Errorf("failed to resolve grader: %w", err)
	}
	if !grader.Role.CanGrade() {
		return nil, NewPermissionError(graderID, "attempt", "grade", "role cannot assign manual grades")
	}

	var attempt *models.AssessmentAttempt
	var becameGraded bool

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		var txErr error
		attempt, txErr = r.Attempt().GetByIDWithRecords(ctx, attemptID)
		if txErr != nil {
			if repositories.IsNotFoundError(txErr) {
				return ErrAttemptNotFound
			}
			return fmt.Errorf("failed to get attempt: %w", txErr)
		}

		// Manual grades apply after submission only; a graded attempt may
		// still be re-graded.
		if attempt.Status != models.AttemptSubmitted && attempt.Status != models.AttemptGraded {
			return ErrAttemptNotSubmitted
		}

		if position < 0 || position >= len(attempt.Questions) {
			return ErrInvalidQuestionIndex
		}

		record := &attempt.Questions[position]
		if req.PointsEarned > record.PointsPossible {
			return ErrScoreOutOfRange
		}

		now := time.Now()
		earned := req.PointsEarned
		correct := earned == record.PointsPossible

		record.PointsEarned = &earned
		record.IsCorrect = &correct
		record.GradedBy = &graderID
		record.GradedAt = &now
		record.Feedback = req.Feedback

		if txErr := r.Attempt().UpdateRecord(ctx, record); txErr != nil {
			return txErr
		}

		assessment, txErr := r.Assessment().GetByID(ctx, attempt.AssessmentID)
		if txErr != nil {
			return fmt.Errorf("failed to get assessment for aggregation: %w", txErr)
		}

		wasGraded := attempt.Status == models.AttemptGraded
		aggregateScores(attempt, assessment.PassingScore)
		if attempt.GradingComplete {
			attempt.Status = models.AttemptGraded
			becameGraded = !wasGraded
		}

		return r.Attempt().Update(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	if becameGraded {
		s.publishGradedEvent(ctx, attempt)
	}

	return buildAttemptResponse(attempt, nil, graderView()), nil
}

func (s *gradingService) publishGradedEvent(ctx context.Context, attempt *models.AssessmentAttempt) {
	event := events.NewEvent(events.AttemptGraded, events.AttemptEvent{
		AttemptID:       attempt.ID,
		AssessmentID:    attempt.AssessmentID,
		LearnerID:       attempt.LearnerID,
		AttemptNumber:   attempt.AttemptNumber,
		Status:          string(attempt.Status),
		PercentageScore: &attempt.PercentageScore,
		Passed:          attempt.Passed,
	})

	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		// Event delivery must not fail the grade.
		s.logger.Error("Failed to publish graded event", "attempt_id", attempt.ID, "error", err)
	}
}
