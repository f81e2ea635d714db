package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"github.com/quizforge/assessment-engine/internal/events"
	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
	"github.com/quizforge/assessment-engine/internal/validator"
)

type attemptService struct {
	repo           repositories.Repository
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
	snapshots      *SnapshotBuilder
}

func NewAttemptService(
	repo repositories.Repository,
	logger *slog.Logger,
	v *validator.Validator,
	eventPublisher events.EventPublisher,
) AttemptService {
	return &attemptService{
		repo:           repo,
		logger:         logger,
		validator:      v,
		eventPublisher: eventPublisher,
		snapshots:      NewSnapshotBuilder(),
	}
}

// Start creates a new in-progress attempt with frozen question snapshots.
// The attempt-count and one-active-attempt rules are checked inside the
// transaction; the partial unique index backstops concurrent starts that
// slip past the read.
func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, learnerID string) (*AttemptResponse, error) {
	s.logger.Info("Starting attempt", "assessment_id", req.AssessmentID, "learner_id", learnerID)

	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError("request", err.Error(), nil)
	}

	assessment, err := s.repo.Assessment().GetPublishedByID(ctx, req.AssessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	var attempt *models.AssessmentAttempt

	err = s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		if _, txErr := r.Attempt().GetActiveAttempt(ctx, assessment.ID, learnerID); txErr == nil {
			return ErrAttemptAlreadyActive
		} else if !repositories.IsNotFoundError(txErr) {
			return fmt.Errorf("failed to check active attempt: %w", txErr)
		}

		count, txErr := r.Attempt().CountByLearner(ctx, assessment.ID, learnerID)
		if txErr != nil {
			return fmt.Errorf("failed to count attempts: %w", txErr)
		}

		// MaxAttempts == 0 means unlimited.
		if assessment.MaxAttempts > 0 && count >= int64(assessment.MaxAttempts) {
			return ErrAttemptLimitExceeded
		}

		records, txErr := s.snapshots.Build(ctx, r, assessment)
		if txErr != nil {
			return txErr
		}

		now := time.Now()
		attempt = &models.AssessmentAttempt{
			AssessmentID:     assessment.ID,
			LearnerID:        learnerID,
			EnrollmentID:     req.EnrollmentID,
			AttemptNumber:    int(count) + 1,
			Status:           models.AttemptInProgress,
			StartedAt:        now,
			LastActivityAt:   now,
			TimeLimitSeconds: assessment.TimeLimitSeconds,
			Questions:        records,
		}

		if txErr := r.Attempt().Create(ctx, attempt); txErr != nil {
			if repositories.IsDuplicateActiveAttempt(txErr) {
				return ErrAttemptAlreadyActive
			}
			return txErr
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.AttemptStarted, attempt)

	return buildAttemptResponse(attempt, assessment, learnerView(assessment, attempt.Status)), nil
}

// SaveProgress writes learner responses onto the attempt's question
// records. It refuses writes once the time limit has passed; expiry is
// detected here lazily rather than by a server-side timer.
func (s *attemptService) SaveProgress(ctx context.Context, attemptID uint, req *SaveProgressRequest, learnerID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, NewValidationError("request", err.Error(), nil)
	}

	var attempt *models.AssessmentAttempt
	var assessment *models.Assessment

	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		var txErr error
		attempt, txErr = s.loadOwnedAttempt(ctx, r, attemptID, learnerID, "save progress on")
		if txErr != nil {
			return txErr
		}

		if attempt.Status != models.AttemptInProgress {
			return ErrAttemptNotInProgress
		}

		now := time.Now()
		if isExpired(attempt, now) {
			return ErrAttemptTimeExpired
		}

		recordsByQuestion := make(map[uint]*models.QuestionRecord, len(attempt.Questions))
		for i := range attempt.Questions {
			recordsByQuestion[attempt.Questions[i].QuestionID] = &attempt.Questions[i]
		}

		changed := make([]models.QuestionRecord, 0, len(req.Responses))
		for _, response := range req.Responses {
			record, ok := recordsByQuestion[response.QuestionID]
			if !ok {
				return ErrQuestionNotInAttempt
			}
			record.Response = datatypes.JSON(response.Response)
			changed = append(changed, *record)
		}

		if txErr := r.Attempt().UpdateRecords(ctx, changed); txErr != nil {
			return txErr
		}

		attempt.LastActivityAt = now
		attempt.TimeSpentSeconds = int(now.Sub(attempt.StartedAt).Seconds())

		if txErr := r.Attempt().Update(ctx, attempt); txErr != nil {
			return txErr
		}

		assessment, txErr = r.Assessment().GetByID(ctx, attempt.AssessmentID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return buildAttemptResponse(attempt, assessment, learnerView(assessment, attempt.Status)), nil
}

// Submit closes the attempt, auto-grades every objective question from its
// snapshot, and aggregates the score. With no subjective questions the
// attempt lands directly in graded; otherwise it waits in submitted.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, learnerID string) (*AttemptResponse, error) {
	s.logger.Info("Submitting attempt", "attempt_id", attemptID, "learner_id", learnerID)

	var attempt *models.AssessmentAttempt
	var assessment *models.Assessment

	err := s.repo.WithTransaction(ctx, func(r repositories.Repository) error {
		var txErr error
		attempt, txErr = s.loadOwnedAttempt(ctx, r, attemptID, learnerID, "submit")
		if txErr != nil {
			return txErr
		}

		switch attempt.Status {
		case models.AttemptInProgress:
			// proceed
		case models.AttemptSubmitted, models.AttemptGraded:
			return ErrAttemptAlreadySubmitted
		default:
			return ErrAttemptNotInProgress
		}

		now := time.Now()
		if isExpired(attempt, now) {
			return ErrAttemptTimeExpired
		}

		assessment, txErr = r.Assessment().GetByID(ctx, attempt.AssessmentID)
		if txErr != nil {
			return fmt.Errorf("failed to get assessment: %w", txErr)
		}

		for i := range attempt.Questions {
			if txErr := autoGradeRecord(&attempt.Questions[i], assessment.PartialCredit); txErr != nil {
				return fmt.Errorf("failed to auto-grade question %d: %w", attempt.Questions[i].Position, txErr)
			}
		}

		attempt.SubmittedAt = &now
		attempt.LastActivityAt = now
		attempt.TimeSpentSeconds = int(now.Sub(attempt.StartedAt).Seconds())

		aggregateScores(attempt, assessment.PassingScore)
		if attempt.GradingComplete {
			attempt.Status = models.AttemptGraded
		} else {
			attempt.Status = models.AttemptSubmitted
		}

		if txErr := r.Attempt().UpdateRecords(ctx, attempt.Questions); txErr != nil {
			return txErr
		}

		return r.Attempt().Update(ctx, attempt)
	})
	if err != nil {
		return nil, err
	}

	s.publishAttemptEvent(ctx, events.AttemptSubmitted, attempt)
	if attempt.Status == models.AttemptGraded {
		s.publishAttemptEvent(ctx, events.AttemptGraded, attempt)
	}

	return buildAttemptResponse(attempt, assessment, learnerView(assessment, attempt.Status)), nil
}

// GetResults returns the attempt projected for the caller. Owners see what
// the feedback policy allows; graders and admins see everything.
func (s *attemptService) GetResults(ctx context.Context, attemptID uint, callerID string, callerRole models.UserRole) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithRecords(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.LearnerID != callerID && !callerRole.CanGrade() {
		return nil, NewPermissionError(callerID, "attempt", "view results", "not the attempt owner")
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	opts := graderView()
	if attempt.LearnerID == callerID && !callerRole.CanGrade() {
		opts = learnerView(assessment, attempt.Status)
	}

	return buildAttemptResponse(attempt, assessment, opts), nil
}

// AbandonStaleAttempts moves in-progress attempts without recent activity
// to abandoned and publishes an event per attempt. Invoked by an external
// scheduler through the admin API; the service runs no background timers
// of its own.
func (s *attemptService) AbandonStaleAttempts(ctx context.Context, inactiveFor time.Duration) (int64, error) {
	cutoff := time.Now().Add(-inactiveFor)

	abandoned, err := s.repo.Attempt().MarkAbandoned(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon stale attempts: %w", err)
	}

	for _, attempt := range abandoned {
		s.publishAttemptEvent(ctx, events.AttemptAbandoned, attempt)
	}

	if len(abandoned) > 0 {
		s.logger.Info("Abandoned stale attempts", "count", len(abandoned), "inactive_before", cutoff)
	}

	return int64(len(abandoned)), nil
}

// loadOwnedAttempt fetches an attempt with records and enforces ownership.
func (s *attemptService) loadOwnedAttempt(ctx context.Context, r repositories.Repository, attemptID uint, learnerID, action string) (*models.AssessmentAttempt, error) {
	attempt, err := r.Attempt().GetByIDWithRecords(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.LearnerID != learnerID {
		return nil, NewPermissionError(learnerID, "attempt", action, "not the attempt owner")
	}

	return attempt, nil
}

func (s *attemptService) publishAttemptEvent(ctx context.Context, eventType string, attempt *models.AssessmentAttempt) {
	payload := events.AttemptEvent{
		AttemptID:     attempt.ID,
		AssessmentID:  attempt.AssessmentID,
		LearnerID:     attempt.LearnerID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        string(attempt.Status),
	}
	if attempt.Status == models.AttemptGraded {
		payload.PercentageScore = &attempt.PercentageScore
		payload.Passed = attempt.Passed
	}

	if err := s.eventPublisher.Publish(ctx, events.NewEvent(eventType, payload)); err != nil {
		// Event delivery must not fail the lifecycle operation.
		s.logger.Error("Failed to publish attempt event",
			"event_type", eventType,
			"attempt_id", attempt.ID,
			"error", err)
	}
}

// isExpired reports whether the attempt's frozen time limit has elapsed.
func isExpired(attempt *models.AssessmentAttempt, now time.Time) bool {
	if attempt.TimeLimitSeconds == nil {
		return false
	}
	deadline := attempt.StartedAt.Add(time.Duration(*attempt.TimeLimitSeconds) * time.Second)
	return now.After(deadline)
}
