package repositories

import (
	"context"
	"time"

	"github.com/quizforge/assessment-engine/internal/models"
)

// ===== ASSESSMENT REPOSITORY =====

type AssessmentRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Assessment, error)
	// GetPublishedByID returns ErrNotFound for unpublished or soft-deleted
	// assessments so callers cannot tell the two cases apart.
	GetPublishedByID(ctx context.Context, id uint) (*models.Assessment, error)
}

// ===== QUESTION REPOSITORY =====

// QuestionFilters narrows the candidate pool for snapshot selection.
type QuestionFilters struct {
	Tags       []string
	Difficulty *models.DifficultyLevel
}

type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Question, error)
	// GetByBankIDs returns bank entries in (bank_id, order, id) order.
	GetByBankIDs(ctx context.Context, bankIDs []uint, filters QuestionFilters) ([]*models.Question, error)
}

// ===== ATTEMPT REPOSITORY =====

type AttemptFilters struct {
	Status    *models.AttemptStatus
	LearnerID *string
	Limit     int
	Offset    int
}

type AttemptRepository interface {
	// Create persists an in-progress attempt together with its question
	// records. A unique-violation on the partial active-attempt index is
	// translated to ErrDuplicateActiveAttempt.
	Create(ctx context.Context, attempt *models.AssessmentAttempt) error

	GetByID(ctx context.Context, id uint) (*models.AssessmentAttempt, error)
	GetByIDWithRecords(ctx context.Context, id uint) (*models.AssessmentAttempt, error)
	GetActiveAttempt(ctx context.Context, assessmentID uint, learnerID string) (*models.AssessmentAttempt, error)
	GetByAssessmentAndLearner(ctx context.Context, assessmentID uint, learnerID string, filters AttemptFilters) ([]*models.AssessmentAttempt, int64, error)

	// CountByLearner counts every attempt regardless of status; abandoned
	// and expired attempts still consume the learner's allowance.
	CountByLearner(ctx context.Context, assessmentID uint, learnerID string) (int64, error)

	Update(ctx context.Context, attempt *models.AssessmentAttempt) error
	UpdateRecord(ctx context.Context, record *models.QuestionRecord) error
	UpdateRecords(ctx context.Context, records []models.QuestionRecord) error

	// MarkAbandoned moves in-progress attempts whose last activity is older
	// than the cutoff to abandoned, returning the attempts that changed so
	// callers can publish per-attempt events.
	MarkAbandoned(ctx context.Context, inactiveBefore time.Time) ([]*models.AssessmentAttempt, error)
}

// ===== USER REPOSITORY =====

// UserRepository is read-only; identity lives in Casdoor.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
}
