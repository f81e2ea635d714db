package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quizforge/assessment-engine/internal/cache"
	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// Create persists the attempt and its question records in one insert.
// Requires gorm's TranslateError so unique violations surface as
// gorm.ErrDuplicatedKey; both unique indexes on attempts mean the same
// thing here, a lost race against a concurrent start.
func (r *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.AssessmentAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrDuplicateActiveAttempt
		}
		return fmt.Errorf("failed to create attempt: %w", err)
	}

	r.invalidateCache(ctx, attempt.ID)
	return nil
}

func (r *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.AssessmentAttempt, error) {
	var attempt models.AssessmentAttempt
	if err := r.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	return &attempt, nil
}

func (r *AttemptPostgreSQL) GetByIDWithRecords(ctx context.Context, id uint) (*models.AssessmentAttempt, error) {
	var attempt models.AssessmentAttempt
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&attempt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt with records: %w", err)
	}

	return &attempt, nil
}

func (r *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, assessmentID uint, learnerID string) (*models.AssessmentAttempt, error) {
	var attempt models.AssessmentAttempt
	err := r.db.WithContext(ctx).
		Where("assessment_id = ? AND learner_id = ? AND status = ?",
			assessmentID, learnerID, models.AttemptInProgress).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}

	return &attempt, nil
}

func (r *AttemptPostgreSQL) GetByAssessmentAndLearner(ctx context.Context, assessmentID uint, learnerID string, filters repositories.AttemptFilters) ([]*models.AssessmentAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AssessmentAttempt{}).
		Where("assessment_id = ? AND learner_id = ?", assessmentID, learnerID)

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit).Offset(filters.Offset)
	}

	var attempts []*models.AssessmentAttempt
	if err := query.Order("attempt_number DESC").Find(&attempts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	return attempts, total, nil
}

func (r *AttemptPostgreSQL) CountByLearner(ctx context.Context, assessmentID uint, learnerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.AssessmentAttempt{}).
		Where("assessment_id = ? AND learner_id = ?", assessmentID, learnerID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	return count, nil
}

func (r *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.AssessmentAttempt) error {
	// Save without the Questions association; records are written through
	// UpdateRecord(s) so a stale slice cannot clobber grades.
	if err := r.db.WithContext(ctx).Omit("Questions").Save(attempt).Error; err != nil {
		return fmt.Errorf("failed to update attempt: %w", err)
	}

	r.invalidateCache(ctx, attempt.ID)
	return nil
}

func (r *AttemptPostgreSQL) UpdateRecord(ctx context.Context, record *models.QuestionRecord) error {
	if err := r.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("failed to update question record: %w", err)
	}

	r.invalidateCache(ctx, record.AttemptID)
	return nil
}

func (r *AttemptPostgreSQL) UpdateRecords(ctx context.Context, records []models.QuestionRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Save(&records).Error; err != nil {
		return fmt.Errorf("failed to update question records: %w", err)
	}

	r.invalidateCache(ctx, records[0].AttemptID)
	return nil
}

func (r *AttemptPostgreSQL) MarkAbandoned(ctx context.Context, inactiveBefore time.Time) ([]*models.AssessmentAttempt, error) {
	var attempts []*models.AssessmentAttempt
	result := r.db.WithContext(ctx).Model(&attempts).
		Clauses(clause.Returning{}).
		Where("status = ? AND last_activity_at < ?", models.AttemptInProgress, inactiveBefore).
		Updates(map[string]interface{}{
			"status":     models.AttemptAbandoned,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to mark attempts abandoned: %w", result.Error)
	}

	for _, attempt := range attempts {
		r.invalidateCache(ctx, attempt.ID)
	}

	return attempts, nil
}

func (r *AttemptPostgreSQL) invalidateCache(ctx context.Context, attemptID uint) {
	if err := r.cacheManager.InvalidateAttempt(ctx, attemptID); err != nil {
		// Cache invalidation failures must not fail the write.
		_ = err
	}
}
