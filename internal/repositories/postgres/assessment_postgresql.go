package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/quizforge/assessment-engine/internal/cache"
	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
)

type AssessmentPostgreSQL struct {
	db          *gorm.DB
	cacheHelper *cache.CacheHelper
}

func NewAssessmentPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AssessmentRepository {
	return &AssessmentPostgreSQL{
		db:          db,
		cacheHelper: cache.NewCacheHelper(redisClient, cache.AssessmentCacheConfig.Prefix),
	}
}

// GetByID retrieves an assessment regardless of publication state.
func (r *AssessmentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Assessment, error) {
	var assessment models.Assessment

	cacheKey := fmt.Sprintf("id:%d", id)
	err := r.cacheHelper.CacheOrExecute(ctx, cacheKey, &assessment, cache.AssessmentCacheConfig.TTL, func() (interface{}, error) {
		var a models.Assessment
		if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get assessment: %w", err)
		}
		return &a, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &assessment, nil
}

// GetPublishedByID retrieves a published assessment. Unpublished and missing
// assessments both come back as ErrNotFound.
func (r *AssessmentPostgreSQL) GetPublishedByID(ctx context.Context, id uint) (*models.Assessment, error) {
	assessment, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !assessment.Published {
		return nil, repositories.ErrNotFound
	}

	return assessment, nil
}
