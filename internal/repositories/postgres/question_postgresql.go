package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/quizforge/assessment-engine/internal/cache"
	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
)

type QuestionPostgreSQL struct {
	db          *gorm.DB
	cacheHelper *cache.CacheHelper
}

func NewQuestionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		db:          db,
		cacheHelper: cache.NewCacheHelper(redisClient, cache.QuestionCacheConfig.Prefix),
	}
}

func (r *QuestionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Question, error) {
	var question models.Question

	cacheKey := fmt.Sprintf("id:%d", id)
	err := r.cacheHelper.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var q models.Question
		if err := r.db.WithContext(ctx).First(&q, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get question: %w", err)
		}
		return &q, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &question, nil
}

// GetByBankIDs returns the candidate pool for snapshot selection in stable
// (bank_id, order, id) order so sequential selection is deterministic.
func (r *QuestionPostgreSQL) GetByBankIDs(ctx context.Context, bankIDs []uint, filters repositories.QuestionFilters) ([]*models.Question, error) {
	if len(bankIDs) == 0 {
		return []*models.Question{}, nil
	}

	query := r.db.WithContext(ctx).
		Where("bank_id IN ?", bankIDs).
		Order("bank_id ASC").
		Order("\"order\" ASC").
		Order("id ASC")

	if filters.Difficulty != nil {
		query = query.Where("difficulty = ?", *filters.Difficulty)
	}

	// Every requested tag must be present on the question.
	for _, tag := range filters.Tags {
		tagJSON, err := json.Marshal([]string{tag})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tag filter: %w", err)
		}
		query = query.Where("tags @> ?", string(tagJSON))
	}

	var questions []*models.Question
	if err := query.Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by banks: %w", err)
	}

	return questions, nil
}
