package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quizforge/assessment-engine/internal/models"
	"github.com/quizforge/assessment-engine/internal/repositories"
)

type assessmentService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewAssessmentService(repo repositories.Repository, logger *slog.Logger) AssessmentService {
	return &assessmentService{
		repo:   repo,
		logger: logger,
	}
}

// GetPublished loads the policy bundle an attempt runs under. Unpublished
// and missing assessments are indistinguishable to callers.
func (s *assessmentService) GetPublished(ctx context.Context, id uint) (*models.Assessment, error) {
	assessment, err := s.repo.Assessment().GetPublishedByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	return assessment, nil
}
