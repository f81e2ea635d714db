package services

import (
	"context"
	"log/slog"

	"github.com/quizforge/assessment-engine/internal/events"
	"github.com/quizforge/assessment-engine/internal/repositories"
	"github.com/quizforge/assessment-engine/internal/validator"
)

type serviceManager struct {
	repo           repositories.Repository
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher

	attempt    AttemptService
	grading    GradingService
	assessment AssessmentService
}

// NewServiceManager wires the services over one repository and publisher.
func NewServiceManager(
	repo repositories.Repository,
	logger *slog.Logger,
	v *validator.Validator,
	eventPublisher events.EventPublisher,
) ServiceManager {
	return &serviceManager{
		repo:           repo,
		logger:         logger,
		validator:      v,
		eventPublisher: eventPublisher,
	}
}

func (m *serviceManager) Attempt() AttemptService {
	return m.attempt
}

func (m *serviceManager) Grading() GradingService {
	return m.grading
}

func (m *serviceManager) Assessment() AssessmentService {
	return m.assessment
}

func (m *serviceManager) Initialize(ctx context.Context) error {
	if err := m.repo.Ping(ctx); err != nil {
		return err
	}

	m.assessment = NewAssessmentService(m.repo, m.logger)
	m.attempt = NewAttemptService(m.repo, m.logger, m.validator, m.eventPublisher)
	m.grading = NewGradingService(m.repo, m.logger, m.validator, m.eventPublisher)

	m.logger.Info("Services initialized")
	return nil
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	if m.eventPublisher != nil {
		if err := m.eventPublisher.Close(); err != nil {
			m.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	m.logger.Info("Services shut down")
	return nil
}
