package repositories

import "context"

// Repository aggregates all repository interfaces behind one handle so
// services stay independent of the storage driver.
type Repository interface {
	Assessment() AssessmentRepository
	Question() QuestionRepository
	Attempt() AttemptRepository

	// User domain (read-only, backed by the identity provider)
	User() UserRepository

	// WithTransaction runs fn against a Repository bound to a single
	// database transaction. Returning an error rolls everything back.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
