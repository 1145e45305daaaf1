package repositories

import "context"

// Repository aggregates all progression repositories behind one interface so
// services depend on a single seam for storage and transactions.
type Repository interface {
	// Subject domain (quiz and challenge definitions, read-mostly)
	Subject() SubjectRepository

	// Attempt domain
	Attempt() AttemptRepository

	// Reward accumulators and streaks
	Reward() RewardRepository

	// Platform statistics singleton
	Stats() StatsRepository

	// User domain (read-only, backed by the identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
