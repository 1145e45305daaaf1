package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
	"github.com/eduquest-hq/progression-service/internal/validator"
)

// DefaultStatsService serves the platform statistics singleton shown on the
// landing page.
type DefaultStatsService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewStatsService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) *DefaultStatsService {
	return &DefaultStatsService{
		repo:      repo,
		logger:    logger,
		validator: validator,
	}
}

func (s *DefaultStatsService) Get(ctx context.Context) (*models.PlatformStats, error) {
	stats, err := s.repo.Stats().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load platform stats: %w", err)
	}
	return stats, nil
}

// Update patches the provided fields only. The quests-completed counter is
// owned by the submission pipeline and cannot be set here.
func (s *DefaultStatsService) Update(ctx context.Context, req *UpdateStatsRequest) (*models.PlatformStats, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.ActiveClassrooms != nil {
		fields["active_classrooms"] = *req.ActiveClassrooms
	}
	if req.StudentEngagement != nil {
		fields["student_engagement"] = *req.StudentEngagement
	}
	if req.TeacherRating != nil {
		fields["teacher_rating"] = *req.TeacherRating
	}
	if len(fields) == 0 {
		return nil, NewValidationError("stats", "no fields to update", nil)
	}

	stats, err := s.repo.Stats().Update(ctx, nil, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to update platform stats: %w", err)
	}

	s.logger.Info("platform stats updated", "fields", len(fields))
	return stats, nil
}
