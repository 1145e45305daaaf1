package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
)

type StatsPostgreSQL struct {
	db *gorm.DB
}

func NewStatsPostgreSQL(db *gorm.DB) repositories.StatsRepository {
	return &StatsPostgreSQL{db: db}
}

func (s *StatsPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// Get returns the singleton statistics row. The unique index on Key makes the
// create-if-absent race safe: concurrent callers collapse onto one row.
func (s *StatsPostgreSQL) Get(ctx context.Context, tx *gorm.DB) (*models.PlatformStats, error) {
	db := s.getDB(tx)

	stats := models.PlatformStats{Key: models.PlatformStatsKey}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure stats row: %w", err)
	}

	var current models.PlatformStats
	if err := db.WithContext(ctx).
		Where("key = ?", models.PlatformStatsKey).
		First(&current).Error; err != nil {
		return nil, err
	}
	return &current, nil
}

func (s *StatsPostgreSQL) Update(ctx context.Context, tx *gorm.DB, fields map[string]interface{}) (*models.PlatformStats, error) {
	db := s.getDB(tx)

	// Ensure the row exists before updating it.
	if _, err := s.Get(ctx, tx); err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).
		Model(&models.PlatformStats{}).
		Where("key = ?", models.PlatformStatsKey).
		Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("failed to update stats: %w", err)
	}

	return s.Get(ctx, tx)
}

func (s *StatsPostgreSQL) IncrementQuestsCompleted(ctx context.Context, tx *gorm.DB) error {
	db := s.getDB(tx)

	if _, err := s.Get(ctx, tx); err != nil {
		return err
	}

	if err := db.WithContext(ctx).
		Model(&models.PlatformStats{}).
		Where("key = ?", models.PlatformStatsKey).
		Update("quests_completed", gorm.Expr("quests_completed + 1")).Error; err != nil {
		return fmt.Errorf("failed to increment quests completed: %w", err)
	}
	return nil
}
