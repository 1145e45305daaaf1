package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eduquest-hq/progression-service/internal/cache"
	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
)

type RewardPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewRewardPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.RewardRepository {
	return &RewardPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *RewardPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *RewardPostgreSQL) GetOrCreate(ctx context.Context, tx *gorm.DB, studentID, groupID string) (*models.StudentReward, error) {
	db := r.getDB(tx)

	reward := models.StudentReward{
		StudentID:  studentID,
		GroupID:    groupID,
		StreakDays: 1,
	}

	// Insert-or-ignore against the unique (student, group) index, then read
	// back. Two concurrent first submissions converge on the same row.
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}, {Name: "group_id"}},
			DoNothing: true,
		}).
		Create(&reward).Error; err != nil {
		return nil, fmt.Errorf("failed to create student reward: %w", err)
	}

	return r.Get(ctx, tx, studentID, groupID)
}

func (r *RewardPostgreSQL) Get(ctx context.Context, tx *gorm.DB, studentID, groupID string) (*models.StudentReward, error) {
	db := r.getDB(tx)
	var reward models.StudentReward
	if err := db.WithContext(ctx).
		Where("student_id = ? AND group_id = ?", studentID, groupID).
		First(&reward).Error; err != nil {
		return nil, err
	}
	return &reward, nil
}

func (r *RewardPostgreSQL) AddRewards(ctx context.Context, tx *gorm.DB, id uint, xp, coins int) error {
	db := r.getDB(tx)

	// SQL-side increments; concurrent submissions on different subjects must
	// not lose updates to a read-modify-write race.
	result := db.WithContext(ctx).
		Model(&models.StudentReward{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_xp":    gorm.Expr("total_xp + ?", xp),
			"total_coins": gorm.Expr("total_coins + ?", coins),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to add rewards: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *RewardPostgreSQL) UpdateStreak(ctx context.Context, tx *gorm.DB, id uint, streakDays int, lastActivity time.Time) error {
	db := r.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.StudentReward{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"streak_days":        streakDays,
			"last_activity_date": lastActivity,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update streak: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *RewardPostgreSQL) ListByGroup(ctx context.Context, tx *gorm.DB, groupID string, limit int) ([]*models.StudentReward, error) {
	db := r.getDB(tx)
	query := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("total_xp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rewards []*models.StudentReward
	if err := query.Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("failed to list rewards by group: %w", err)
	}
	return rewards, nil
}

func (r *RewardPostgreSQL) invalidate(ctx context.Context, id uint) {
	var reward models.StudentReward
	if err := r.db.Select("student_id, group_id").First(&reward, id).Error; err != nil {
		return
	}
	cache.InvalidateRewardCache(ctx, r.cacheManager, reward.StudentID, reward.GroupID)
}
