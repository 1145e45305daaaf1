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

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.StudentID)
	return nil
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithSubject(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Preload("Subject").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetBySubjectAndStudent(ctx context.Context, tx *gorm.DB, subjectID uint, studentID string) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Where("subject_id = ? AND student_id = ?", subjectID, studentID).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) UpdateFields(ctx context.Context, tx *gorm.DB, id uint, fields map[string]interface{}) error {
	db := a.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update attempt fields: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", id))
	return nil
}

func (a *AttemptPostgreSQL) UpdateIfUnsubmitted(ctx context.Context, tx *gorm.DB, id uint, fields map[string]interface{}) (bool, error) {
	db := a.getDB(tx)

	// Status guard in the WHERE clause; a write racing a submission loses
	// here instead of dragging a submitted attempt back to in_progress.
	result := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status <> ?", id, models.AttemptSubmitted).
		Updates(fields)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update attempt fields: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", id))
	}
	return result.RowsAffected > 0, nil
}

func (a *AttemptPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)
	result := db.WithContext(ctx).Delete(&models.Attempt{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete attempt: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", id))
	return nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.Attempt
	var total int64

	// apply filters first
	query := db.WithContext(ctx).Model(&models.Attempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Subject").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.StudentID = &studentID
	return a.List(ctx, tx, filters)
}

func (a *AttemptPostgreSQL) GetLatestSubmitted(ctx context.Context, tx *gorm.DB, studentID string, kind models.SubjectKind) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Where("student_id = ? AND kind = ? AND status = ?", studentID, kind, models.AttemptSubmitted).
		Order("submitted_at DESC").
		Preload("Subject").
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) ListSubmittedBySubject(ctx context.Context, tx *gorm.DB, subjectID uint, forUpdate bool) ([]*models.Attempt, error) {
	db := a.getDB(tx)
	query := db.WithContext(ctx).
		Where("subject_id = ? AND status = ?", subjectID, models.AttemptSubmitted)

	// Row locks serialize winner resolution per subject; two racing submits
	// queue behind each other instead of both reading a stale winner set.
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var attempts []*models.Attempt
	if err := query.Order("submitted_at ASC").Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to list submitted attempts: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ClaimRewards(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := a.getDB(tx)
	now := time.Now()

	// Single conditional update; only one concurrent caller sees a row flip.
	result := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND rewards_granted = ?", id, false).
		Updates(map[string]interface{}{
			"rewards_granted":    true,
			"rewards_granted_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim rewards: %w", result.Error)
	}

	cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", id))
	return result.RowsAffected > 0, nil
}

func (a *AttemptPostgreSQL) SetWinner(ctx context.Context, tx *gorm.DB, subjectID uint, winnerID uint) error {
	db := a.getDB(tx)

	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("subject_id = ? AND id <> ?", subjectID, winnerID).
		Update("is_winner", false).Error; err != nil {
		return fmt.Errorf("failed to clear winner flags: %w", err)
	}

	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ?", winnerID).
		Update("is_winner", true).Error; err != nil {
		return fmt.Errorf("failed to set winner flag: %w", err)
	}

	return nil
}
