package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/eduquest-hq/progression-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type SubjectFilters struct {
	Kind      *models.SubjectKind   `json:"kind"`
	Status    *models.SubjectStatus `json:"status"`
	GroupID   *string               `json:"group_id"`
	CreatedBy *string               `json:"created_by"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "title"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	Kind      *models.SubjectKind   `json:"kind"`
	StudentID *string               `json:"student_id"`
	SubjectID *uint                 `json:"subject_id"`
	GroupID   *string               `json:"group_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type UserFilters struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ===== REPOSITORY INTERFACES =====

// SubjectRepository reads quiz and challenge definitions. Content authoring
// lives in another service; Create exists for seeding, UpdateStatus for the
// availability scheduler that flips windows open and closed.
type SubjectRepository interface {
	Create(ctx context.Context, tx *gorm.DB, subject *models.Subject) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Subject, error)
	List(ctx context.Context, tx *gorm.DB, filters SubjectFilters) ([]*models.Subject, int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.SubjectStatus) error
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	GetByIDWithSubject(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)
	GetBySubjectAndStudent(ctx context.Context, tx *gorm.DB, subjectID uint, studentID string) (*models.Attempt, error)

	// UpdateFields applies a field-scoped update. Writers must never include
	// rewards_granted here; that column changes only through ClaimRewards.
	UpdateFields(ctx context.Context, tx *gorm.DB, id uint, fields map[string]interface{}) error

	// GetByIDForUpdate locks the attempt row for the enclosing transaction.
	// Concurrent submissions of the same attempt queue here and re-read the
	// committed state instead of acting on a stale snapshot.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error)

	// UpdateIfUnsubmitted applies fields only while the attempt has not been
	// submitted, as one conditional update. A false return with nil error
	// means a concurrent submission landed first and nothing was written.
	UpdateIfUnsubmitted(ctx context.Context, tx *gorm.DB, id uint, fields map[string]interface{}) (bool, error)
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters AttemptFilters) ([]*models.Attempt, int64, error)

	// GetLatestSubmitted returns the student's most recently submitted
	// attempt of the given kind, for retake screens.
	GetLatestSubmitted(ctx context.Context, tx *gorm.DB, studentID string, kind models.SubjectKind) (*models.Attempt, error)

	// ListSubmittedBySubject returns every submitted attempt on a subject.
	// With forUpdate the rows are locked for the enclosing transaction so
	// winner resolution reads a stable set.
	ListSubmittedBySubject(ctx context.Context, tx *gorm.DB, subjectID uint, forUpdate bool) ([]*models.Attempt, error)

	// ClaimRewards flips rewards_granted false to true as one conditional
	// update and reports whether this caller won the claim. A false return
	// with nil error means another writer already granted the rewards.
	ClaimRewards(ctx context.Context, tx *gorm.DB, id uint) (bool, error)

	// SetWinner marks winnerID as the subject's current winner and clears the
	// flag on every other submitted attempt for the subject.
	SetWinner(ctx context.Context, tx *gorm.DB, subjectID uint, winnerID uint) error
}

type RewardRepository interface {
	// GetOrCreate returns the accumulator row for the student in the group,
	// inserting the initial row on first activity.
	GetOrCreate(ctx context.Context, tx *gorm.DB, studentID, groupID string) (*models.StudentReward, error)
	Get(ctx context.Context, tx *gorm.DB, studentID, groupID string) (*models.StudentReward, error)

	// AddRewards increments the XP and coin totals with an atomic SQL update,
	// never read-modify-write.
	AddRewards(ctx context.Context, tx *gorm.DB, id uint, xp, coins int) error

	// UpdateStreak persists a streak decision from the tracker.
	UpdateStreak(ctx context.Context, tx *gorm.DB, id uint, streakDays int, lastActivity time.Time) error

	// ListByGroup returns the group leaderboard ordered by total XP.
	ListByGroup(ctx context.Context, tx *gorm.DB, groupID string, limit int) ([]*models.StudentReward, error)
}

type StatsRepository interface {
	// Get returns the singleton statistics row, creating it when absent.
	Get(ctx context.Context, tx *gorm.DB) (*models.PlatformStats, error)
	Update(ctx context.Context, tx *gorm.DB, fields map[string]interface{}) (*models.PlatformStats, error)

	// IncrementQuestsCompleted bumps the completed-quest counter atomically.
	IncrementQuestsCompleted(ctx context.Context, tx *gorm.DB) error
}

// UserRepository resolves identities from the identity provider (read-only).
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}

// IsNotFoundError reports whether err is the storage layer's missing-record
// error, so services can map it onto their own not-found sentinels.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
