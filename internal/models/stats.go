package models

import (
	"time"
)

// PlatformStatsKey is the fixed key of the single platform statistics row.
// The uniqueness constraint on Key is what makes the row a singleton; the
// repository upserts against it instead of holding state in memory.
const PlatformStatsKey = "global"

type PlatformStats struct {
	ID  uint   `json:"id" gorm:"primaryKey"`
	Key string `json:"-" gorm:"not null;uniqueIndex;size:32;default:global"`

	ActiveClassrooms  int     `json:"active_classrooms" gorm:"default:0"`
	QuestsCompleted   int64   `json:"quests_completed" gorm:"default:0"`
	StudentEngagement float64 `json:"student_engagement" gorm:"default:0"`
	TeacherRating     float64 `json:"teacher_rating" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
