package models

import (
	"time"
)

// StudentReward is the per student per group accumulator row. TotalXP and
// TotalCoins only ever grow and are incremented with atomic SQL updates, never
// read-modify-write.
type StudentReward struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	StudentID string `json:"student_id" gorm:"not null;uniqueIndex:idx_reward_student_group;size:255"`
	GroupID   string `json:"group_id" gorm:"not null;uniqueIndex:idx_reward_student_group;size:255"`

	TotalXP    int64 `json:"total_xp" gorm:"default:0"`
	TotalCoins int64 `json:"total_coins" gorm:"default:0"`

	// Streak state. LastActivityDate carries only calendar-day precision;
	// both streak policies normalize it before comparing.
	StreakDays       int        `json:"streak_days" gorm:"default:1"`
	LastActivityDate *time.Time `json:"last_activity_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
