package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type SubjectKind string

const (
	SubjectQuiz      SubjectKind = "quiz"
	SubjectChallenge SubjectKind = "challenge"
)

type SubjectStatus string

const (
	SubjectDraft  SubjectStatus = "draft"
	SubjectActive SubjectStatus = "active"
	SubjectClosed SubjectStatus = "closed"
)

func (s SubjectStatus) IsValid() bool {
	switch s {
	case SubjectDraft, SubjectActive, SubjectClosed:
		return true
	}
	return false
}

// Subject is a quiz or challenge definition: the question set plus the reward
// table attempts are graded against. Content authoring lives elsewhere; this
// service reads subjects and writes attempts.
type Subject struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	Title     string        `json:"title" gorm:"not null;size:255"`
	Kind      SubjectKind   `json:"kind" gorm:"not null;index;size:16"`
	GroupID   string        `json:"group_id" gorm:"not null;index;size:255"`
	CreatedBy string        `json:"created_by" gorm:"size:255"`
	Status    SubjectStatus `json:"status" gorm:"default:draft;index"`

	// Embedded question set, []Question as JSONB.
	Questions datatypes.JSON `json:"questions" gorm:"type:jsonb"`

	// Reward table. Quizzes derive coins from XP at grading time; challenges
	// carry both explicitly.
	RewardXP    int  `json:"reward_xp"`
	RewardCoins int  `json:"reward_coins"`
	PassGrade   *int `json:"pass_grade"` // quizzes only, percent threshold

	// Availability window. An external scheduler flips Status when the window
	// opens or closes; grading never reads these.
	WindowStart *time.Time `json:"window_start"`
	WindowEnd   *time.Time `json:"window_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuestionSet decodes the embedded JSONB question list.
func (s *Subject) QuestionSet() ([]Question, error) {
	if len(s.Questions) == 0 {
		return nil, nil
	}
	var questions []Question
	if err := json.Unmarshal(s.Questions, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode question set for subject %d: %w", s.ID, err)
	}
	return questions, nil
}

// BaseCoins returns the coin base used by the reward calculation. Quizzes use
// the floor(xp/2) convention; challenges use their explicit coin reward.
func (s *Subject) BaseCoins() int {
	if s.Kind == SubjectQuiz {
		return s.RewardXP / 2
	}
	return s.RewardCoins
}

// IsCompetitive reports whether submitted attempts on this subject race for
// the winner bonus. Every challenge resolves a winner; quizzes never do.
func (s *Subject) IsCompetitive() bool {
	return s.Kind == SubjectChallenge
}
