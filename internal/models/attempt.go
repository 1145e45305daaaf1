package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// CanTransitionTo enforces the forward-only attempt state machine. Nothing
// leaves submitted.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	switch s {
	case AttemptNotStarted:
		return next == AttemptInProgress || next == AttemptSubmitted
	case AttemptInProgress:
		return next == AttemptInProgress || next == AttemptSubmitted
	case AttemptSubmitted:
		return false
	}
	return false
}

// Attempt is one student's record for one subject. At most one row exists per
// (subject, student) pair; start/accept is idempotent against that constraint.
type Attempt struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	SubjectID uint          `json:"subject_id" gorm:"not null;uniqueIndex:idx_attempt_subject_student"`
	StudentID string        `json:"student_id" gorm:"not null;uniqueIndex:idx_attempt_subject_student;size:255"`
	GroupID   string        `json:"group_id" gorm:"index;size:255"`
	Kind      SubjectKind   `json:"kind" gorm:"not null;index;size:16"`
	Status    AttemptStatus `json:"status" gorm:"default:not_started;index"`

	// Progress tracking
	CurrentPosition int            `json:"current_position"`
	Answers         datatypes.JSON `json:"answers" gorm:"type:jsonb"` // []Answer

	// Scoring, written once at submission and immutable afterward
	Score         int            `json:"score"`
	TotalPossible int            `json:"total_possible"`
	Percent       int            `json:"percent"`
	Passed        bool           `json:"passed"`
	Review        datatypes.JSON `json:"review" gorm:"type:jsonb"` // []ReviewEntry

	// Reward application. RewardsGranted flips false to true exactly once via
	// a conditional update; the payout amounts are recorded alongside it.
	XPEarned         int        `json:"xp_earned"`
	CoinsEarned      int        `json:"coins_earned"`
	RewardsGranted   bool       `json:"rewards_granted" gorm:"default:false"`
	RewardsGrantedAt *time.Time `json:"rewards_granted_at"`

	// Winner resolution. IsWinner is recomputed on every submission for the
	// subject; WinnerBonusAwarded records that the bonus was actually paid and
	// is never cleared afterward.
	IsWinner             bool       `json:"is_winner" gorm:"default:false"`
	WinnerBonusAwarded   bool       `json:"winner_bonus_awarded" gorm:"default:false"`
	WinnerBonusAwardedAt *time.Time `json:"winner_bonus_awarded_at"`

	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Subject *Subject `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
}

// AnswerSet decodes the attempt's JSONB answers collection.
func (a *Attempt) AnswerSet() ([]Answer, error) {
	if len(a.Answers) == 0 {
		return nil, nil
	}
	var answers []Answer
	if err := json.Unmarshal(a.Answers, &answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers for attempt %d: %w", a.ID, err)
	}
	return answers, nil
}

// SetAnswerSet encodes answers back into the JSONB column.
func (a *Attempt) SetAnswerSet(answers []Answer) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers for attempt %d: %w", a.ID, err)
	}
	a.Answers = raw
	return nil
}

// ReviewSet decodes the per-question review stored at submission.
func (a *Attempt) ReviewSet() ([]ReviewEntry, error) {
	if len(a.Review) == 0 {
		return nil, nil
	}
	var review []ReviewEntry
	if err := json.Unmarshal(a.Review, &review); err != nil {
		return nil, fmt.Errorf("failed to decode review for attempt %d: %w", a.ID, err)
	}
	return review, nil
}
