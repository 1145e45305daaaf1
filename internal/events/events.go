package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the progression service.
const (
	EventAttemptStarted   = "progression.attempt_started"
	EventAttemptSubmitted = "progression.attempt_submitted"
	EventRewardGranted    = "progression.reward_granted"
	EventWinnerResolved   = "progression.winner_resolved"
	EventStreakUpdated    = "progression.streak_updated"
)

// Event is the envelope for every message on the progression topic.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with the service identity filled in.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "progression-service",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher abstracts the message bus so services can be tested without
// a broker.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// AttemptSubmittedEvent is the payload published when grading completes.
type AttemptSubmittedEvent struct {
	AttemptID uint   `json:"attempt_id"`
	SubjectID uint   `json:"subject_id"`
	StudentID string `json:"student_id"`
	GroupID   string `json:"group_id"`
	Kind      string `json:"kind"`
	Percent   int    `json:"percent"`
	Passed    bool   `json:"passed"`
}

// RewardGrantedEvent is published after the atomic reward claim succeeds.
type RewardGrantedEvent struct {
	AttemptID uint   `json:"attempt_id"`
	StudentID string `json:"student_id"`
	GroupID   string `json:"group_id"`
	XP        int    `json:"xp"`
	Coins     int    `json:"coins"`
	IsWinner  bool   `json:"is_winner"`
}

// WinnerResolvedEvent is published after each winner resolution pass.
type WinnerResolvedEvent struct {
	SubjectID        uint   `json:"subject_id"`
	WinningAttemptID uint   `json:"winning_attempt_id"`
	StudentID        string `json:"student_id"`
	Percent          int    `json:"percent"`
}

// StreakUpdatedEvent is published when a submission moves a streak.
type StreakUpdatedEvent struct {
	StudentID  string `json:"student_id"`
	GroupID    string `json:"group_id"`
	StreakDays int    `json:"streak_days"`
}
