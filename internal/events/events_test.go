package events

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewEvent_Envelope(t *testing.T) {
	payload := AttemptSubmittedEvent{AttemptID: 3, SubjectID: 1, StudentID: "student-1"}
	event := NewEvent(EventAttemptSubmitted, payload)

	if event.ID == "" {
		t.Error("ID is empty")
	}
	if event.Type != EventAttemptSubmitted {
		t.Errorf("Type = %q, want %q", event.Type, EventAttemptSubmitted)
	}
	if event.Source != "progression-service" {
		t.Errorf("Source = %q", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("Version = %q", event.Version)
	}
	if time.Since(event.Timestamp) > time.Minute {
		t.Errorf("Timestamp = %v, not recent", event.Timestamp)
	}

	other := NewEvent(EventAttemptSubmitted, payload)
	if other.ID == event.ID {
		t.Error("two events share an ID")
	}
}

func TestMockEventPublisher_RecordsAndClears(t *testing.T) {
	publisher := NewMockEventPublisher(testLogger())
	ctx := context.Background()

	if err := publisher.Publish(ctx, NewEvent(EventRewardGranted, RewardGrantedEvent{XP: 40})); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := publisher.Publish(ctx, NewEvent(EventStreakUpdated, StreakUpdatedEvent{StreakDays: 3})); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	recorded := publisher.GetPublishedEvents()
	if len(recorded) != 2 {
		t.Fatalf("recorded events = %d, want 2", len(recorded))
	}
	if recorded[0].Type != EventRewardGranted || recorded[1].Type != EventStreakUpdated {
		t.Errorf("recorded order = %q, %q", recorded[0].Type, recorded[1].Type)
	}

	publisher.ClearEvents()
	if len(publisher.GetPublishedEvents()) != 0 {
		t.Error("ClearEvents() left events behind")
	}

	if err := publisher.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
