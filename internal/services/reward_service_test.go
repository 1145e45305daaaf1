package services

import (
	"testing"
	"time"

	"github.com/eduquest-hq/progression-service/internal/models"
)

func newTestRewardService() *DefaultRewardService {
	return NewRewardService(nil, testLogger())
}

func intPtr(v int) *int { return &v }

func TestComputeReward_MultiplierTiers(t *testing.T) {
	svc := newTestRewardService()

	tests := []struct {
		name      string
		percent   int
		wantXP    int
		wantCoins int
	}{
		{name: "top tier", percent: 85, wantXP: 100, wantCoins: 50},
		{name: "just below top tier", percent: 84, wantXP: 80, wantCoins: 40},
		{name: "eighty tier", percent: 75, wantXP: 80, wantCoins: 40},
		{name: "sixty tier", percent: 65, wantXP: 60, wantCoins: 30},
		{name: "forty tier", percent: 50, wantXP: 40, wantCoins: 20},
		{name: "floor tier", percent: 49, wantXP: 20, wantCoins: 10},
		{name: "zero percent still pays floor tier", percent: 0, wantXP: 20, wantCoins: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := svc.ComputeReward(100, 50, tt.percent, nil, false)
			if outcome.XP != tt.wantXP {
				t.Errorf("XP = %d, want %d", outcome.XP, tt.wantXP)
			}
			if outcome.Coins != tt.wantCoins {
				t.Errorf("Coins = %d, want %d", outcome.Coins, tt.wantCoins)
			}
			if !outcome.Passed {
				t.Error("Passed = false without a pass grade")
			}
		})
	}
}

func TestComputeReward_PassGradeGate(t *testing.T) {
	svc := newTestRewardService()

	t.Run("below the gate pays nothing", func(t *testing.T) {
		outcome := svc.ComputeReward(100, 50, 69, intPtr(70), false)
		if outcome.XP != 0 || outcome.Coins != 0 {
			t.Errorf("payout = %d/%d, want 0/0", outcome.XP, outcome.Coins)
		}
		if outcome.Passed {
			t.Error("Passed = true below the gate")
		}
	})

	t.Run("at the gate pays the tier", func(t *testing.T) {
		outcome := svc.ComputeReward(100, 50, 70, intPtr(70), false)
		if !outcome.Passed {
			t.Error("Passed = false at the gate")
		}
		// 70 percent falls in the 0.6 tier.
		if outcome.XP != 60 || outcome.Coins != 30 {
			t.Errorf("payout = %d/%d, want 60/30", outcome.XP, outcome.Coins)
		}
	})
}

func TestComputeReward_FloorsFractions(t *testing.T) {
	svc := newTestRewardService()

	// 150 and 100 at 80 percent scale by 0.8.
	outcome := svc.ComputeReward(150, 100, 80, nil, false)
	if outcome.XP != 120 || outcome.Coins != 80 {
		t.Errorf("payout = %d/%d, want 120/80", outcome.XP, outcome.Coins)
	}

	// 25 at 0.6 is 15.0; 25 at 0.8 is 20.0; odd bases truncate.
	outcome = svc.ComputeReward(25, 25, 65, nil, false)
	if outcome.XP != 15 || outcome.Coins != 15 {
		t.Errorf("payout = %d/%d, want 15/15", outcome.XP, outcome.Coins)
	}

	outcome = svc.ComputeReward(33, 33, 49, nil, false)
	// 33 * 0.2 = 6.6, floors to 6.
	if outcome.XP != 6 || outcome.Coins != 6 {
		t.Errorf("payout = %d/%d, want 6/6", outcome.XP, outcome.Coins)
	}
}

func TestComputeReward_WinnerBonus(t *testing.T) {
	svc := newTestRewardService()

	outcome := svc.ComputeReward(150, 100, 80, nil, true)
	if outcome.XP != 170 || outcome.Coins != 100 {
		t.Errorf("payout = %d/%d, want 170/100", outcome.XP, outcome.Coins)
	}
}

func TestNextStreak_ChallengeCalendarPolicy(t *testing.T) {
	svc := newTestRewardService()
	today := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -7)
	earlierToday := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		current     int
		last        *time.Time
		wantStreak  int
		wantChanged bool
	}{
		{name: "no history starts at one", current: 0, last: nil, wantStreak: 1, wantChanged: true},
		{name: "yesterday extends", current: 4, last: &yesterday, wantStreak: 5, wantChanged: true},
		{name: "today holds", current: 4, last: &earlierToday, wantStreak: 4, wantChanged: false},
		{name: "gap resets", current: 9, last: &lastWeek, wantStreak: 1, wantChanged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := svc.NextStreak(models.SubjectChallenge, tt.current, tt.last, today)
			if decision.StreakDays != tt.wantStreak {
				t.Errorf("StreakDays = %d, want %d", decision.StreakDays, tt.wantStreak)
			}
			if decision.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", decision.Changed, tt.wantChanged)
			}
		})
	}
}

func TestNextStreak_QuizElapsedPolicy(t *testing.T) {
	svc := newTestRewardService()
	today := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	// Late last night: under 24 hours ago but one whole day boundary back.
	lateYesterday := time.Date(2026, 3, 9, 23, 50, 0, 0, time.UTC)
	threeDaysAgo := today.AddDate(0, 0, -3)
	earlierToday := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		current     int
		last        *time.Time
		wantStreak  int
		wantChanged bool
	}{
		{name: "no history starts at one", current: 0, last: nil, wantStreak: 1, wantChanged: true},
		{name: "one day boundary extends", current: 2, last: &lateYesterday, wantStreak: 3, wantChanged: true},
		{name: "same day holds", current: 2, last: &earlierToday, wantStreak: 2, wantChanged: false},
		{name: "multi day gap resets", current: 7, last: &threeDaysAgo, wantStreak: 1, wantChanged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := svc.NextStreak(models.SubjectQuiz, tt.current, tt.last, today)
			if decision.StreakDays != tt.wantStreak {
				t.Errorf("StreakDays = %d, want %d", decision.StreakDays, tt.wantStreak)
			}
			if decision.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", decision.Changed, tt.wantChanged)
			}
		})
	}
}

func TestRewardMultiplier_Boundaries(t *testing.T) {
	tests := []struct {
		percent int
		want    float64
	}{
		{100, 1.0},
		{85, 1.0},
		{84, 0.8},
		{75, 0.8},
		{74, 0.6},
		{65, 0.6},
		{64, 0.4},
		{50, 0.4},
		{49, 0.2},
		{0, 0.2},
	}

	for _, tt := range tests {
		if got := rewardMultiplier(tt.percent); got != tt.want {
			t.Errorf("rewardMultiplier(%d) = %v, want %v", tt.percent, got, tt.want)
		}
	}
}
