package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
)

// Challenge winner bonus on top of the computed payout.
const (
	WinnerBonusXP    = 50
	WinnerBonusCoins = 20
)

// DefaultRewardService computes payouts and streaks and serves the reward
// read endpoints.
type DefaultRewardService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewRewardService(repo repositories.Repository, logger *slog.Logger) *DefaultRewardService {
	return &DefaultRewardService{
		repo:   repo,
		logger: logger,
	}
}

// rewardMultiplier maps a score percent to the payout multiplier tier.
func rewardMultiplier(percent int) float64 {
	switch {
	case percent >= 85:
		return 1.0
	case percent >= 75:
		return 0.8
	case percent >= 65:
		return 0.6
	case percent >= 50:
		return 0.4
	default:
		return 0.2
	}
}

// ComputeReward turns a score percent into an XP and coin payout.
//
// When passGrade is set and the percent falls below it, the payout is zero
// and the attempt is failed. Otherwise the base amounts are scaled by the
// multiplier tier, truncating fractions. Winners receive a flat bonus on top.
func (s *DefaultRewardService) ComputeReward(baseXP, baseCoins, percent int, passGrade *int, isWinner bool) RewardOutcome {
	if passGrade != nil && percent < *passGrade {
		return RewardOutcome{Passed: false}
	}

	multiplier := rewardMultiplier(percent)
	outcome := RewardOutcome{
		XP:         int(math.Floor(float64(baseXP) * multiplier)),
		Coins:      int(math.Floor(float64(baseCoins) * multiplier)),
		Passed:     true,
		Multiplier: multiplier,
	}

	if isWinner {
		outcome.XP += WinnerBonusXP
		outcome.Coins += WinnerBonusCoins
	}
	return outcome
}

// NextStreak decides the streak after an activity on the given day.
//
// Challenges compare calendar dates as Y-M-D strings: activity yesterday
// extends the streak, activity today leaves it unchanged, anything older
// resets to one. Quizzes compare whole elapsed days between midnights to the
// same effect. A student with no recorded activity starts at one.
func (s *DefaultRewardService) NextStreak(kind models.SubjectKind, currentStreak int, lastActivity *time.Time, today time.Time) StreakDecision {
	if kind == models.SubjectChallenge {
		return nextStreakCalendar(currentStreak, lastActivity, today)
	}
	return nextStreakElapsed(currentStreak, lastActivity, today)
}

func nextStreakCalendar(currentStreak int, lastActivity *time.Time, today time.Time) StreakDecision {
	decision := StreakDecision{LastActivityDate: today, Changed: true}
	if lastActivity == nil {
		decision.StreakDays = 1
		return decision
	}

	last := lastActivity.Format("2006-01-02")
	switch {
	case last == today.AddDate(0, 0, -1).Format("2006-01-02"):
		decision.StreakDays = currentStreak + 1
	case last == today.Format("2006-01-02"):
		decision.StreakDays = currentStreak
		decision.Changed = false
	default:
		decision.StreakDays = 1
	}
	return decision
}

func nextStreakElapsed(currentStreak int, lastActivity *time.Time, today time.Time) StreakDecision {
	decision := StreakDecision{LastActivityDate: today, Changed: true}
	if lastActivity == nil {
		decision.StreakDays = 1
		return decision
	}

	days := int(midnight(today).Sub(midnight(*lastActivity)).Hours() / 24)
	switch days {
	case 1:
		decision.StreakDays = currentStreak + 1
	case 0:
		decision.StreakDays = currentStreak
		decision.Changed = false
	default:
		decision.StreakDays = 1
	}
	return decision
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *DefaultRewardService) GetStreak(ctx context.Context, studentID, groupID string) (*StreakResponse, error) {
	reward, err := s.repo.Reward().Get(ctx, nil, studentID, groupID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// A student who never submitted has no row yet and no streak.
			return &StreakResponse{StreakDays: 0}, nil
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}

	return &StreakResponse{
		StreakDays:       reward.StreakDays,
		LastActivityDate: reward.LastActivityDate,
	}, nil
}

func (s *DefaultRewardService) GetSummary(ctx context.Context, studentID, groupID string) (*RewardSummaryResponse, error) {
	reward, err := s.repo.Reward().Get(ctx, nil, studentID, groupID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("failed to get reward summary: %w", err)
	}

	return &RewardSummaryResponse{
		StudentID:  reward.StudentID,
		GroupID:    reward.GroupID,
		TotalXP:    reward.TotalXP,
		TotalCoins: reward.TotalCoins,
		StreakDays: reward.StreakDays,
	}, nil
}

// GetLeaderboard ranks a group's students by accumulated XP. Display names
// come from the identity provider; a lookup failure degrades to IDs only.
func (s *DefaultRewardService) GetLeaderboard(ctx context.Context, groupID string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	rewards, err := s.repo.Reward().ListByGroup(ctx, nil, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list group rewards: %w", err)
	}

	ids := make([]string, 0, len(rewards))
	for _, reward := range rewards {
		ids = append(ids, reward.StudentID)
	}

	names := make(map[string]string, len(ids))
	if users, err := s.repo.User().GetByIDs(ctx, ids); err != nil {
		s.logger.Warn("leaderboard name lookup failed", "group_id", groupID, "error", err)
	} else {
		for _, user := range users {
			names[user.ID] = user.DisplayName
		}
	}

	entries := make([]LeaderboardEntry, 0, len(rewards))
	for i, reward := range rewards {
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			StudentID:   reward.StudentID,
			StudentName: names[reward.StudentID],
			TotalXP:     reward.TotalXP,
			TotalCoins:  reward.TotalCoins,
			StreakDays:  reward.StreakDays,
		})
	}
	return entries, nil
}
