package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateAttemptCache drops every cached view of one attempt plus the
// listings that contain it.
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint, studentID string) {
	SafeDelete(ctx, cm.Attempt, fmt.Sprintf("id:%d", attemptID))
	SafeInvalidatePattern(ctx, cm.Attempt, fmt.Sprintf("student:%s:*", studentID))
}

// InvalidateRewardCache drops the cached reward accumulator for one student
// in one group, plus any group leaderboard containing it.
func InvalidateRewardCache(ctx context.Context, cm *CacheManager, studentID, groupID string) {
	SafeDelete(ctx, cm.Reward, fmt.Sprintf("student:%s:group:%s", studentID, groupID))
	SafeInvalidatePattern(ctx, cm.Reward, fmt.Sprintf("leaderboard:%s:*", groupID))
}
