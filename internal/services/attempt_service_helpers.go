package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eduquest-hq/progression-service/internal/events"
	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
)

// loadOwnedAttempt fetches the attempt with its subject and verifies the
// caller owns it.
func (s *DefaultAttemptService) loadOwnedAttempt(ctx context.Context, attemptID uint, studentID, action string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByIDWithSubject(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, attemptID, "attempt", action, "attempt belongs to another student")
	}
	if attempt.Subject == nil {
		subject, err := s.repo.Subject().GetByID(ctx, nil, attempt.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to load subject for attempt %d: %w", attemptID, err)
		}
		attempt.Subject = subject
	}
	return attempt, nil
}

// submitTx runs the whole submission pipeline inside one transaction. The
// attempt row is locked on entry, so a submit racing another submit of the
// same attempt queues behind it and re-reads the committed state; the
// rewards_granted claim then decides which writer pays out. Every write in
// the pipeline is field-scoped and never touches rewards_granted, so a loser
// cannot reset the claim.
func (s *DefaultAttemptService) submitTx(ctx context.Context, txRepo repositories.Repository, attemptID uint, studentID string) (*SubmitResponse, []events.Event, error) {
	attempt, err := txRepo.Attempt().GetByIDForUpdate(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrAttemptNotFound
		}
		return nil, nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	subject, err := txRepo.Subject().GetByID(ctx, nil, attempt.SubjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load subject: %w", err)
	}

	var postEvents []events.Event
	now := time.Now().UTC()
	freshSubmission := attempt.Status.CanTransitionTo(models.AttemptSubmitted)

	if freshSubmission {
		questions, err := subject.QuestionSet()
		if err != nil {
			return nil, nil, err
		}
		answers, err := attempt.AnswerSet()
		if err != nil {
			return nil, nil, err
		}

		grade, err := s.grading.Grade(questions, answers)
		if err != nil {
			return nil, nil, err
		}

		attempt.Score = grade.Score
		attempt.TotalPossible = grade.TotalPossible
		attempt.Percent = grade.Percent
		attempt.Status = models.AttemptSubmitted
		attempt.SubmittedAt = &now
		if err := setReview(attempt, grade.Review); err != nil {
			return nil, nil, err
		}

		// The graded row must be visible to the winner scan below.
		fields := map[string]interface{}{
			"score":          attempt.Score,
			"total_possible": attempt.TotalPossible,
			"percent":        attempt.Percent,
			"status":         attempt.Status,
			"submitted_at":   now,
			"review":         attempt.Review,
		}
		if err := txRepo.Attempt().UpdateFields(ctx, nil, attempt.ID, fields); err != nil {
			return nil, nil, fmt.Errorf("failed to persist submission: %w", err)
		}
	}

	isWinner := attempt.IsWinner
	if subject.IsCompetitive() && freshSubmission {
		winner, err := s.resolveWinner(ctx, txRepo, subject.ID)
		if err != nil {
			return nil, nil, err
		}
		if winner != nil {
			if err := txRepo.Attempt().SetWinner(ctx, nil, subject.ID, winner.ID); err != nil {
				return nil, nil, fmt.Errorf("failed to persist winner: %w", err)
			}
			isWinner = winner.ID == attempt.ID
			attempt.IsWinner = isWinner

			postEvents = append(postEvents, events.NewEvent(events.EventWinnerResolved, events.WinnerResolvedEvent{
				SubjectID:        subject.ID,
				WinningAttemptID: winner.ID,
				StudentID:        winner.StudentID,
				Percent:          winner.Percent,
			}))
		}
	}

	var passGrade *int
	if subject.Kind == models.SubjectQuiz {
		passGrade = subject.PassGrade
	}
	outcome := s.rewards.ComputeReward(subject.RewardXP, subject.BaseCoins(), attempt.Percent, passGrade, isWinner)

	attempt.Passed = outcome.Passed
	attempt.XPEarned = outcome.XP
	attempt.CoinsEarned = outcome.Coins
	fields := map[string]interface{}{
		"passed":       attempt.Passed,
		"xp_earned":    attempt.XPEarned,
		"coins_earned": attempt.CoinsEarned,
	}
	if err := txRepo.Attempt().UpdateFields(ctx, nil, attempt.ID, fields); err != nil {
		return nil, nil, fmt.Errorf("failed to persist reward amounts: %w", err)
	}

	if freshSubmission {
		postEvents = append(postEvents, events.NewEvent(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
			AttemptID: attempt.ID,
			SubjectID: subject.ID,
			StudentID: attempt.StudentID,
			GroupID:   attempt.GroupID,
			Kind:      string(subject.Kind),
			Percent:   attempt.Percent,
			Passed:    attempt.Passed,
		}))
	}

	claimed, err := txRepo.Attempt().ClaimRewards(ctx, nil, attempt.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to claim rewards: %w", err)
	}
	if claimed {
		grantEvents, err := s.applyRewards(ctx, txRepo, attempt, subject, outcome, isWinner, now)
		if err != nil {
			return nil, nil, err
		}
		postEvents = append(postEvents, grantEvents...)

		if freshSubmission {
			if err := txRepo.Stats().IncrementQuestsCompleted(ctx, nil); err != nil {
				s.logger.Warn("failed to bump quest counter", "error", err)
			}
		}
	} else {
		s.logger.Info("rewards already granted by a concurrent writer",
			"attempt_id", attempt.ID,
			"student_id", studentID)
	}

	resp, err := s.buildSubmitResponse(attempt)
	if err != nil {
		return nil, nil, err
	}
	return resp, postEvents, nil
}

// applyRewards credits the student's accumulators and moves the streak. Runs
// only for the writer that won the rewards_granted claim.
func (s *DefaultAttemptService) applyRewards(ctx context.Context, txRepo repositories.Repository, attempt *models.Attempt, subject *models.Subject, outcome RewardOutcome, isWinner bool, now time.Time) ([]events.Event, error) {
	reward, err := txRepo.Reward().GetOrCreate(ctx, nil, attempt.StudentID, attempt.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reward row: %w", err)
	}

	if outcome.XP > 0 || outcome.Coins > 0 {
		if err := txRepo.Reward().AddRewards(ctx, nil, reward.ID, outcome.XP, outcome.Coins); err != nil {
			return nil, fmt.Errorf("failed to credit rewards: %w", err)
		}
	}

	if isWinner && !attempt.WinnerBonusAwarded {
		fields := map[string]interface{}{
			"winner_bonus_awarded":    true,
			"winner_bonus_awarded_at": now,
		}
		if err := txRepo.Attempt().UpdateFields(ctx, nil, attempt.ID, fields); err != nil {
			return nil, fmt.Errorf("failed to record winner bonus: %w", err)
		}
		attempt.WinnerBonusAwarded = true
	}

	grantEvents := []events.Event{
		events.NewEvent(events.EventRewardGranted, events.RewardGrantedEvent{
			AttemptID: attempt.ID,
			StudentID: attempt.StudentID,
			GroupID:   attempt.GroupID,
			XP:        outcome.XP,
			Coins:     outcome.Coins,
			IsWinner:  isWinner,
		}),
	}

	decision := s.rewards.NextStreak(subject.Kind, reward.StreakDays, reward.LastActivityDate, now)
	if decision.Changed {
		if err := txRepo.Reward().UpdateStreak(ctx, nil, reward.ID, decision.StreakDays, decision.LastActivityDate); err != nil {
			return nil, fmt.Errorf("failed to update streak: %w", err)
		}
		grantEvents = append(grantEvents, events.NewEvent(events.EventStreakUpdated, events.StreakUpdatedEvent{
			StudentID:  attempt.StudentID,
			GroupID:    attempt.GroupID,
			StreakDays: decision.StreakDays,
		}))
	}

	return grantEvents, nil
}

// resolveWinner scans every submitted attempt on the subject and picks the
// best: highest percent, ties broken by earliest submission. The scan locks
// the rows so two submissions cannot crown different winners.
func (s *DefaultAttemptService) resolveWinner(ctx context.Context, txRepo repositories.Repository, subjectID uint) (*models.Attempt, error) {
	attempts, err := txRepo.Attempt().ListSubmittedBySubject(ctx, nil, subjectID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list submitted attempts: %w", err)
	}
	if len(attempts) == 0 {
		return nil, nil
	}

	best := attempts[0]
	for _, candidate := range attempts[1:] {
		if candidate.Percent > best.Percent {
			best = candidate
			continue
		}
		if candidate.Percent == best.Percent &&
			candidate.SubmittedAt != nil && best.SubmittedAt != nil &&
			candidate.SubmittedAt.Before(*best.SubmittedAt) {
			best = candidate
		}
	}
	return best, nil
}

func (s *DefaultAttemptService) buildSubmitResponse(attempt *models.Attempt) (*SubmitResponse, error) {
	review, err := attempt.ReviewSet()
	if err != nil {
		return nil, err
	}
	return &SubmitResponse{
		OK:            true,
		AttemptID:     attempt.ID,
		ScorePercent:  attempt.Percent,
		Score:         attempt.Score,
		TotalPossible: attempt.TotalPossible,
		XPEarned:      attempt.XPEarned,
		CoinsEarned:   attempt.CoinsEarned,
		Passed:        attempt.Passed,
		IsWinner:      attempt.IsWinner,
		Review:        review,
	}, nil
}

func setReview(attempt *models.Attempt, review []models.ReviewEntry) error {
	raw, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("failed to encode review for attempt %d: %w", attempt.ID, err)
	}
	attempt.Review = raw
	return nil
}

// ===== READ AND MAINTENANCE OPERATIONS =====

func (s *DefaultAttemptService) Get(ctx context.Context, attemptID uint, studentID string) (*AttemptDetail, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID, "read")
	if err != nil {
		return nil, err
	}
	return s.toAttemptDetail(attempt)
}

// GetInProgress returns the student's open attempt on a subject, for resume
// screens.
func (s *DefaultAttemptService) GetInProgress(ctx context.Context, subjectID uint, studentID string) (*AttemptDetail, error) {
	attempt, err := s.repo.Attempt().GetBySubjectAndStudent(ctx, nil, subjectID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load attempt: %w", err)
	}
	if attempt.Status == models.AttemptSubmitted {
		return nil, ErrAttemptNotFound
	}
	return s.toAttemptDetail(attempt)
}

func (s *DefaultAttemptService) GetLatestSubmitted(ctx context.Context, studentID string, kind models.SubjectKind) (*AttemptDetail, error) {
	attempt, err := s.repo.Attempt().GetLatestSubmitted(ctx, nil, studentID, kind)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load latest attempt: %w", err)
	}
	return s.toAttemptDetail(attempt)
}

func (s *DefaultAttemptService) List(ctx context.Context, studentID string, req *AttemptListRequest) (*AttemptListResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	filters := repositories.AttemptFilters{
		Kind:      req.Kind,
		Status:    req.Status,
		Limit:     req.Limit,
		Offset:    req.Offset,
		SortBy:    "created_at",
		SortOrder: "desc",
	}
	attempts, total, err := s.repo.Attempt().GetByStudent(ctx, nil, studentID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	details := make([]AttemptDetail, 0, len(attempts))
	for _, attempt := range attempts {
		detail, err := s.toAttemptDetail(attempt)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return &AttemptListResponse{Attempts: details, Total: total}, nil
}

// Delete discards an unsubmitted attempt so the student can start over.
// Submitted attempts are immutable history and stay.
func (s *DefaultAttemptService) Delete(ctx context.Context, attemptID uint, studentID string) error {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID, "delete")
	if err != nil {
		return err
	}
	if attempt.Status == models.AttemptSubmitted {
		return ErrAttemptSubmitted
	}
	if err := s.repo.Attempt().Delete(ctx, nil, attempt.ID); err != nil {
		return fmt.Errorf("failed to delete attempt: %w", err)
	}
	return nil
}

func (s *DefaultAttemptService) toAttemptDetail(attempt *models.Attempt) (*AttemptDetail, error) {
	answers, err := attempt.AnswerSet()
	if err != nil {
		return nil, err
	}
	review, err := attempt.ReviewSet()
	if err != nil {
		return nil, err
	}

	detail := &AttemptDetail{
		AttemptID:       attempt.ID,
		SubjectID:       attempt.SubjectID,
		Kind:            attempt.Kind,
		Status:          attempt.Status,
		CurrentPosition: attempt.CurrentPosition,
		Answers:         answers,
		Score:           attempt.Score,
		TotalPossible:   attempt.TotalPossible,
		Percent:         attempt.Percent,
		Passed:          attempt.Passed,
		XPEarned:        attempt.XPEarned,
		CoinsEarned:     attempt.CoinsEarned,
		IsWinner:        attempt.IsWinner,
		Review:          review,
		StartedAt:       attempt.StartedAt,
		SubmittedAt:     attempt.SubmittedAt,
	}
	if attempt.Subject != nil {
		detail.SubjectTitle = attempt.Subject.Title
	}
	return detail, nil
}
