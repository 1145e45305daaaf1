package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/eduquest-hq/progression-service/internal/events"
	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
	"github.com/eduquest-hq/progression-service/internal/validator"
)

// DefaultAttemptService drives the attempt state machine from start through
// submission, reward application and winner resolution.
type DefaultAttemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	grading   GradingService
	rewards   RewardService
	publisher events.EventPublisher
}

func NewAttemptService(
	repo repositories.Repository,
	db *gorm.DB,
	logger *slog.Logger,
	validator *validator.Validator,
	grading GradingService,
	rewards RewardService,
	publisher events.EventPublisher,
) *DefaultAttemptService {
	return &DefaultAttemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		grading:   grading,
		rewards:   rewards,
		publisher: publisher,
	}
}

// Start opens an attempt for the student on a subject. When the student
// already has an attempt on that subject the existing one is returned, so
// retried starts and accidental double-clicks never fork a second attempt.
func (s *DefaultAttemptService) Start(ctx context.Context, studentID string, req *StartAttemptRequest) (*StartAttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	subject, err := s.repo.Subject().GetByID(ctx, nil, req.SubjectID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to load subject: %w", err)
	}
	if subject.Status != models.SubjectActive {
		return nil, ErrSubjectNotActive
	}

	existing, err := s.repo.Attempt().GetBySubjectAndStudent(ctx, nil, subject.ID, studentID)
	if err == nil {
		return &StartAttemptResponse{
			AttemptID:       existing.ID,
			Status:          existing.Status,
			CurrentPosition: existing.CurrentPosition,
			Resumed:         true,
		}, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to look up existing attempt: %w", err)
	}

	now := time.Now().UTC()
	groupID := req.GroupID
	if groupID == "" {
		groupID = subject.GroupID
	}
	attempt := &models.Attempt{
		SubjectID: subject.ID,
		StudentID: studentID,
		GroupID:   groupID,
		Kind:      subject.Kind,
		Status:    models.AttemptInProgress,
		StartedAt: &now,
	}

	if err := s.repo.Attempt().Create(ctx, nil, attempt); err != nil {
		// A concurrent start may have won the unique (subject, student) slot.
		if existing, lookupErr := s.repo.Attempt().GetBySubjectAndStudent(ctx, nil, subject.ID, studentID); lookupErr == nil {
			return &StartAttemptResponse{
				AttemptID:       existing.ID,
				Status:          existing.Status,
				CurrentPosition: existing.CurrentPosition,
				Resumed:         true,
			}, nil
		}
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.publishEvent(ctx, events.NewEvent(events.EventAttemptStarted, map[string]interface{}{
		"attempt_id": attempt.ID,
		"subject_id": subject.ID,
		"student_id": studentID,
		"kind":       string(subject.Kind),
	}))

	s.logger.Info("attempt started",
		"attempt_id", attempt.ID,
		"subject_id", subject.ID,
		"student_id", studentID)

	return &StartAttemptResponse{
		AttemptID:       attempt.ID,
		Status:          attempt.Status,
		CurrentPosition: attempt.CurrentPosition,
	}, nil
}

// RecordAnswer stores or replaces the answer at one question index and grades
// it for immediate feedback. Calling it on a submitted attempt changes
// nothing and reports the stored correctness.
func (s *DefaultAttemptService) RecordAnswer(ctx context.Context, attemptID uint, studentID string, req *RecordAnswerRequest) (*RecordAnswerResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID, "answer")
	if err != nil {
		return nil, err
	}

	answers, err := attempt.AnswerSet()
	if err != nil {
		return nil, err
	}

	if !attempt.Status.CanTransitionTo(models.AttemptInProgress) {
		return storedAnswerFeedback(answers, req.QuestionIndex), nil
	}

	questions, err := attempt.Subject.QuestionSet()
	if err != nil {
		return nil, err
	}
	if req.QuestionIndex >= len(questions) {
		return nil, NewValidationError("question_index", "question index out of range", req.QuestionIndex)
	}

	answer := models.Answer{
		QuestionIndex: req.QuestionIndex,
		QuestionType:  req.QuestionType,
		Selected:      req.Selected,
		TextAnswer:    req.TextAnswer,
		Pairs:         req.Pairs,
	}
	correct, err := s.grading.GradeQuestion(questions[req.QuestionIndex], &answer)
	if err != nil {
		return nil, err
	}
	answer.IsCorrect = &correct

	replaced := false
	for i := range answers {
		if answers[i].QuestionIndex == req.QuestionIndex {
			answers[i] = answer
			replaced = true
			break
		}
	}
	if !replaced {
		answers = append(answers, answer)
	}

	if err := attempt.SetAnswerSet(answers); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"answers":          attempt.Answers,
		"current_position": req.QuestionIndex + 1,
		"status":           models.AttemptInProgress,
	}
	applied, err := s.repo.Attempt().UpdateIfUnsubmitted(ctx, nil, attempt.ID, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	if !applied {
		// A concurrent submission landed between our read and this write;
		// the attempt is final and the answer was not stored.
		fresh, err := s.repo.Attempt().GetByID(ctx, nil, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload attempt: %w", err)
		}
		stored, err := fresh.AnswerSet()
		if err != nil {
			return nil, err
		}
		return storedAnswerFeedback(stored, req.QuestionIndex), nil
	}

	return &RecordAnswerResponse{OK: true, IsCorrect: correct}, nil
}

// storedAnswerFeedback reports the correctness recorded at submission time,
// for answer calls that arrive after the attempt became final.
func storedAnswerFeedback(answers []models.Answer, questionIndex int) *RecordAnswerResponse {
	for _, answer := range answers {
		if answer.QuestionIndex == questionIndex && answer.IsCorrect != nil {
			return &RecordAnswerResponse{OK: true, IsCorrect: *answer.IsCorrect}
		}
	}
	return &RecordAnswerResponse{OK: true}
}

// SaveProgress persists only the student's position, for drafts and
// navigation. Submitted attempts ignore the call.
func (s *DefaultAttemptService) SaveProgress(ctx context.Context, attemptID uint, studentID string, req *SaveProgressRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID, "save")
	if err != nil {
		return err
	}
	if !attempt.Status.CanTransitionTo(models.AttemptInProgress) {
		return nil
	}

	fields := map[string]interface{}{
		"current_position": req.Position,
		"status":           models.AttemptInProgress,
	}
	// Losing the write to a concurrent submission is the same no-op as
	// saving a submitted attempt.
	if _, err := s.repo.Attempt().UpdateIfUnsubmitted(ctx, nil, attempt.ID, fields); err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

// Submit finalizes the attempt: grade, resolve the winner for challenges,
// compute the payout and apply it exactly once. A submitted attempt returns
// its stored result, and a submission that crashed between grading and reward
// application finishes the reward step without re-grading.
func (s *DefaultAttemptService) Submit(ctx context.Context, attemptID uint, studentID string) (*SubmitResponse, error) {
	attempt, err := s.loadOwnedAttempt(ctx, attemptID, studentID, "submit")
	if err != nil {
		return nil, err
	}

	if attempt.Status == models.AttemptSubmitted && attempt.RewardsGranted {
		return s.buildSubmitResponse(attempt)
	}

	var (
		resp       *SubmitResponse
		postEvents []events.Event
	)
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var txErr error
		resp, postEvents, txErr = s.submitTx(ctx, txRepo, attemptID, studentID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	for _, event := range postEvents {
		s.publishEvent(ctx, event)
	}
	return resp, nil
}

// publishEvent sends best-effort; a broker outage never fails the request.
func (s *DefaultAttemptService) publishEvent(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed", "type", event.Type, "error", err)
	}
}
