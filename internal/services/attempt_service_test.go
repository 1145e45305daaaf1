package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/eduquest-hq/progression-service/internal/events"
	"github.com/eduquest-hq/progression-service/internal/models"
	"github.com/eduquest-hq/progression-service/internal/repositories"
	"github.com/eduquest-hq/progression-service/internal/validator"
)

// fakeRepository is an in-memory Repository for service tests. Transactions
// run against the same store; interleaved writers are simulated with the
// one-shot beforeTx and beforeGuardedWrite hooks instead of real row locks.
type fakeRepository struct {
	subjects    map[uint]*models.Subject
	attempts    map[uint]*models.Attempt
	rewards     map[string]*models.StudentReward
	stats       models.PlatformStats
	users       map[string]*models.User
	nextAttempt uint
	nextReward  uint

	// beforeTx runs once at the start of the next transaction, after the
	// caller's pre-transaction reads.
	beforeTx func()
	// beforeGuardedWrite runs once before the next status-guarded update.
	beforeGuardedWrite func()
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		subjects: make(map[uint]*models.Subject),
		attempts: make(map[uint]*models.Attempt),
		rewards:  make(map[string]*models.StudentReward),
		users:    make(map[string]*models.User),
	}
}

func (r *fakeRepository) Subject() repositories.SubjectRepository { return &fakeSubjectRepo{r} }
func (r *fakeRepository) Attempt() repositories.AttemptRepository { return &fakeAttemptRepo{r} }
func (r *fakeRepository) Reward() repositories.RewardRepository   { return &fakeRewardRepo{r} }
func (r *fakeRepository) Stats() repositories.StatsRepository     { return &fakeStatsRepo{r} }
func (r *fakeRepository) User() repositories.UserRepository       { return &fakeUserRepo{r} }

func (r *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	if hook := r.beforeTx; hook != nil {
		r.beforeTx = nil
		hook()
	}
	return fn(r)
}

func (r *fakeRepository) Ping(ctx context.Context) error { return nil }
func (r *fakeRepository) Close() error                   { return nil }

func copyAttempt(a *models.Attempt) *models.Attempt {
	clone := *a
	clone.Answers = append(a.Answers[:0:0], a.Answers...)
	clone.Review = append(a.Review[:0:0], a.Review...)
	return &clone
}

type fakeSubjectRepo struct{ r *fakeRepository }

func (f *fakeSubjectRepo) Create(_ context.Context, _ *gorm.DB, subject *models.Subject) error {
	f.r.subjects[subject.ID] = subject
	return nil
}

func (f *fakeSubjectRepo) GetByID(_ context.Context, _ *gorm.DB, id uint) (*models.Subject, error) {
	subject, ok := f.r.subjects[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *subject
	return &clone, nil
}

func (f *fakeSubjectRepo) List(_ context.Context, _ *gorm.DB, _ repositories.SubjectFilters) ([]*models.Subject, int64, error) {
	out := make([]*models.Subject, 0, len(f.r.subjects))
	for _, s := range f.r.subjects {
		clone := *s
		out = append(out, &clone)
	}
	return out, int64(len(out)), nil
}

func (f *fakeSubjectRepo) UpdateStatus(_ context.Context, _ *gorm.DB, id uint, status models.SubjectStatus) error {
	subject, ok := f.r.subjects[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	subject.Status = status
	return nil
}

type fakeAttemptRepo struct{ r *fakeRepository }

func (f *fakeAttemptRepo) Create(_ context.Context, _ *gorm.DB, attempt *models.Attempt) error {
	for _, existing := range f.r.attempts {
		if existing.SubjectID == attempt.SubjectID && existing.StudentID == attempt.StudentID {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	f.r.nextAttempt++
	attempt.ID = f.r.nextAttempt
	f.r.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

func (f *fakeAttemptRepo) GetByID(_ context.Context, _ *gorm.DB, id uint) (*models.Attempt, error) {
	attempt, ok := f.r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyAttempt(attempt), nil
}

func (f *fakeAttemptRepo) GetByIDWithSubject(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	attempt, err := f.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if subject, ok := f.r.subjects[attempt.SubjectID]; ok {
		clone := *subject
		attempt.Subject = &clone
	}
	return attempt, nil
}

func (f *fakeAttemptRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Attempt, error) {
	return f.GetByID(ctx, tx, id)
}

func (f *fakeAttemptRepo) GetBySubjectAndStudent(_ context.Context, _ *gorm.DB, subjectID uint, studentID string) (*models.Attempt, error) {
	for _, attempt := range f.r.attempts {
		if attempt.SubjectID == subjectID && attempt.StudentID == studentID {
			return copyAttempt(attempt), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAttemptRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uint, fields map[string]interface{}) error {
	attempt, ok := f.r.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range fields {
		switch key {
		case "current_position":
			attempt.CurrentPosition = value.(int)
		case "status":
			attempt.Status = value.(models.AttemptStatus)
		case "answers":
			attempt.Answers = value.(datatypes.JSON)
		case "score":
			attempt.Score = value.(int)
		case "total_possible":
			attempt.TotalPossible = value.(int)
		case "percent":
			attempt.Percent = value.(int)
		case "submitted_at":
			at := value.(time.Time)
			attempt.SubmittedAt = &at
		case "review":
			attempt.Review = value.(datatypes.JSON)
		case "passed":
			attempt.Passed = value.(bool)
		case "xp_earned":
			attempt.XPEarned = value.(int)
		case "coins_earned":
			attempt.CoinsEarned = value.(int)
		case "winner_bonus_awarded":
			attempt.WinnerBonusAwarded = value.(bool)
		case "winner_bonus_awarded_at":
			at := value.(time.Time)
			attempt.WinnerBonusAwardedAt = &at
		}
	}
	return nil
}

func (f *fakeAttemptRepo) UpdateIfUnsubmitted(ctx context.Context, tx *gorm.DB, id uint, fields map[string]interface{}) (bool, error) {
	if hook := f.r.beforeGuardedWrite; hook != nil {
		f.r.beforeGuardedWrite = nil
		hook()
	}
	attempt, ok := f.r.attempts[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if attempt.Status == models.AttemptSubmitted {
		return false, nil
	}
	return true, f.UpdateFields(ctx, tx, id, fields)
}

func (f *fakeAttemptRepo) Delete(_ context.Context, _ *gorm.DB, id uint) error {
	if _, ok := f.r.attempts[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.r.attempts, id)
	return nil
}

func (f *fakeAttemptRepo) List(_ context.Context, _ *gorm.DB, _ repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	return nil, 0, nil
}

func (f *fakeAttemptRepo) GetByStudent(_ context.Context, _ *gorm.DB, studentID string, _ repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	var out []*models.Attempt
	for _, attempt := range f.r.attempts {
		if attempt.StudentID == studentID {
			out = append(out, copyAttempt(attempt))
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAttemptRepo) GetLatestSubmitted(_ context.Context, _ *gorm.DB, studentID string, kind models.SubjectKind) (*models.Attempt, error) {
	var latest *models.Attempt
	for _, attempt := range f.r.attempts {
		if attempt.StudentID != studentID || attempt.Kind != kind || attempt.Status != models.AttemptSubmitted {
			continue
		}
		if latest == nil || (attempt.SubmittedAt != nil && latest.SubmittedAt != nil && attempt.SubmittedAt.After(*latest.SubmittedAt)) {
			latest = attempt
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return copyAttempt(latest), nil
}

func (f *fakeAttemptRepo) ListSubmittedBySubject(_ context.Context, _ *gorm.DB, subjectID uint, _ bool) ([]*models.Attempt, error) {
	var out []*models.Attempt
	for _, attempt := range f.r.attempts {
		if attempt.SubjectID == subjectID && attempt.Status == models.AttemptSubmitted {
			out = append(out, copyAttempt(attempt))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt == nil || out[j].SubmittedAt == nil {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(*out[j].SubmittedAt)
	})
	return out, nil
}

func (f *fakeAttemptRepo) ClaimRewards(_ context.Context, _ *gorm.DB, id uint) (bool, error) {
	attempt, ok := f.r.attempts[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if attempt.RewardsGranted {
		return false, nil
	}
	now := time.Now().UTC()
	attempt.RewardsGranted = true
	attempt.RewardsGrantedAt = &now
	return true, nil
}

func (f *fakeAttemptRepo) SetWinner(_ context.Context, _ *gorm.DB, subjectID uint, winnerID uint) error {
	for _, attempt := range f.r.attempts {
		if attempt.SubjectID != subjectID {
			continue
		}
		attempt.IsWinner = attempt.ID == winnerID
	}
	return nil
}

type fakeRewardRepo struct{ r *fakeRepository }

func rewardKey(studentID, groupID string) string { return studentID + "|" + groupID }

func (f *fakeRewardRepo) GetOrCreate(_ context.Context, _ *gorm.DB, studentID, groupID string) (*models.StudentReward, error) {
	key := rewardKey(studentID, groupID)
	if reward, ok := f.r.rewards[key]; ok {
		clone := *reward
		return &clone, nil
	}
	f.r.nextReward++
	reward := &models.StudentReward{
		ID:         f.r.nextReward,
		StudentID:  studentID,
		GroupID:    groupID,
		StreakDays: 1,
	}
	f.r.rewards[key] = reward
	clone := *reward
	return &clone, nil
}

func (f *fakeRewardRepo) Get(_ context.Context, _ *gorm.DB, studentID, groupID string) (*models.StudentReward, error) {
	if reward, ok := f.r.rewards[rewardKey(studentID, groupID)]; ok {
		clone := *reward
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRewardRepo) AddRewards(_ context.Context, _ *gorm.DB, id uint, xp, coins int) error {
	for _, reward := range f.r.rewards {
		if reward.ID == id {
			reward.TotalXP += int64(xp)
			reward.TotalCoins += int64(coins)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRewardRepo) UpdateStreak(_ context.Context, _ *gorm.DB, id uint, streakDays int, lastActivity time.Time) error {
	for _, reward := range f.r.rewards {
		if reward.ID == id {
			reward.StreakDays = streakDays
			reward.LastActivityDate = &lastActivity
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeRewardRepo) ListByGroup(_ context.Context, _ *gorm.DB, groupID string, limit int) ([]*models.StudentReward, error) {
	var out []*models.StudentReward
	for _, reward := range f.r.rewards {
		if reward.GroupID == groupID {
			clone := *reward
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalXP > out[j].TotalXP })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeStatsRepo struct{ r *fakeRepository }

func (f *fakeStatsRepo) Get(_ context.Context, _ *gorm.DB) (*models.PlatformStats, error) {
	clone := f.r.stats
	return &clone, nil
}

func (f *fakeStatsRepo) Update(_ context.Context, _ *gorm.DB, _ map[string]interface{}) (*models.PlatformStats, error) {
	clone := f.r.stats
	return &clone, nil
}

func (f *fakeStatsRepo) IncrementQuestsCompleted(_ context.Context, _ *gorm.DB) error {
	f.r.stats.QuestsCompleted++
	return nil
}

type fakeUserRepo struct{ r *fakeRepository }

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := f.r.users[id]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("user %s not found", id)
}

func (f *fakeUserRepo) GetByIDs(_ context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if user, ok := f.r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) ExistsByID(_ context.Context, id string) (bool, error) {
	_, ok := f.r.users[id]
	return ok, nil
}

func (f *fakeUserRepo) HasRole(_ context.Context, id string, role models.UserRole) (bool, error) {
	user, ok := f.r.users[id]
	return ok && user.Role == role, nil
}

// ===== TEST FIXTURES =====

func newTestAttemptService(repo *fakeRepository) (*DefaultAttemptService, *events.MockEventPublisher) {
	logger := testLogger()
	publisher := events.NewMockEventPublisher(logger)
	grading := NewGradingService(logger)
	rewards := NewRewardService(repo, logger)
	return NewAttemptService(repo, nil, logger, validator.New(), grading, rewards, publisher), publisher
}

func seedQuizSubject(repo *fakeRepository, id uint, passGrade *int) *models.Subject {
	questions := []models.Question{
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "false"},
	}
	raw, _ := json.Marshal(questions)
	subject := &models.Subject{
		ID:        id,
		Title:     "Cells and Energy",
		Kind:      models.SubjectQuiz,
		GroupID:   "class-1",
		Status:    models.SubjectActive,
		Questions: raw,
		RewardXP:  100,
		PassGrade: passGrade,
	}
	repo.subjects[id] = subject
	return subject
}

func seedChallengeSubject(repo *fakeRepository, id uint) *models.Subject {
	questions := []models.Question{
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
	}
	raw, _ := json.Marshal(questions)
	subject := &models.Subject{
		ID:          id,
		Title:       "Science Sprint",
		Kind:        models.SubjectChallenge,
		GroupID:     "class-1",
		Status:      models.SubjectActive,
		Questions:   raw,
		RewardXP:    100,
		RewardCoins: 50,
	}
	repo.subjects[id] = subject
	return subject
}

func answerTrueFalse(t *testing.T, svc *DefaultAttemptService, attemptID uint, student string, index int, value bool) {
	t.Helper()
	raw, _ := json.Marshal(value)
	_, err := svc.RecordAnswer(context.Background(), attemptID, student, &RecordAnswerRequest{
		QuestionIndex: index,
		QuestionType:  models.QuestionTrueFalse,
		Selected:      raw,
	})
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
}

// ===== TESTS =====

func TestStart_Idempotent(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	first, err := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if first.Resumed {
		t.Error("first start reported resumed")
	}

	second, err := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if !second.Resumed {
		t.Error("second start did not report resumed")
	}
	if second.AttemptID != first.AttemptID {
		t.Errorf("second start forked attempt %d, want %d", second.AttemptID, first.AttemptID)
	}
	if len(repo.attempts) != 1 {
		t.Errorf("attempt rows = %d, want 1", len(repo.attempts))
	}
}

func TestStart_InactiveSubject(t *testing.T) {
	repo := newFakeRepository()
	subject := seedQuizSubject(repo, 1, nil)
	subject.Status = models.SubjectDraft
	svc, _ := newTestAttemptService(repo)

	_, err := svc.Start(context.Background(), "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	if err != ErrSubjectNotActive {
		t.Errorf("Start() error = %v, want ErrSubjectNotActive", err)
	}
}

func TestRecordAnswer_UpsertAndFeedback(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	started, err := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	wrong, _ := json.Marshal(false)
	resp, err := svc.RecordAnswer(ctx, started.AttemptID, "student-1", &RecordAnswerRequest{
		QuestionIndex: 0,
		QuestionType:  models.QuestionTrueFalse,
		Selected:      wrong,
	})
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if resp.IsCorrect {
		t.Error("wrong answer reported correct")
	}

	// Replacing the answer at the same index must not duplicate it.
	right, _ := json.Marshal(true)
	resp, err = svc.RecordAnswer(ctx, started.AttemptID, "student-1", &RecordAnswerRequest{
		QuestionIndex: 0,
		QuestionType:  models.QuestionTrueFalse,
		Selected:      right,
	})
	if err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}
	if !resp.IsCorrect {
		t.Error("corrected answer reported incorrect")
	}

	stored := repo.attempts[started.AttemptID]
	answers, err := stored.AnswerSet()
	if err != nil {
		t.Fatalf("AnswerSet() error = %v", err)
	}
	if len(answers) != 1 {
		t.Errorf("stored answers = %d, want 1", len(answers))
	}
}

func TestRecordAnswer_OutOfRangeIndex(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	started, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})

	raw, _ := json.Marshal(true)
	_, err := svc.RecordAnswer(ctx, started.AttemptID, "student-1", &RecordAnswerRequest{
		QuestionIndex: 7,
		QuestionType:  models.QuestionTrueFalse,
		Selected:      raw,
	})
	if err == nil {
		t.Fatal("expected validation error for out of range index")
	}
	var validationErrs ValidationErrors
	if !errors.As(err, &validationErrs) {
		t.Errorf("error type = %T, want ValidationErrors", err)
	}
}

func TestSubmit_QuizRewardsAndIdempotency(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, publisher := newTestAttemptService(repo)
	ctx := context.Background()

	started, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 0, true)
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 1, false)

	resp, err := svc.Submit(ctx, started.AttemptID, "student-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.ScorePercent != 100 {
		t.Errorf("ScorePercent = %d, want 100", resp.ScorePercent)
	}
	// 100 XP at the 1.0 tier, coins are floor(100/2).
	if resp.XPEarned != 100 || resp.CoinsEarned != 50 {
		t.Errorf("payout = %d/%d, want 100/50", resp.XPEarned, resp.CoinsEarned)
	}
	if !resp.Passed {
		t.Error("Passed = false without a pass grade")
	}
	if len(resp.Review) != 2 {
		t.Errorf("review entries = %d, want 2", len(resp.Review))
	}

	reward := repo.rewards[rewardKey("student-1", "class-1")]
	if reward == nil || reward.TotalXP != 100 || reward.TotalCoins != 50 {
		t.Fatalf("reward accumulators = %+v, want 100/50", reward)
	}
	if repo.stats.QuestsCompleted != 1 {
		t.Errorf("QuestsCompleted = %d, want 1", repo.stats.QuestsCompleted)
	}

	// A retried submit returns the stored result and pays nothing extra.
	again, err := svc.Submit(ctx, started.AttemptID, "student-1")
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if again.XPEarned != resp.XPEarned || again.ScorePercent != resp.ScorePercent {
		t.Errorf("retried submit = %+v, want %+v", again, resp)
	}
	reward = repo.rewards[rewardKey("student-1", "class-1")]
	if reward.TotalXP != 100 {
		t.Errorf("TotalXP after retry = %d, want 100", reward.TotalXP)
	}
	if repo.stats.QuestsCompleted != 1 {
		t.Errorf("QuestsCompleted after retry = %d, want 1", repo.stats.QuestsCompleted)
	}

	assertEventPublished(t, publisher, events.EventAttemptSubmitted)
	assertEventPublished(t, publisher, events.EventRewardGranted)
}

func TestSubmit_QuizFailsPassGrade(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, intPtr(70))
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	started, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 0, true)
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 1, true) // wrong

	resp, err := svc.Submit(ctx, started.AttemptID, "student-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.ScorePercent != 50 {
		t.Errorf("ScorePercent = %d, want 50", resp.ScorePercent)
	}
	if resp.Passed {
		t.Error("Passed = true below the pass grade")
	}
	if resp.XPEarned != 0 || resp.CoinsEarned != 0 {
		t.Errorf("payout = %d/%d, want 0/0", resp.XPEarned, resp.CoinsEarned)
	}
}

func TestSubmit_ChallengeWinnerResolution(t *testing.T) {
	repo := newFakeRepository()
	seedChallengeSubject(repo, 1)
	svc, publisher := newTestAttemptService(repo)
	ctx := context.Background()

	// First student scores 75 percent and becomes the provisional winner.
	first, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	answerTrueFalse(t, svc, first.AttemptID, "student-1", 0, true)
	answerTrueFalse(t, svc, first.AttemptID, "student-1", 1, true)
	answerTrueFalse(t, svc, first.AttemptID, "student-1", 2, true)
	answerTrueFalse(t, svc, first.AttemptID, "student-1", 3, false)

	firstResp, err := svc.Submit(ctx, first.AttemptID, "student-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !firstResp.IsWinner {
		t.Error("first submitter not flagged winner")
	}
	// 0.8 tier plus the winner bonus.
	if firstResp.XPEarned != 130 || firstResp.CoinsEarned != 60 {
		t.Errorf("payout = %d/%d, want 130/60", firstResp.XPEarned, firstResp.CoinsEarned)
	}
	if !repo.attempts[first.AttemptID].WinnerBonusAwarded {
		t.Error("winner bonus not recorded as paid")
	}

	// Second student scores 100 percent and dethrones the first.
	second, _ := svc.Start(ctx, "student-2", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	answerTrueFalse(t, svc, second.AttemptID, "student-2", 0, true)
	answerTrueFalse(t, svc, second.AttemptID, "student-2", 1, true)
	answerTrueFalse(t, svc, second.AttemptID, "student-2", 2, true)
	answerTrueFalse(t, svc, second.AttemptID, "student-2", 3, true)

	secondResp, err := svc.Submit(ctx, second.AttemptID, "student-2")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !secondResp.IsWinner {
		t.Error("higher score not flagged winner")
	}
	if secondResp.XPEarned != 150 || secondResp.CoinsEarned != 70 {
		t.Errorf("payout = %d/%d, want 150/70", secondResp.XPEarned, secondResp.CoinsEarned)
	}

	dethroned := repo.attempts[first.AttemptID]
	if dethroned.IsWinner {
		t.Error("dethroned attempt still flagged winner")
	}
	// The bonus already paid is never revoked.
	if !dethroned.WinnerBonusAwarded {
		t.Error("dethroned attempt lost its paid bonus record")
	}
	firstReward := repo.rewards[rewardKey("student-1", "class-1")]
	if firstReward.TotalXP != 130 {
		t.Errorf("dethroned student XP = %d, want 130 kept", firstReward.TotalXP)
	}

	assertEventPublished(t, publisher, events.EventWinnerResolved)
}

func TestSubmit_ChallengeTieKeepsEarliestWinner(t *testing.T) {
	repo := newFakeRepository()
	seedChallengeSubject(repo, 1)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	submitPerfect := func(student string) *SubmitResponse {
		started, _ := svc.Start(ctx, student, &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
		for i := 0; i < 4; i++ {
			answerTrueFalse(t, svc, started.AttemptID, student, i, true)
		}
		resp, err := svc.Submit(ctx, started.AttemptID, student)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		return resp
	}

	firstResp := submitPerfect("student-1")
	time.Sleep(5 * time.Millisecond)
	secondResp := submitPerfect("student-2")

	if !firstResp.IsWinner {
		t.Error("earliest perfect score not winner")
	}
	if secondResp.IsWinner {
		t.Error("later equal score took the win")
	}
}

func TestSubmit_ResumeRewardApplication(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	// An attempt that was graded durably but crashed before the reward step.
	now := time.Now().UTC()
	answers := []models.Answer{{QuestionIndex: 0, QuestionType: models.QuestionTrueFalse, Selected: json.RawMessage(`true`)}}
	rawAnswers, _ := json.Marshal(answers)
	repo.nextAttempt++
	repo.attempts[repo.nextAttempt] = &models.Attempt{
		ID:            repo.nextAttempt,
		SubjectID:     1,
		StudentID:     "student-1",
		GroupID:       "class-1",
		Kind:          models.SubjectQuiz,
		Status:        models.AttemptSubmitted,
		Answers:       rawAnswers,
		Score:         1,
		TotalPossible: 2,
		Percent:       50,
		SubmittedAt:   &now,
	}

	resp, err := svc.Submit(ctx, repo.nextAttempt, "student-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	// The stored grade survives untouched; only the payout runs.
	if resp.ScorePercent != 50 {
		t.Errorf("ScorePercent = %d, want stored 50", resp.ScorePercent)
	}
	if resp.XPEarned != 40 || resp.CoinsEarned != 20 {
		t.Errorf("payout = %d/%d, want 40/20", resp.XPEarned, resp.CoinsEarned)
	}

	reward := repo.rewards[rewardKey("student-1", "class-1")]
	if reward == nil || reward.TotalXP != 40 {
		t.Fatalf("reward accumulators = %+v, want TotalXP 40", reward)
	}
	if !repo.attempts[repo.nextAttempt].RewardsGranted {
		t.Error("rewards not marked granted")
	}
	// The resumed path is not a fresh submission and must not bump the counter.
	if repo.stats.QuestsCompleted != 0 {
		t.Errorf("QuestsCompleted = %d, want 0", repo.stats.QuestsCompleted)
	}
}

func TestSubmit_ConcurrentSubmitCreditsOnce(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	started, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 0, true)
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 1, false)

	// A rival submit runs to completion after this submit has read the
	// attempt but before it enters its transaction, so the slow writer acts
	// on a stale unrewarded snapshot.
	repo.beforeTx = func() {
		if _, err := svc.Submit(ctx, started.AttemptID, "student-1"); err != nil {
			t.Fatalf("interleaved Submit() error = %v", err)
		}
	}

	resp, err := svc.Submit(ctx, started.AttemptID, "student-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.ScorePercent != 100 || resp.XPEarned != 100 {
		t.Errorf("late submit response = %d%%/%d XP, want stored 100/100", resp.ScorePercent, resp.XPEarned)
	}

	reward := repo.rewards[rewardKey("student-1", "class-1")]
	if reward == nil || reward.TotalXP != 100 || reward.TotalCoins != 50 {
		t.Fatalf("reward accumulators after racing submits = %+v, want 100/50 credited once", reward)
	}
	if repo.stats.QuestsCompleted != 1 {
		t.Errorf("QuestsCompleted = %d, want 1", repo.stats.QuestsCompleted)
	}
	stored := repo.attempts[started.AttemptID]
	if !stored.RewardsGranted {
		t.Error("rewards_granted lost after racing submits")
	}
}

func TestRecordAnswer_ConcurrentSubmitKeepsResult(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	started, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 0, true)

	// The attempt is submitted between RecordAnswer's read and its write.
	repo.beforeGuardedWrite = func() {
		if _, err := svc.Submit(ctx, started.AttemptID, "student-1"); err != nil {
			t.Fatalf("interleaved Submit() error = %v", err)
		}
	}

	raw, _ := json.Marshal(false)
	if _, err := svc.RecordAnswer(ctx, started.AttemptID, "student-1", &RecordAnswerRequest{
		QuestionIndex: 1,
		QuestionType:  models.QuestionTrueFalse,
		Selected:      raw,
	}); err != nil {
		t.Fatalf("RecordAnswer() error = %v", err)
	}

	stored := repo.attempts[started.AttemptID]
	if stored.Status != models.AttemptSubmitted {
		t.Errorf("status = %s, late answer reopened a submitted attempt", stored.Status)
	}
	if stored.Percent != 50 {
		t.Errorf("Percent = %d, want graded 50 kept", stored.Percent)
	}
	answers, err := stored.AnswerSet()
	if err != nil {
		t.Fatalf("AnswerSet() error = %v", err)
	}
	if len(answers) != 1 {
		t.Errorf("stored answers = %d, want 1 with the late answer discarded", len(answers))
	}
}

func TestSubmit_NotOwner(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	started, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})

	_, err := svc.Submit(ctx, started.AttemptID, "student-2")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Errorf("error = %v, want PermissionError", err)
	}
}

func TestDelete_SubmittedAttemptRefused(t *testing.T) {
	repo := newFakeRepository()
	seedQuizSubject(repo, 1, nil)
	svc, _ := newTestAttemptService(repo)
	ctx := context.Background()

	started, _ := svc.Start(ctx, "student-1", &StartAttemptRequest{SubjectID: 1, GroupID: "class-1"})
	answerTrueFalse(t, svc, started.AttemptID, "student-1", 0, true)
	if _, err := svc.Submit(ctx, started.AttemptID, "student-1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := svc.Delete(ctx, started.AttemptID, "student-1"); err != ErrAttemptSubmitted {
		t.Errorf("Delete() error = %v, want ErrAttemptSubmitted", err)
	}
}

// ===== HELPERS =====

func assertEventPublished(t *testing.T, publisher *events.MockEventPublisher, eventType string) {
	t.Helper()
	for _, event := range publisher.GetPublishedEvents() {
		if event.Type == eventType {
			return
		}
	}
	t.Errorf("event %s was not published", eventType)
}

