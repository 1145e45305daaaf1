package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eduquest-hq/progression-service/internal/models"
)

// ===== REQUEST/RESPONSE DTOs =====

type StartAttemptRequest struct {
	SubjectID uint   `json:"subject_id" validate:"required"`
	GroupID   string `json:"group_id" validate:"required"`
}

type StartAttemptResponse struct {
	AttemptID       uint                 `json:"attempt_id"`
	Status          models.AttemptStatus `json:"status"`
	CurrentPosition int                  `json:"current_position"`
	Resumed         bool                 `json:"resumed"`
}

type RecordAnswerRequest struct {
	QuestionIndex int                 `json:"question_index" validate:"min=0"`
	QuestionType  models.QuestionType `json:"question_type" validate:"required,question_type"`
	Selected      json.RawMessage     `json:"selected,omitempty"`
	TextAnswer    string              `json:"text_answer,omitempty"`
	Pairs         []models.MatchPair  `json:"pairs,omitempty"`
}

type RecordAnswerResponse struct {
	OK        bool `json:"ok"`
	IsCorrect bool `json:"is_correct"`
}

type SaveProgressRequest struct {
	Position int `json:"position" validate:"min=0"`
}

// SubmitResponse is the graded outcome returned by submit. Submitting twice
// returns the identical stored response.
type SubmitResponse struct {
	OK            bool                 `json:"ok"`
	AttemptID     uint                 `json:"attempt_id"`
	ScorePercent  int                  `json:"score_percent"`
	Score         int                  `json:"score"`
	TotalPossible int                  `json:"total_possible"`
	XPEarned      int                  `json:"xp_earned"`
	CoinsEarned   int                  `json:"coins_earned"`
	Passed        bool                 `json:"passed"`
	IsWinner      bool                 `json:"is_winner,omitempty"`
	Review        []models.ReviewEntry `json:"review,omitempty"`
}

// AttemptDetail is the full read model for one attempt.
type AttemptDetail struct {
	AttemptID       uint                 `json:"attempt_id"`
	SubjectID       uint                 `json:"subject_id"`
	SubjectTitle    string               `json:"subject_title"`
	Kind            models.SubjectKind   `json:"kind"`
	Status          models.AttemptStatus `json:"status"`
	CurrentPosition int                  `json:"current_position"`
	Answers         []models.Answer      `json:"answers,omitempty"`
	Score           int                  `json:"score"`
	TotalPossible   int                  `json:"total_possible"`
	Percent         int                  `json:"percent"`
	Passed          bool                 `json:"passed"`
	XPEarned        int                  `json:"xp_earned"`
	CoinsEarned     int                  `json:"coins_earned"`
	IsWinner        bool                 `json:"is_winner"`
	Review          []models.ReviewEntry `json:"review,omitempty"`
	StartedAt       *time.Time           `json:"started_at"`
	SubmittedAt     *time.Time           `json:"submitted_at"`
}

type AttemptListRequest struct {
	Kind   *models.SubjectKind   `json:"kind"`
	Status *models.AttemptStatus `json:"status"`
	Limit  int                   `json:"limit" validate:"min=0,max=100"`
	Offset int                   `json:"offset" validate:"min=0"`
}

type AttemptListResponse struct {
	Attempts []AttemptDetail `json:"attempts"`
	Total    int64           `json:"total"`
}

type StreakResponse struct {
	StreakDays       int        `json:"streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

type RewardSummaryResponse struct {
	StudentID  string `json:"student_id"`
	GroupID    string `json:"group_id"`
	TotalXP    int64  `json:"total_xp"`
	TotalCoins int64  `json:"total_coins"`
	StreakDays int    `json:"streak"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name,omitempty"`
	TotalXP     int64  `json:"total_xp"`
	TotalCoins  int64  `json:"total_coins"`
	StreakDays  int    `json:"streak"`
}

type UpdateStatsRequest struct {
	ActiveClassrooms  *int     `json:"active_classrooms" validate:"omitempty,min=0"`
	StudentEngagement *float64 `json:"student_engagement" validate:"omitempty,min=0,max=100"`
	TeacherRating     *float64 `json:"teacher_rating" validate:"omitempty,min=0,max=5"`
}

// ===== SCORING AND REWARD VALUE TYPES =====

// GradeResult is the Scoring Engine's output for one attempt.
type GradeResult struct {
	Score         int
	TotalPossible int
	Percent       int
	Review        []models.ReviewEntry
}

// RewardOutcome is the Reward Calculator's output.
type RewardOutcome struct {
	XP         int
	Coins      int
	Passed     bool
	Multiplier float64
}

// StreakDecision is the Streak Tracker's output; the caller persists it.
type StreakDecision struct {
	StreakDays       int
	LastActivityDate time.Time
	Changed          bool
}

// ===== SERVICE INTERFACES =====

// GradingService is the Scoring Engine. Pure over its inputs; persistence
// stays with the attempt service.
type GradingService interface {
	// Grade scores answers against the subject's question set.
	Grade(questions []models.Question, answers []models.Answer) (*GradeResult, error)

	// GradeQuestion grades one answer, for immediate per-answer feedback.
	GradeQuestion(question models.Question, answer *models.Answer) (bool, error)
}

// RewardService covers the Reward Calculator and Streak Tracker plus the
// read endpoints over the accumulators.
type RewardService interface {
	// ComputeReward maps a percent to an XP and coin payout. passGrade gates
	// quizzes: below it the payout is zero. isWinner adds the challenge bonus.
	ComputeReward(baseXP, baseCoins, percent int, passGrade *int, isWinner bool) RewardOutcome

	// NextStreak decides whether a streak increments, resets or holds.
	NextStreak(kind models.SubjectKind, currentStreak int, lastActivity *time.Time, today time.Time) StreakDecision

	GetStreak(ctx context.Context, studentID, groupID string) (*StreakResponse, error)
	GetSummary(ctx context.Context, studentID, groupID string) (*RewardSummaryResponse, error)
	GetLeaderboard(ctx context.Context, groupID string, limit int) ([]LeaderboardEntry, error)
}

// AttemptService is the Attempt Lifecycle Manager.
type AttemptService interface {
	// Start returns the existing attempt for (subject, student) when one
	// exists, otherwise creates a fresh in-progress attempt.
	Start(ctx context.Context, studentID string, req *StartAttemptRequest) (*StartAttemptResponse, error)

	// RecordAnswer upserts the answer for one question index.
	RecordAnswer(ctx context.Context, attemptID uint, studentID string, req *RecordAnswerRequest) (*RecordAnswerResponse, error)

	// SaveProgress updates only the current position.
	SaveProgress(ctx context.Context, attemptID uint, studentID string, req *SaveProgressRequest) error

	// Submit grades the attempt, applies rewards exactly once and resolves
	// the winner for challenges. Idempotent: a submitted attempt returns its
	// stored result.
	Submit(ctx context.Context, attemptID uint, studentID string) (*SubmitResponse, error)

	Get(ctx context.Context, attemptID uint, studentID string) (*AttemptDetail, error)
	GetInProgress(ctx context.Context, subjectID uint, studentID string) (*AttemptDetail, error)
	GetLatestSubmitted(ctx context.Context, studentID string, kind models.SubjectKind) (*AttemptDetail, error)
	List(ctx context.Context, studentID string, req *AttemptListRequest) (*AttemptListResponse, error)

	// Delete removes an unsubmitted attempt so the student can restart.
	Delete(ctx context.Context, attemptID uint, studentID string) error
}

// StatsService manages the platform statistics singleton.
type StatsService interface {
	Get(ctx context.Context) (*models.PlatformStats, error)
	Update(ctx context.Context, req *UpdateStatsRequest) (*models.PlatformStats, error)
}

// ReportService produces educator-facing workbook exports.
type ReportService interface {
	// ExportGroupLeaderboard renders the group's reward leaderboard as an
	// xlsx workbook.
	ExportGroupLeaderboard(ctx context.Context, groupID string) ([]byte, error)
}

// ServiceManager wires and owns all services.
type ServiceManager interface {
	Attempt() AttemptService
	Grading() GradingService
	Reward() RewardService
	Stats() StatsService
	Report() ReportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
