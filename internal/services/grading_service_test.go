package services

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/eduquest-hq/progression-service/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func rawJSON(t *testing.T, value interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestGradeQuestion_MultipleChoice(t *testing.T) {
	svc := NewGradingService(testLogger())
	question := models.Question{
		Text: "Which planet is largest?",
		Type: models.QuestionMultipleChoice,
		Options: []models.Option{
			{Text: "Mars"},
			{Text: "Jupiter", IsCorrect: true},
			{Text: "Venus"},
		},
	}

	tests := []struct {
		name     string
		selected interface{}
		want     bool
	}{
		{name: "exact match", selected: "Jupiter", want: true},
		{name: "wrong option", selected: "Mars", want: false},
		{name: "case differs", selected: "jupiter", want: false},
		{name: "empty string", selected: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := &models.Answer{
				QuestionType: models.QuestionMultipleChoice,
				Selected:     rawJSON(t, tt.selected),
			}
			got, err := svc.GradeQuestion(question, answer)
			if err != nil {
				t.Fatalf("GradeQuestion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GradeQuestion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGradeQuestion_TrueFalse(t *testing.T) {
	svc := NewGradingService(testLogger())
	question := models.Question{
		Text:          "The sun is a star.",
		Type:          models.QuestionTrueFalse,
		CorrectAnswer: "true",
	}

	tests := []struct {
		name     string
		selected interface{}
		want     bool
	}{
		{name: "json bool", selected: true, want: true},
		{name: "json bool wrong", selected: false, want: false},
		{name: "lowercase string", selected: "true", want: true},
		{name: "uppercase string", selected: "TRUE", want: true},
		{name: "mixed case string", selected: "True", want: true},
		{name: "false string", selected: "false", want: false},
		{name: "garbage string", selected: "yes", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := &models.Answer{
				QuestionType: models.QuestionTrueFalse,
				Selected:     rawJSON(t, tt.selected),
			}
			got, err := svc.GradeQuestion(question, answer)
			if err != nil {
				t.Fatalf("GradeQuestion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GradeQuestion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGradeQuestion_ShortAnswer(t *testing.T) {
	svc := NewGradingService(testLogger())
	question := models.Question{
		Text:        "What does the mitochondria do?",
		Type:        models.QuestionShortAnswer,
		Explanation: "The mitochondria produces energy for the cell",
	}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "paraphrase with keyword", text: "it makes energy", want: true},
		{name: "keyword with different casing", text: "It produces ENERGY somehow", want: true},
		{name: "cell keyword alone", text: "something inside the cell", want: true},
		{name: "no keywords", text: "no idea", want: false},
		{name: "only stopwords", text: "the is a an", want: false},
		{name: "empty answer", text: "", want: false},
		{name: "whitespace only", text: "   ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := &models.Answer{
				QuestionType: models.QuestionShortAnswer,
				TextAnswer:   tt.text,
			}
			got, err := svc.GradeQuestion(question, answer)
			if err != nil {
				t.Fatalf("GradeQuestion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GradeQuestion(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestGradeQuestion_MatchPairs(t *testing.T) {
	svc := NewGradingService(testLogger())
	question := models.Question{
		Text: "Match the capitals.",
		Type: models.QuestionMatchPairs,
		CorrectPairs: []models.MatchPair{
			{Left: "France", Right: "Paris"},
			{Left: "Japan", Right: "Tokyo"},
			{Left: "Peru", Right: "Lima"},
		},
	}

	tests := []struct {
		name  string
		pairs []models.MatchPair
		want  bool
	}{
		{
			name: "all matched",
			pairs: []models.MatchPair{
				{Left: "France", Right: "Paris"},
				{Left: "Japan", Right: "Tokyo"},
				{Left: "Peru", Right: "Lima"},
			},
			want: true,
		},
		{
			name: "two of three matched scores nothing",
			pairs: []models.MatchPair{
				{Left: "France", Right: "Paris"},
				{Left: "Japan", Right: "Tokyo"},
				{Left: "Peru", Right: "Paris"},
			},
			want: false,
		},
		{
			name:  "no pairs",
			pairs: nil,
			want:  false,
		},
		{
			name: "extra pairs do not hurt",
			pairs: []models.MatchPair{
				{Left: "France", Right: "Paris"},
				{Left: "Japan", Right: "Tokyo"},
				{Left: "Peru", Right: "Lima"},
				{Left: "Chile", Right: "Santiago"},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := &models.Answer{
				QuestionType: models.QuestionMatchPairs,
				Pairs:        tt.pairs,
			}
			got, err := svc.GradeQuestion(question, answer)
			if err != nil {
				t.Fatalf("GradeQuestion() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GradeQuestion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGrade_EmptyQuestionSet(t *testing.T) {
	svc := NewGradingService(testLogger())

	result, err := svc.Grade(nil, nil)
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if result.Percent != 0 {
		t.Errorf("Percent = %d, want 0 for empty question set", result.Percent)
	}
	if result.Score != 0 || result.TotalPossible != 0 {
		t.Errorf("Score/TotalPossible = %d/%d, want 0/0", result.Score, result.TotalPossible)
	}
}

func TestGrade_UnansweredQuestionsScoreZero(t *testing.T) {
	svc := NewGradingService(testLogger())
	questions := []models.Question{
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "false"},
	}
	answers := []models.Answer{
		{QuestionIndex: 0, QuestionType: models.QuestionTrueFalse, Selected: json.RawMessage(`true`)},
	}

	result, err := svc.Grade(questions, answers)
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if result.Score != 1 || result.TotalPossible != 2 {
		t.Errorf("Score/TotalPossible = %d/%d, want 1/2", result.Score, result.TotalPossible)
	}
	if result.Percent != 50 {
		t.Errorf("Percent = %d, want 50", result.Percent)
	}
	if len(result.Review) != 2 {
		t.Fatalf("Review entries = %d, want 2", len(result.Review))
	}
	if result.Review[1].IsCorrect {
		t.Error("unanswered question marked correct")
	}
	if result.Review[1].PointsAwarded != 0 {
		t.Errorf("unanswered question awarded %d points", result.Review[1].PointsAwarded)
	}
}

func TestGrade_PercentRoundsToNearest(t *testing.T) {
	svc := NewGradingService(testLogger())
	questions := []models.Question{
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true"},
	}
	answers := []models.Answer{
		{QuestionIndex: 0, QuestionType: models.QuestionTrueFalse, Selected: json.RawMessage(`true`)},
		{QuestionIndex: 1, QuestionType: models.QuestionTrueFalse, Selected: json.RawMessage(`true`)},
	}

	result, err := svc.Grade(questions, answers)
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	// 2/3 is 66.67, rounds to 67.
	if result.Percent != 67 {
		t.Errorf("Percent = %d, want 67", result.Percent)
	}
}

func TestGrade_PointWeights(t *testing.T) {
	svc := NewGradingService(testLogger())
	questions := []models.Question{
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true", Points: 3},
		{Type: models.QuestionTrueFalse, CorrectAnswer: "true", Points: 1},
	}
	answers := []models.Answer{
		{QuestionIndex: 0, QuestionType: models.QuestionTrueFalse, Selected: json.RawMessage(`true`)},
	}

	result, err := svc.Grade(questions, answers)
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if result.Score != 3 || result.TotalPossible != 4 {
		t.Errorf("Score/TotalPossible = %d/%d, want 3/4", result.Score, result.TotalPossible)
	}
	if result.Percent != 75 {
		t.Errorf("Percent = %d, want 75", result.Percent)
	}
}

func TestGradeQuestion_NilAnswer(t *testing.T) {
	svc := NewGradingService(testLogger())
	question := models.Question{Type: models.QuestionTrueFalse, CorrectAnswer: "true"}

	got, err := svc.GradeQuestion(question, nil)
	if err != nil {
		t.Fatalf("GradeQuestion() error = %v", err)
	}
	if got {
		t.Error("nil answer graded correct")
	}
}

func TestGradeQuestion_UnknownType(t *testing.T) {
	svc := NewGradingService(testLogger())
	question := models.Question{Type: "essay"}
	answer := &models.Answer{TextAnswer: "anything"}

	if _, err := svc.GradeQuestion(question, answer); err == nil {
		t.Error("expected error for unknown question type")
	}
}

func BenchmarkGrade(b *testing.B) {
	svc := NewGradingService(testLogger())
	questions := make([]models.Question, 20)
	answers := make([]models.Answer, 20)
	for i := range questions {
		questions[i] = models.Question{Type: models.QuestionTrueFalse, CorrectAnswer: "true"}
		answers[i] = models.Answer{QuestionIndex: i, QuestionType: models.QuestionTrueFalse, Selected: json.RawMessage(`true`)}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Grade(questions, answers); err != nil {
			b.Fatal(err)
		}
	}
}
