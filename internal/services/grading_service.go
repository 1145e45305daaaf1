package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/eduquest-hq/progression-service/internal/models"
)

// shortAnswerStopwords are filler words stripped from a question's explanation
// before keyword matching.
var shortAnswerStopwords = map[string]struct{}{
	"the": {}, "is": {}, "a": {}, "an": {}, "our": {},
	"in": {}, "of": {}, "to": {}, "and": {}, "for": {},
}

// DefaultGradingService scores attempts against their question sets. It holds
// no persistent state; grading the same inputs always yields the same result.
type DefaultGradingService struct {
	logger *slog.Logger
}

func NewGradingService(logger *slog.Logger) *DefaultGradingService {
	return &DefaultGradingService{logger: logger}
}

// Grade scores every question in order. Questions without a matching answer
// score zero. The percent is rounded to the nearest integer, with an empty
// question set scoring zero rather than dividing by zero.
func (s *DefaultGradingService) Grade(questions []models.Question, answers []models.Answer) (*GradeResult, error) {
	byIndex := make(map[int]*models.Answer, len(answers))
	for i := range answers {
		byIndex[answers[i].QuestionIndex] = &answers[i]
	}

	result := &GradeResult{
		Review: make([]models.ReviewEntry, 0, len(questions)),
	}

	for i, question := range questions {
		weight := question.Weight()
		result.TotalPossible += weight

		answer := byIndex[i]
		correct, err := s.GradeQuestion(question, answer)
		if err != nil {
			return nil, fmt.Errorf("failed to grade question %d: %w", i, err)
		}

		awarded := 0
		if correct {
			awarded = weight
			result.Score += awarded
		}

		entry := models.ReviewEntry{
			QuestionIndex: i,
			QuestionType:  question.Type,
			Correct:       correctAnswerJSON(question),
			Explanation:   question.Explanation,
			IsCorrect:     correct,
			PointsAwarded: awarded,
			PointsMax:     weight,
		}
		if answer != nil {
			entry.Selected = selectedJSON(answer)
		}
		result.Review = append(result.Review, entry)
	}

	if result.TotalPossible > 0 {
		result.Percent = int(math.Round(float64(result.Score) / float64(result.TotalPossible) * 100))
	}

	return result, nil
}

// GradeQuestion grades a single answer. A nil or empty answer is incorrect,
// never an error.
func (s *DefaultGradingService) GradeQuestion(question models.Question, answer *models.Answer) (bool, error) {
	if answer == nil {
		return false, nil
	}

	switch question.Type {
	case models.QuestionMultipleChoice:
		return s.gradeMultipleChoice(question, answer), nil
	case models.QuestionTrueFalse:
		return s.gradeTrueFalse(question, answer), nil
	case models.QuestionShortAnswer:
		return s.gradeShortAnswer(question, answer), nil
	case models.QuestionMatchPairs:
		return s.gradeMatchPairs(question, answer), nil
	default:
		return false, fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswerShape, question.Type)
	}
}

// gradeMultipleChoice compares the selected text with the option flagged
// correct. Exact string match, no trimming.
func (s *DefaultGradingService) gradeMultipleChoice(question models.Question, answer *models.Answer) bool {
	selected, ok := decodeString(answer.Selected)
	if !ok || selected == "" {
		return false
	}
	correct := question.CorrectOptionText()
	if correct == "" {
		return false
	}
	return selected == correct
}

// gradeTrueFalse normalizes both sides to a boolean. The selected value may
// arrive as a JSON boolean or as the strings "true"/"false" in any case.
func (s *DefaultGradingService) gradeTrueFalse(question models.Question, answer *models.Answer) bool {
	selected, ok := decodeBool(answer.Selected)
	if !ok {
		return false
	}
	expected, ok := parseBool(question.CorrectOptionText())
	if !ok {
		return false
	}
	return selected == expected
}

// gradeShortAnswer is deliberately lenient. The explanation is reduced to
// keywords and the student's answer is correct when it contains any one of
// them.
func (s *DefaultGradingService) gradeShortAnswer(question models.Question, answer *models.Answer) bool {
	text := strings.ToLower(strings.TrimSpace(answer.TextAnswer))
	if text == "" {
		return false
	}

	for _, keyword := range explanationKeywords(question.Explanation) {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// gradeMatchPairs is all or nothing: every answer-key pair must be present in
// the student's pairs.
func (s *DefaultGradingService) gradeMatchPairs(question models.Question, answer *models.Answer) bool {
	if len(question.CorrectPairs) == 0 {
		return false
	}

	matched := make(map[string]string, len(answer.Pairs))
	for _, pair := range answer.Pairs {
		matched[pair.Left] = pair.Right
	}

	for _, pair := range question.CorrectPairs {
		if matched[pair.Left] != pair.Right {
			return false
		}
	}
	return true
}

// explanationKeywords splits the explanation on non-word characters and drops
// stopwords and empty tokens.
func explanationKeywords(explanation string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(explanation), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	keywords := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, skip := shortAnswerStopwords[token]; skip {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}

// decodeString reads a JSON string out of the raw selected value.
func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeBool reads a boolean out of the raw selected value, accepting either
// a JSON boolean or a "true"/"false" string.
func decodeBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseBool(s)
	}
	return false, false
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// correctAnswerJSON renders the question's answer key for review payloads.
func correctAnswerJSON(question models.Question) json.RawMessage {
	var value interface{}
	switch question.Type {
	case models.QuestionMatchPairs:
		value = question.CorrectPairs
	case models.QuestionShortAnswer:
		value = question.Explanation
	default:
		value = question.CorrectOptionText()
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return raw
}

// selectedJSON renders what the student handed in for review payloads.
func selectedJSON(answer *models.Answer) json.RawMessage {
	if len(answer.Selected) > 0 {
		return answer.Selected
	}
	if answer.TextAnswer != "" {
		raw, _ := json.Marshal(answer.TextAnswer)
		return raw
	}
	if len(answer.Pairs) > 0 {
		raw, _ := json.Marshal(answer.Pairs)
		return raw
	}
	return nil
}
