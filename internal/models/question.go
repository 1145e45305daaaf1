package models

import (
	"encoding/json"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionShortAnswer    QuestionType = "short-answer"
	QuestionMatchPairs     QuestionType = "match-pairs"
)

func (qt QuestionType) IsValid() bool {
	switch qt {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionMatchPairs:
		return true
	}
	return false
}

// Option is a single selectable choice on a multiple-choice question.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// MatchPair is one left/right association on a match-pairs question.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Question is one entry of a subject's embedded question set. The answer key
// lives on the question itself and which key field applies depends on Type:
// Options for multiple-choice, CorrectAnswer for true-false, CorrectPairs for
// match-pairs, and Explanation (keyword source) for short-answer.
type Question struct {
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []Option     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	CorrectPairs  []MatchPair  `json:"correct_pairs,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	Points        int          `json:"points"`
}

// Weight returns the question's point weight, defaulting to 1 when unset.
func (q Question) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// CorrectOptionText returns the text of the option flagged correct, or the
// CorrectAnswer fallback when no option carries the flag.
func (q Question) CorrectOptionText() string {
	for _, opt := range q.Options {
		if opt.IsCorrect {
			return opt.Text
		}
	}
	return q.CorrectAnswer
}

// Answer is one per-question response inside an attempt's answers collection.
// Selected keeps the raw submitted value (string for multiple-choice, bool or
// "true"/"false" string for true-false) so each grading branch normalizes it
// per question type instead of trusting client-side typing.
type Answer struct {
	QuestionIndex int             `json:"question_index"`
	QuestionType  QuestionType    `json:"question_type"`
	Selected      json.RawMessage `json:"selected,omitempty"`
	TextAnswer    string          `json:"text_answer,omitempty"`
	Pairs         []MatchPair     `json:"pairs,omitempty"`
	IsCorrect     *bool           `json:"is_correct,omitempty"`
}

// ReviewEntry is the per-question breakdown returned with a graded submission.
type ReviewEntry struct {
	QuestionIndex int             `json:"question_index"`
	QuestionType  QuestionType    `json:"question_type"`
	Selected      json.RawMessage `json:"selected,omitempty"`
	Correct       json.RawMessage `json:"correct,omitempty"`
	Explanation   string          `json:"explanation,omitempty"`
	IsCorrect     bool            `json:"is_correct"`
	PointsAwarded int             `json:"points_awarded"`
	PointsMax     int             `json:"points_max"`
}
