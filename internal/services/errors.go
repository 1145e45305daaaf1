package services

import (
	"errors"
	"fmt"

	"github.com/eduquest-hq/progression-service/internal/validator"
)

// Sentinel errors surfaced by the progression services. Handlers map these to
// HTTP statuses.
var (
	ErrSubjectNotFound = errors.New("subject not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrRewardNotFound  = errors.New("student reward not found")

	ErrAttemptSubmitted   = errors.New("attempt already submitted")
	ErrSubjectNotActive   = errors.New("subject is not active")
	ErrRewardsClaimed     = errors.New("rewards already granted by a concurrent submission")
	ErrInvalidAnswerShape = errors.New("answer payload does not match question type")
)

// ValidationErrors re-exports the validator's typed errors so callers only
// import the services package.
type ValidationErrors = validator.ValidationErrors
type ValidationError = validator.ValidationError

// NewValidationError builds a single-field validation failure.
func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Value: value}}
}

// PermissionError reports that the caller may not act on a resource.
type PermissionError struct {
	UserID       string
	ResourceID   uint
	ResourceType string
	Action       string
	Reason       string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resourceType, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:       userID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Action:       action,
		Reason:       reason,
	}
}

// BusinessRuleError reports a domain rule rejection that is neither a
// validation nor a permission failure.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message}
}
