package services

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the attempt and grading services. Handlers
// map these onto HTTP status codes.
var (
	// Not found
	ErrAssessmentNotFound = errors.New("assessment not found or not published")
	ErrAttemptNotFound    = errors.New("attempt not found")

	// Policy violations
	ErrAttemptAlreadyActive    = errors.New("an attempt is already in progress for this assessment")
	ErrAttemptLimitExceeded    = errors.New("maximum number of attempts reached")
	ErrAttemptNotInProgress    = errors.New("attempt is not in progress")
	ErrAttemptAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptNotSubmitted     = errors.New("attempt must be submitted before manual grading")
	ErrAttemptTimeExpired      = errors.New("attempt time limit has expired")
	ErrInsufficientQuestions   = errors.New("question pool is smaller than the configured question count")
	ErrQuestionNotInAttempt    = errors.New("question is not part of this attempt")
	ErrInvalidQuestionIndex    = errors.New("question index is out of range")
	ErrScoreOutOfRange         = errors.New("points earned must be between zero and the question's possible points")
	ErrGradingNotAllowed       = errors.New("question type requires manual grading")
)

// PermissionError carries who tried what on which resource.
type PermissionError struct {
	UserID   string
	Resource string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s: %s", e.UserID, e.Action, e.Resource, e.Reason)
}

func NewPermissionError(userID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

// ValidationError describes one failed request field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", ve[0].Field, ve[0].Message)
}

func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Value: value}}
}

// IsPolicyViolation reports whether err is a lifecycle or policy rule
// rejection rather than a lookup or permission failure.
func IsPolicyViolation(err error) bool {
	for _, sentinel := range []error{
		ErrAttemptAlreadyActive,
		ErrAttemptLimitExceeded,
		ErrAttemptNotInProgress,
		ErrAttemptAlreadySubmitted,
		ErrAttemptNotSubmitted,
		ErrAttemptTimeExpired,
		ErrInsufficientQuestions,
		ErrGradingNotAllowed,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
