package repositories

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateActiveAttempt is returned when inserting an in-progress
	// attempt collides with the partial unique index guarding the
	// one-active-attempt rule.
	ErrDuplicateActiveAttempt = errors.New("learner already has an active attempt for this assessment")
)

// IsNotFoundError reports whether err means the row was absent, from either
// this package or the underlying gorm error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateActiveAttempt reports whether err is the active-attempt
// uniqueness violation.
func IsDuplicateActiveAttempt(err error) bool {
	return errors.Is(err, ErrDuplicateActiveAttempt)
}
