package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound      = errors.New("user progress not found")
	ErrBookNotFound      = errors.New("book not found")
	ErrBadgeNotFound     = errors.New("badge definition not found")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrInvalidPeriod     = errors.New("invalid ranking period")
	ErrVersionConflict   = errors.New("user progress version conflict")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInternalError     = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrBookNotFound) || errors.Is(err, ErrBadgeNotFound)
}
