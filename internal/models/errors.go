package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated means no session exists for the user
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionExpired means a session exists but the platform rejected it
	ErrSessionExpired = errors.New("session expired")
	// ErrAccessDenied means the external identity is not associated with the session
	ErrAccessDenied = errors.New("access denied")
	// ErrContentNotFound means expected page structures never rendered
	ErrContentNotFound = errors.New("content not found")
	// ErrReviewNotFound means the composite match failed after an exhaustive search
	ErrReviewNotFound = errors.New("review not found")
	// ErrAlreadyReplied means the target review already carries a reply
	ErrAlreadyReplied = errors.New("review already has a reply")
	// ErrVerificationFailed means the reply did not appear after submit
	ErrVerificationFailed = errors.New("reply verification failed")
	// ErrTaskNotFound means no task exists with the given id
	ErrTaskNotFound = errors.New("task not found")
)

// ReviewNotFoundError carries the normalized match key for debugging
type ReviewNotFoundError struct {
	AuthorPrefix string
	Date         string
	Scanned      int
}

func (e *ReviewNotFoundError) Error() string {
	return fmt.Sprintf("could not find review: author='%s...', date='%s' (scanned %d items)", e.AuthorPrefix, e.Date, e.Scanned)
}

// Is lets errors.Is match ErrReviewNotFound
func (e *ReviewNotFoundError) Is(target error) bool {
	return target == ErrReviewNotFound
}
