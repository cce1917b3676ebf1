package engine

import "errors"

var (
	// ErrSubjectNotFound means no active tourist profile matched.
	ErrSubjectNotFound = errors.New("tourist profile not found")
	// ErrRateLimitExceeded means the caller exhausted its window budget.
	ErrRateLimitExceeded = errors.New("too many requests, please slow down")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrAlertResolved     = errors.New("alert already resolved")
)
