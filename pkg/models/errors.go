package models

import "errors"

// Sentinel errors shared across causeway packages.
var (
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates caller input failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidWindow indicates a time window with end before start
	// or a non-positive duration.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrSourceUnavailable indicates a data source could not be reached.
	// Retrievers degrade to empty results and surface this flag instead
	// of failing the overall analysis.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrConflict indicates a write conflict that exhausted its retries.
	ErrConflict = errors.New("write conflict")
)
