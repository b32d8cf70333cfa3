// Package apperrors defines the error taxonomy shared across the engine.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique-constraint violations.
	ErrConflict = errors.New("conflict")
	// ErrValidation is returned when a search request is malformed
	// (bad mode, empty text, unknown identifier). Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTarget is returned when a table or column is not present
	// in the source's discovered schema allow-list.
	ErrInvalidTarget = errors.New("invalid search target")
	// ErrSourceNotFound is returned when a source id has no registered pool.
	ErrSourceNotFound = errors.New("datasource not registered")
	// ErrPoolExhausted is returned when pool acquisition times out.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrSourceUnhealthy is returned when a source is excluded from traffic.
	ErrSourceUnhealthy = errors.New("datasource unhealthy")
	// ErrAIUnavailable signals that the query optimizer could not be
	// reached. Non-fatal: callers fall back to the unmodified query.
	ErrAIUnavailable = errors.New("ai query service unavailable")
	// ErrCacheUnavailable signals a cache store failure. Non-fatal:
	// callers treat it as a cache miss.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrAllSourcesFailed is returned when every selected source failed.
	ErrAllSourcesFailed = errors.New("all sources failed")
	// ErrDeadlineExceeded is returned when the overall search deadline
	// elapses before any source has responded.
	ErrDeadlineExceeded = errors.New("search deadline exceeded")
	// ErrCredentialsKeyMismatch is returned when stored datasource
	// credentials were encrypted with a different key.
	ErrCredentialsKeyMismatch = errors.New("datasource credentials were encrypted with a different key")
)

// Stage identifies where in the request pipeline a per-source error occurred.
type Stage string

const (
	StageAcquire   Stage = "acquire"
	StageBuild     Stage = "build"
	StageExecute   Stage = "execute"
	StageNormalize Stage = "normalize"
)

// SourceError is a per-source failure recorded during fan-out. It carries
// enough context for observability without leaking credentials: the wrapped
// error is sanitized before it reaches a log line.
type SourceError struct {
	SourceID string
	Table    string
	Stage    Stage
	Err      error
}

func (e *SourceError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("source %s table %s: %s: %v", e.SourceID, e.Table, e.Stage, e.Err)
	}
	return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Stage, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError wraps err with source and stage context.
func NewSourceError(sourceID string, stage Stage, err error) *SourceError {
	return &SourceError{SourceID: sourceID, Stage: stage, Err: err}
}
