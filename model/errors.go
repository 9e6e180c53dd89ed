package model

import (
	"fmt"
	"time"
)

// ErrorKind classifies a sync failure. Transient and RateLimited failures
// are retried by the fetch client, Fatal failures are surfaced immediately,
// Offline suspends live updates until connectivity returns.
type ErrorKind int

const (
	ErrTransient ErrorKind = iota
	ErrRateLimited
	ErrFatal
	ErrOffline
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrRateLimited:
		return "rate_limited"
	case ErrFatal:
		return "fatal"
	case ErrOffline:
		return "offline"
	}
	return "unknown"
}

// SyncError is the discriminated failure result crossing component
// boundaries. It never carries panics; expected failure modes only.
type SyncError struct {
	Kind       ErrorKind
	Status     int           // HTTP status when the failure came from a response
	RetryAfter time.Duration // server-provided delay for rate-limited failures
	Err        error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *SyncError) Unwrap() error { return e.Err }

// Retryable reports whether the fetch client may issue another attempt.
func (e *SyncError) Retryable() bool {
	return e.Kind == ErrTransient || e.Kind == ErrRateLimited
}

func NewTransient(err error) *SyncError { return &SyncError{Kind: ErrTransient, Err: err} }

func NewFatal(err error) *SyncError { return &SyncError{Kind: ErrFatal, Err: err} }

func NewOffline(err error) *SyncError { return &SyncError{Kind: ErrOffline, Err: err} }

func NewRateLimited(after time.Duration, err error) *SyncError {
	return &SyncError{Kind: ErrRateLimited, RetryAfter: after, Err: err}
}
