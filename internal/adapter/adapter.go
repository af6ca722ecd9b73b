// Package adapter defines the source-adapter contract and the registry that
// runs adapters on schedule, publishes their events, and tracks per-source
// health. Each concrete source lives in its own subpackage.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/venwatch/venwatch/internal/event"
)

// Schedule describes when an adapter runs and how far back an unscheduled
// (triggered) run reaches by default.
type Schedule struct {
	// Frequency between scheduled runs.
	Frequency time.Duration
	// DefaultLookback is the window when no explicit range is given.
	DefaultLookback time.Duration
}

// Adapter is one external data source. Fetch covers [start, end) and
// returns fully transformed canonical events; records that cannot be
// transformed are skipped, never fatal. Events are validated and
// deduplicated downstream.
type Adapter interface {
	Source() string
	Schedule() Schedule
	Fetch(ctx context.Context, start, end time.Time) ([]*event.Event, error)
}

// TransientError marks a fetch failure worth retrying (rate limit, outage).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a fetch failure retry cannot fix (auth, bad request).
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error { return &TransientError{Err: err} }

// Permanent wraps err as non-retryable.
func Permanent(err error) error { return &PermanentError{Err: err} }

// IsTransient reports whether err is a retryable fetch failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
