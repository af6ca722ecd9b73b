package pipeline

import "errors"

// Failure classes drive retry policy: transient failures are retried by the
// bus, everything else acks immediately.
var (
	// ErrTransient marks failures worth redelivering (store or network down).
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that will not succeed on retry.
	ErrPermanent = errors.New("permanent failure")
	// ErrBadInput marks events violating the canonical contract. Dropped.
	ErrBadInput = errors.New("bad input")
	// ErrDuplicateEvent marks events already ingested. Not an error outcome.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// Class names the failure class for metrics labels.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrBadInput):
		return "bad_input"
	case errors.Is(err, ErrDuplicateEvent):
		return "duplicate"
	default:
		return "permanent"
	}
}
