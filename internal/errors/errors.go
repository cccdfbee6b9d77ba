package errors

import (
	"errors"
)

// Failure taxonomy for the enforcement pipeline. Dispatch retry policy and
// classifier fail-open behavior key off these sentinels.
var (
	// ErrTransientExternal covers network failures, timeouts and external
	// rate-limit responses. Retried with backoff, bounded attempts.
	ErrTransientExternal = errors.New("transient external error")
	// ErrPermanentExternal covers permission denials and unknown targets.
	// Surfaced immediately, never retried.
	ErrPermanentExternal = errors.New("permanent external error")
	// ErrClassificationInput marks a malformed event or content; the event
	// is treated as benign and the pipeline continues.
	ErrClassificationInput = errors.New("malformed classification input")
	// ErrConfiguration marks invalid per-guild configuration; the guild
	// falls back to safe defaults.
	ErrConfiguration = errors.New("invalid guild configuration")
	// ErrStateCorruption marks a broken guild state invariant; the guild
	// state is reset, never propagated.
	ErrStateCorruption = errors.New("guild state corruption")

	ErrNotFound = errors.New("not found")
	ErrDropped  = errors.New("dropped by backpressure")
)

// IsRetryable reports whether err should be retried by the dispatcher.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientExternal)
}
