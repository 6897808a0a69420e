package domain

import "errors"

// Error taxonomy for the orchestration core. Nothing here is process-fatal.
var (
	// ErrAuthentication marks a bad or missing client token. Surfaced to
	// the caller; the connection stays open.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotFound marks an unknown stream or alert id. No retry.
	ErrNotFound = errors.New("not found")

	// ErrStageFailed marks a pipeline stage that exhausted its in-execution
	// retry budget.
	ErrStageFailed = errors.New("pipeline stage failed")

	// ErrBackoffExhausted marks a stream auto-paused after bounded
	// consecutive scheduling failures.
	ErrBackoffExhausted = errors.New("scheduling backoff exhausted")

	// ErrAlreadyRunning marks a denied admission: an execution for the
	// stream is already in flight.
	ErrAlreadyRunning = errors.New("execution already running")

	// ErrDeliveryFailed marks a push to one session that could not be
	// completed; the message stays durable for replay.
	ErrDeliveryFailed = errors.New("session delivery failed")
)
