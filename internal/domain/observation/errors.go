package observation

import "errors"

var (
	// ErrNoMatchingFact is returned when a retro-update or retro-delete
	// targets an instant with no currently-open fact. The caller likely
	// mistyped the instant; there is no fuzzy fallback.
	ErrNoMatchingFact = errors.New("no measurement found at this exact time")

	// ErrConflict is returned when a concurrent writer closed the targeted
	// fact between lookup and mutation. The operation is safe to re-issue;
	// the engine never retries on the caller's behalf.
	ErrConflict = errors.New("measurement was modified concurrently")

	// ErrInvariantViolation indicates store corruption: more than one open
	// fact covering the same valid instant, or a close of an already-closed
	// row. Fatal to the operation, never suppressed.
	ErrInvariantViolation = errors.New("bitemporal invariant violation")
)
