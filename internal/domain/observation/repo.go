package observation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the fact store contract. Implementations must uphold the
// at-most-one-current invariant reads rely on: for a given (patient, code),
// at most one row with an open transaction interval may cover any valid
// instant.
type Repository interface {
	// Append inserts a new fact row and assigns its ID.
	Append(ctx context.Context, f *Fact) error

	// FindCurrentContaining returns the unique open fact whose valid
	// interval contains at, or nil when there is none. Finding more than
	// one candidate is reported as ErrInvariantViolation.
	FindCurrentContaining(ctx context.Context, patientID uuid.UUID, loincNum string, at time.Time) (*Fact, error)

	// FindIntersecting returns every fact, regardless of transaction state,
	// whose valid interval intersects [windowStart, windowEnd), ordered by
	// valid start ascending with transaction start as the tie-break. An
	// empty window is an instant snapshot.
	FindIntersecting(ctx context.Context, patientID uuid.UUID, loincNum string, windowStart, windowEnd time.Time) ([]*Fact, error)

	// CloseTransaction sets txn_end on the targeted row. Closing a row that
	// is already closed is ErrInvariantViolation.
	CloseTransaction(ctx context.Context, id uuid.UUID, at time.Time) error

	// InTx runs fn inside a single store transaction. Repository calls made
	// with the context passed to fn join that transaction; fn returning an
	// error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
