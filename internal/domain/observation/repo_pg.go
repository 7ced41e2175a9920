package observation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type factRepoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by PostgreSQL. The schema's partial
// exclusion constraint backs up the at-most-one-current invariant the
// queries assume.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &factRepoPG{pool: pool}
}

func (r *factRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const factCols = `id, patient_id, loinc_num, value_num,
	valid_start, valid_end, txn_start, txn_end`

func scanFact(row pgx.Row) (*Fact, error) {
	var f Fact
	err := row.Scan(&f.ID, &f.PatientID, &f.LoincNum, &f.Value,
		&f.ValidStart, &f.ValidEnd, &f.TxnStart, &f.TxnEnd)
	return &f, err
}

func (r *factRepoPG) Append(ctx context.Context, f *Fact) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO observation (id, patient_id, loinc_num, value_num,
			valid_start, valid_end, txn_start, txn_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		f.ID, f.PatientID, f.LoincNum, f.Value,
		f.ValidStart, f.ValidEnd, f.TxnStart, f.TxnEnd)
	if err != nil {
		return fmt.Errorf("append fact: %w", err)
	}
	return nil
}

func (r *factRepoPG) FindCurrentContaining(ctx context.Context, patientID uuid.UUID, loincNum string, at time.Time) (*Fact, error) {
	query := `SELECT ` + factCols + ` FROM observation
		WHERE patient_id = $1 AND loinc_num = $2 AND txn_end IS NULL
		  AND valid_start <= $3 AND (valid_end IS NULL OR valid_end > $3)
		ORDER BY txn_start
		LIMIT 2`
	// Inside a transaction the candidate row is locked so a concurrent
	// retro operation on the same slice blocks until we commit.
	if db.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}

	rows, err := r.conn(ctx).Query(ctx, query, patientID, loincNum, at)
	if err != nil {
		return nil, fmt.Errorf("find current fact: %w", err)
	}
	defer rows.Close()

	var found []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		found = append(found, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %d open facts for patient %s code %s at %s",
			ErrInvariantViolation, len(found), patientID, loincNum, at.Format(time.RFC3339))
	}
}

func (r *factRepoPG) FindIntersecting(ctx context.Context, patientID uuid.UUID, loincNum string, windowStart, windowEnd time.Time) ([]*Fact, error) {
	query := `SELECT ` + factCols + ` FROM observation
		WHERE patient_id = $1 AND loinc_num = $2
		  AND valid_start < $4 AND (valid_end IS NULL OR valid_end > $3)
		ORDER BY valid_start, txn_start`
	if windowStart.Equal(windowEnd) {
		// Instant snapshot: containment of the single instant.
		query = `SELECT ` + factCols + ` FROM observation
			WHERE patient_id = $1 AND loinc_num = $2
			  AND valid_start <= $3 AND (valid_end IS NULL OR valid_end > $4)
			ORDER BY valid_start, txn_start`
	}

	rows, err := r.conn(ctx).Query(ctx, query, patientID, loincNum, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("find intersecting facts: %w", err)
	}
	defer rows.Close()

	var facts []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

func (r *factRepoPG) CloseTransaction(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE observation SET txn_end = $2 WHERE id = $1 AND txn_end IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("close fact transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: fact %s is missing or already closed", ErrInvariantViolation, id)
	}
	return nil
}

func (r *factRepoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.InTx(ctx, r.pool, fn)
}
