package observation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/db"
)

type sqlQueryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type factRepoSQLite struct{ dbh *sql.DB }

// NewRepoSQLite returns a Repository backed by embedded SQLite. The single
// connection enforced by db.OpenSQLite serializes writers, so transactions
// here see the same isolation the PostgreSQL backend gets from row locks.
func NewRepoSQLite(dbh *sql.DB) Repository {
	return &factRepoSQLite{dbh: dbh}
}

func (r *factRepoSQLite) conn(ctx context.Context) sqlQueryable {
	if tx := db.SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.dbh
}

const factColsSQLite = `id, patient_id, loinc_num, value_num,
	valid_start, valid_end, txn_start, txn_end`

func scanFactSQLite(rows *sql.Rows) (*Fact, error) {
	var (
		f              Fact
		id, patientID  string
		validEnd, txnEnd sql.NullTime
	)
	if err := rows.Scan(&id, &patientID, &f.LoincNum, &f.Value,
		&f.ValidStart, &validEnd, &f.TxnStart, &txnEnd); err != nil {
		return nil, err
	}

	var err error
	if f.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse fact id %q: %w", id, err)
	}
	if f.PatientID, err = uuid.Parse(patientID); err != nil {
		return nil, fmt.Errorf("parse patient id %q: %w", patientID, err)
	}
	f.ValidStart = f.ValidStart.UTC()
	f.TxnStart = f.TxnStart.UTC()
	if validEnd.Valid {
		t := validEnd.Time.UTC()
		f.ValidEnd = &t
	}
	if txnEnd.Valid {
		t := txnEnd.Time.UTC()
		f.TxnEnd = &t
	}
	return &f, nil
}

func (r *factRepoSQLite) Append(ctx context.Context, f *Fact) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}

	var validEnd, txnEnd interface{}
	if f.ValidEnd != nil {
		validEnd = *f.ValidEnd
	}
	if f.TxnEnd != nil {
		txnEnd = *f.TxnEnd
	}

	_, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO observation (id, patient_id, loinc_num, value_num,
			valid_start, valid_end, txn_start, txn_end)
		VALUES (?,?,?,?,?,?,?,?)`,
		f.ID.String(), f.PatientID.String(), f.LoincNum, f.Value,
		f.ValidStart, validEnd, f.TxnStart, txnEnd)
	if err != nil {
		return fmt.Errorf("append fact: %w", err)
	}
	return nil
}

func (r *factRepoSQLite) FindCurrentContaining(ctx context.Context, patientID uuid.UUID, loincNum string, at time.Time) (*Fact, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, `
		SELECT `+factColsSQLite+` FROM observation
		WHERE patient_id = ? AND loinc_num = ? AND txn_end IS NULL
		  AND valid_start <= ? AND (valid_end IS NULL OR valid_end > ?)
		ORDER BY txn_start
		LIMIT 2`,
		patientID.String(), loincNum, at, at)
	if err != nil {
		return nil, fmt.Errorf("find current fact: %w", err)
	}
	defer rows.Close()

	var found []*Fact
	for rows.Next() {
		f, err := scanFactSQLite(rows)
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

func (r *factRepoSQLite) FindIntersecting(ctx context.Context, patientID uuid.UUID, loincNum string, windowStart, windowEnd time.Time) ([]*Fact, error) {
	query := `SELECT ` + factColsSQLite + ` FROM observation
		WHERE patient_id = ? AND loinc_num = ?
		  AND valid_start < ? AND (valid_end IS NULL OR valid_end > ?)
		ORDER BY valid_start, txn_start`
	args := []interface{}{patientID.String(), loincNum, windowEnd, windowStart}
	if windowStart.Equal(windowEnd) {
		query = `SELECT ` + factColsSQLite + ` FROM observation
			WHERE patient_id = ? AND loinc_num = ?
			  AND valid_start <= ? AND (valid_end IS NULL OR valid_end > ?)
			ORDER BY valid_start, txn_start`
		args = []interface{}{patientID.String(), loincNum, windowStart, windowStart}
	}

	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find intersecting facts: %w", err)
	}
	defer rows.Close()

	var facts []*Fact
	for rows.Next() {
		f, err := scanFactSQLite(rows)
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

func (r *factRepoSQLite) CloseTransaction(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE observation SET txn_end = ? WHERE id = ? AND txn_end IS NULL`,
		at, id.String())
	if err != nil {
		return fmt.Errorf("close fact transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close fact transaction: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: fact %s is missing or already closed", ErrInvariantViolation, id)
	}
	return nil
}

func (r *factRepoSQLite) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.InSQLTx(ctx, r.dbh, fn)
}
