package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/db"
)

type sqlQueryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type patientRepoSQLite struct{ dbh *sql.DB }

func NewPatientRepoSQLite(dbh *sql.DB) PatientRepository {
	return &patientRepoSQLite{dbh: dbh}
}

func (r *patientRepoSQLite) conn(ctx context.Context) sqlQueryable {
	if tx := db.SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.dbh
}

type sqlScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatientSQLite(row sqlScanner) (*Patient, error) {
	var (
		p  Patient
		id string
	)
	if err := row.Scan(&id, &p.FirstName, &p.LastName, &p.Gender, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse patient id %q: %w", id, err)
	}
	p.BirthDate = p.BirthDate.UTC()
	return &p, nil
}

func (r *patientRepoSQLite) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Second)
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO patient (id, first_name, last_name, gender, birth_date, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		p.ID.String(), p.FirstName, p.LastName, p.Gender, p.BirthDate, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *patientRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatientSQLite(r.conn(ctx).QueryRowContext(ctx,
		`SELECT id, first_name, last_name, gender, birth_date, created_at, updated_at
		 FROM patient WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *patientRepoSQLite) GetByName(ctx context.Context, firstName, lastName string) (*Patient, error) {
	p, err := scanPatientSQLite(r.conn(ctx).QueryRowContext(ctx,
		`SELECT id, first_name, last_name, gender, birth_date, created_at, updated_at
		 FROM patient WHERE first_name = ? AND last_name = ?
		 ORDER BY created_at LIMIT 1`, firstName, lastName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient by name: %w", err)
	}
	return p, nil
}

func (r *patientRepoSQLite) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := r.conn(ctx).QueryContext(ctx,
		`SELECT id, first_name, last_name, gender, birth_date, created_at, updated_at
		 FROM patient ORDER BY last_name, first_name LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatientSQLite(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate patients: %w", err)
	}
	return items, total, nil
}
