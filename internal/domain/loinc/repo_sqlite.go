package loinc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/db"
)

type sqlQueryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type conceptRepoSQLite struct{ dbh *sql.DB }

func NewConceptRepoSQLite(dbh *sql.DB) ConceptRepository {
	return &conceptRepoSQLite{dbh: dbh}
}

func (r *conceptRepoSQLite) conn(ctx context.Context) sqlQueryable {
	if tx := db.SQLTxFromContext(ctx); tx != nil {
		return tx
	}
	return r.dbh
}

func (r *conceptRepoSQLite) Upsert(ctx context.Context, c *Concept) error {
	_, err := r.conn(ctx).ExecContext(ctx, `
		INSERT INTO loinc (loinc_num, common_name) VALUES (?,?)
		ON CONFLICT (loinc_num) DO UPDATE SET common_name = excluded.common_name`,
		c.LoincNum, c.CommonName)
	if err != nil {
		return fmt.Errorf("upsert concept %s: %w", c.LoincNum, err)
	}
	return nil
}

func (r *conceptRepoSQLite) BulkUpsert(ctx context.Context, concepts []*Concept) error {
	return db.InSQLTx(ctx, r.dbh, func(ctx context.Context) error {
		for _, c := range concepts {
			if err := r.Upsert(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *conceptRepoSQLite) GetByCode(ctx context.Context, loincNum string) (*Concept, error) {
	var c Concept
	err := r.conn(ctx).QueryRowContext(ctx,
		`SELECT loinc_num, common_name FROM loinc WHERE loinc_num = ?`, loincNum).
		Scan(&c.LoincNum, &c.CommonName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get concept %s: %w", loincNum, err)
	}
	return &c, nil
}

func (r *conceptRepoSQLite) Search(ctx context.Context, query string, limit, offset int) ([]*Concept, int, error) {
	pattern := "%" + query + "%"

	var total int
	if err := r.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loinc WHERE loinc_num LIKE ? OR common_name LIKE ?`,
		pattern, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count concepts: %w", err)
	}

	rows, err := r.conn(ctx).QueryContext(ctx,
		`SELECT loinc_num, common_name FROM loinc
		 WHERE loinc_num LIKE ? OR common_name LIKE ?
		 ORDER BY loinc_num LIMIT ? OFFSET ?`,
		pattern, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search concepts: %w", err)
	}
	defer rows.Close()

	var items []*Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.LoincNum, &c.CommonName); err != nil {
			return nil, 0, fmt.Errorf("scan concept: %w", err)
		}
		items = append(items, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate concepts: %w", err)
	}
	return items, total, nil
}

func (r *conceptRepoSQLite) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM loinc`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count concepts: %w", err)
	}
	return total, nil
}
