package loinc

import (
	"context"
	"errors"
	"fmt"

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

type conceptRepoPG struct{ pool *pgxpool.Pool }

func NewConceptRepoPG(pool *pgxpool.Pool) ConceptRepository {
	return &conceptRepoPG{pool: pool}
}

func (r *conceptRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *conceptRepoPG) Upsert(ctx context.Context, c *Concept) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO loinc (loinc_num, common_name) VALUES ($1,$2)
		ON CONFLICT (loinc_num) DO UPDATE SET common_name = EXCLUDED.common_name`,
		c.LoincNum, c.CommonName)
	if err != nil {
		return fmt.Errorf("upsert concept %s: %w", c.LoincNum, err)
	}
	return nil
}

func (r *conceptRepoPG) BulkUpsert(ctx context.Context, concepts []*Concept) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		for _, c := range concepts {
			if err := r.Upsert(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *conceptRepoPG) GetByCode(ctx context.Context, loincNum string) (*Concept, error) {
	var c Concept
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT loinc_num, common_name FROM loinc WHERE loinc_num = $1`, loincNum).
		Scan(&c.LoincNum, &c.CommonName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get concept %s: %w", loincNum, err)
	}
	return &c, nil
}

func (r *conceptRepoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Concept, int, error) {
	pattern := "%" + query + "%"

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM loinc WHERE loinc_num ILIKE $1 OR common_name ILIKE $1`,
		pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count concepts: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT loinc_num, common_name FROM loinc
		 WHERE loinc_num ILIKE $1 OR common_name ILIKE $1
		 ORDER BY loinc_num LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
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

func (r *conceptRepoPG) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM loinc`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count concepts: %w", err)
	}
	return total, nil
}
