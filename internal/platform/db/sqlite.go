package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLTxKey carries the active database/sql transaction for the SQLite
// backend, mirroring DBTxKey for pgx.
const SQLTxKey contextKey = "sql_tx"

// OpenSQLite opens (creating if needed) an embedded SQLite database.
// The connection limit of 1 serializes all access, so write transactions
// never interleave.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	dbh, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	dbh.SetMaxOpenConns(1)

	if err := dbh.Ping(); err != nil {
		dbh.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return dbh, nil
}

// EnsureSQLiteSchema creates the tables the embedded backend needs. SQLite
// deployments skip the file-based migrator; the schema ships with the binary.
func EnsureSQLiteSchema(ctx context.Context, dbh *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS patient (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    gender TEXT NOT NULL,
    birth_date TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patient_name ON patient (last_name, first_name);

CREATE TABLE IF NOT EXISTS loinc (
    loinc_num TEXT PRIMARY KEY,
    common_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS observation (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL REFERENCES patient(id),
    loinc_num TEXT NOT NULL,
    value_num REAL NOT NULL,
    valid_start TIMESTAMP NOT NULL,
    valid_end TIMESTAMP,
    txn_start TIMESTAMP NOT NULL,
    txn_end TIMESTAMP,
    CHECK (valid_end IS NULL OR valid_start <= valid_end),
    CHECK (txn_end IS NULL OR txn_start <= txn_end)
);
CREATE INDEX IF NOT EXISTS idx_observation_lookup
    ON observation (patient_id, loinc_num, valid_start);
CREATE INDEX IF NOT EXISTS idx_observation_current
    ON observation (patient_id, loinc_num) WHERE txn_end IS NULL;
`
	if _, err := dbh.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}

// SQLTxFromContext retrieves the active SQLite transaction, or nil.
func SQLTxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(SQLTxKey).(*sql.Tx)
	return tx
}

// InSQLTx is InTx for the SQLite backend.
func InSQLTx(ctx context.Context, dbh *sql.DB, fn func(ctx context.Context) error) error {
	if SQLTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := dbh.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, SQLTxKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
