package cache

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteOracle is a durable Oracle backed by SQLite, adapted from
// storage.SQLiteStorage's schema/Init/Save pattern: a single call_cache
// table keyed by fingerprint, value stored as a JSON blob. Writes commit
// immediately (no batching across Put calls) so the write-forward
// durability guarantee holds even if the process crashes mid-run: partial
// side effects in the cache remain visible on restart.
type SQLiteOracle struct {
	db   *sql.DB
	path string
}

// NewSQLiteOracle opens (creating if necessary) a SQLite-backed cache
// oracle at path.
func NewSQLiteOracle(path string) (*SQLiteOracle, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	o := &SQLiteOracle{db: db, path: path}
	if err := o.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return o, nil
}

func (o *SQLiteOracle) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS call_cache (
		fingerprint TEXT PRIMARY KEY,
		value       TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := o.db.Exec(schema); err != nil {
		return fmt.Errorf("cache: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (o *SQLiteOracle) Close() error {
	if o.db != nil {
		return o.db.Close()
	}
	return nil
}

func (o *SQLiteOracle) Fingerprint(functionName string, positional []any, keyword map[string]any) (Fingerprint, error) {
	return deriveFingerprint(functionName, positional, keyword)
}

func (o *SQLiteOracle) Contains(ctx context.Context, fp Fingerprint) (bool, error) {
	var n int
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM call_cache WHERE fingerprint = ?`, string(fp)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("cache: query fingerprint: %w", err)
	}
	return n > 0, nil
}

func (o *SQLiteOracle) Get(ctx context.Context, fp Fingerprint) (any, error) {
	var raw string
	err := o.db.QueryRowContext(ctx, `SELECT value FROM call_cache WHERE fingerprint = ?`, string(fp)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cache: no entry for fingerprint %q", fp)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get value: %w", err)
	}
	return unmarshalValue([]byte(raw))
}

func (o *SQLiteOracle) Put(ctx context.Context, fp Fingerprint, value any) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO call_cache (fingerprint, value)
		VALUES (?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET value = excluded.value
	`, string(fp), string(data))
	if err != nil {
		return fmt.Errorf("cache: put value: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: commit: %w", err)
	}
	return nil
}

// Inspect lists every cached fingerprint, adapted from
// storage.GetHistory's read-all-rows shape; used by the `cache inspect`
// CLI subcommand.
func (o *SQLiteOracle) Inspect(ctx context.Context) ([]Fingerprint, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT fingerprint FROM call_cache ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("cache: inspect: %w", err)
	}
	defer rows.Close()

	var out []Fingerprint
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("cache: scan fingerprint: %w", err)
		}
		out = append(out, Fingerprint(fp))
	}
	return out, rows.Err()
}

// Clear truncates the cache table, adapted from storage.Cleanup's
// delete-and-report shape; used by the `cache clear` CLI subcommand.
func (o *SQLiteOracle) Clear(ctx context.Context) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM call_cache`); err != nil {
		return fmt.Errorf("cache: clear: %w", err)
	}
	return nil
}
