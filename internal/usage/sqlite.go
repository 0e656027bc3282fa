package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS daily_usage (
	date_key    TEXT    NOT NULL,
	bucket      TEXT    NOT NULL,
	count       INTEGER NOT NULL DEFAULT 0,
	spend_minor INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date_key, bucket)
);`

// SQLiteStore keeps counters in a SQLite file. Each increment is a single
// UPSERT statement, so processes sharing the file never lose updates.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// One writer per process; busy_timeout covers other processes.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, unavailable("ping", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, unavailable("apply schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get reads one counter.
func (s *SQLiteStore) Get(ctx context.Context, dateKey string, bucket Bucket) (Counter, error) {
	var count, spend int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count, spend_minor FROM daily_usage WHERE date_key = ? AND bucket = ?`,
		dateKey, string(bucket),
	).Scan(&count, &spend)
	if errors.Is(err, sql.ErrNoRows) {
		return Counter{Spend: fromMinor(0)}, nil
	}
	if err != nil {
		return Counter{}, unavailable("get", err)
	}
	return Counter{Count: count, Spend: fromMinor(spend)}, nil
}

// Increment adds delta and returns the new row in one statement.
func (s *SQLiteStore) Increment(ctx context.Context, dateKey string, bucket Bucket, delta Counter) (Counter, error) {
	var count, spend int64
	err := s.db.QueryRowContext(ctx, `
INSERT INTO daily_usage (date_key, bucket, count, spend_minor)
VALUES (?, ?, ?, ?)
ON CONFLICT (date_key, bucket) DO UPDATE SET
	count = count + excluded.count,
	spend_minor = spend_minor + excluded.spend_minor
RETURNING count, spend_minor`,
		dateKey, string(bucket), delta.Count, toMinor(delta.Spend),
	).Scan(&count, &spend)
	if err != nil {
		return Counter{}, unavailable("increment", err)
	}
	return Counter{Count: count, Spend: fromMinor(spend)}, nil
}

// Reset deletes every counter.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage`); err != nil {
		return unavailable("reset", err)
	}
	return nil
}

// Prune deletes days strictly before the given date key.
func (s *SQLiteStore) Prune(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM daily_usage WHERE date_key < ?`, before)
	if err != nil {
		return 0, unavailable("prune", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
