package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cache_entries (
		bucket      TEXT    NOT NULL,
		key         TEXT    NOT NULL,
		value       BLOB    NOT NULL,
		expires_at  INTEGER NOT NULL,
		accessed_at INTEGER NOT NULL,
		PRIMARY KEY (bucket, key)
	)`,
	`CREATE INDEX IF NOT EXISTS cache_entries_lru ON cache_entries (bucket, accessed_at)`,
}

// OpenDB opens (creating if needed) the cache database at path.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	// sqlite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	stmts := append([]string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"}, schema...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing cache db: %w", err)
		}
	}
	return db, nil
}

// SQLite is a persistent store scoped to one bucket of a shared database.
// Entries survive between CLI invocations.
type SQLite struct {
	db     *sql.DB
	bucket string
	max    int
	now    func() time.Time
}

// NewSQLite creates a store for bucket holding at most maxEntries values.
func NewSQLite(db *sql.DB, bucket string, maxEntries int) *SQLite {
	return &SQLite{db: db, bucket: bucket, max: maxEntries, now: time.Now}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE bucket = ? AND key = ?`,
		s.bucket, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	now := s.now()
	if now.UnixNano() > expiresAt {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrMiss
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET accessed_at = ? WHERE bucket = ? AND key = ?`,
		now.UnixNano(), s.bucket, key,
	); err != nil {
		return nil, fmt.Errorf("touching cache entry: %w", err)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (bucket, key, value, expires_at, accessed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (bucket, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			accessed_at = excluded.accessed_at`,
		s.bucket, key, value, now.Add(ttl).UnixNano(), now.UnixNano(),
	); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	if s.max <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE bucket = ? AND key IN (
			SELECT key FROM cache_entries WHERE bucket = ?
			ORDER BY accessed_at DESC LIMIT -1 OFFSET ?
		)`,
		s.bucket, s.bucket, s.max,
	); err != nil {
		return fmt.Errorf("evicting cache entries: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE bucket = ? AND key = ?`, s.bucket, key,
	); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE bucket = ?`, s.bucket,
	); err != nil {
		return fmt.Errorf("clearing cache bucket %s: %w", s.bucket, err)
	}
	return nil
}
