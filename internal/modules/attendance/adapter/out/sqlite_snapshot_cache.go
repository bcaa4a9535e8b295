package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"punchclock/internal/modules/attendance/domain"
	apperrors "punchclock/internal/platform/errors"

	_ "modernc.org/sqlite"
)

type SQLiteSnapshotCache struct {
	db *sql.DB
}

func NewSQLiteSnapshotCache(dbPath string) (*SQLiteSnapshotCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	cache := &SQLiteSnapshotCache{db: db}
	if err := cache.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *SQLiteSnapshotCache) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_snapshots (
  cache_key TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create session_snapshots table: %w", err)
	}
	return nil
}

func (c *SQLiteSnapshotCache) Get(ctx context.Context, key string) (domain.CachedSnapshot, error) {
	if err := validateKey(key); err != nil {
		return domain.CachedSnapshot{}, err
	}
	var payload string
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM session_snapshots WHERE cache_key = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CachedSnapshot{}, apperrors.ErrNotFound
		}
		return domain.CachedSnapshot{}, fmt.Errorf("query session snapshot: %w", err)
	}
	return decodeSnapshot([]byte(payload))
}

func (c *SQLiteSnapshotCache) Set(ctx context.Context, key string, snapshot domain.CachedSnapshot) error {
	if err := validateKey(key); err != nil {
		return err
	}
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	const stmt = `
INSERT INTO session_snapshots (cache_key, payload, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
  payload=excluded.payload,
  updated_at=excluded.updated_at;
`
	if _, err := c.db.ExecContext(ctx, stmt, key, string(payload), snapshot.WrittenAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("upsert session snapshot: %w", err)
	}
	return nil
}

func (c *SQLiteSnapshotCache) Clear(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

func (c *SQLiteSnapshotCache) Close() error {
	return c.db.Close()
}
