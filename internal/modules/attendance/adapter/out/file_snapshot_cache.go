package out

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"punchclock/internal/modules/attendance/domain"
	attendanceout "punchclock/internal/modules/attendance/port/out"
	apperrors "punchclock/internal/platform/errors"
)

// FileSnapshotCache keeps one JSON file per key under the data directory.
type FileSnapshotCache struct {
	dir string
}

func NewFileSnapshotCache(dataDir string) attendanceout.SnapshotCache {
	return &FileSnapshotCache{dir: filepath.Join(dataDir, "snapshots")}
}

func (c *FileSnapshotCache) Get(_ context.Context, key string) (domain.CachedSnapshot, error) {
	if err := validateKey(key); err != nil {
		return domain.CachedSnapshot{}, err
	}
	payload, err := os.ReadFile(c.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.CachedSnapshot{}, apperrors.ErrNotFound
		}
		return domain.CachedSnapshot{}, fmt.Errorf("read session snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

// Set replaces the file atomically so a crash never leaves half a snapshot.
func (c *FileSnapshotCache) Set(_ context.Context, key string, snapshot domain.CachedSnapshot) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	payload, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write session snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		return fmt.Errorf("replace session snapshot: %w", err)
	}
	return nil
}

func (c *FileSnapshotCache) Clear(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(c.path(key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

func (c *FileSnapshotCache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}
