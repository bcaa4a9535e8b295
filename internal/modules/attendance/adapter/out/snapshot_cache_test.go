package out_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	attendanceout "punchclock/internal/modules/attendance/adapter/out"
	"punchclock/internal/modules/attendance/domain"
	attendanceport "punchclock/internal/modules/attendance/port/out"
	apperrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/id"
)

func cacheBackends(t *testing.T) map[string]func(t *testing.T) attendanceport.SnapshotCache {
	t.Helper()
	return map[string]func(t *testing.T) attendanceport.SnapshotCache{
		"file": func(t *testing.T) attendanceport.SnapshotCache {
			return attendanceout.NewFileSnapshotCache(t.TempDir())
		},
		"sqlite": func(t *testing.T) attendanceport.SnapshotCache {
			cache, err := attendanceout.NewSQLiteSnapshotCache(filepath.Join(t.TempDir(), "punchclock.db"))
			if err != nil {
				t.Fatalf("open sqlite cache: %v", err)
			}
			t.Cleanup(func() { _ = cache.Close() })
			return cache
		},
		"redis": func(t *testing.T) attendanceport.SnapshotCache {
			addr := os.Getenv("PUNCHCLOCK_TEST_REDIS_ADDR")
			if addr == "" {
				t.Skip("PUNCHCLOCK_TEST_REDIS_ADDR not set")
			}
			client := redis.NewClient(&redis.Options{Addr: addr})
			t.Cleanup(func() { _ = client.Close() })
			return attendanceout.NewRedisSnapshotCache(client, "punchclock-test-"+id.UUID{}.New())
		},
	}
}

func TestSnapshotCacheContract(t *testing.T) {
	t.Parallel()
	clockIn := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	for name, open := range cacheBackends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cache := open(t)
			ctx := context.Background()

			if _, err := cache.Get(ctx, "attendance.snapshot"); !errors.Is(err, apperrors.ErrNotFound) {
				t.Fatalf("expected not found on empty cache, got %v", err)
			}
			snapshot := domain.SnapshotOf(domain.CheckedInRecord("42", clockIn), clockIn.Add(time.Second))
			if err := cache.Set(ctx, "attendance.snapshot", snapshot); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, err := cache.Get(ctx, "attendance.snapshot")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.EmployeeID != "42" || got.Status != domain.StatusCheckedIn || !got.ClockInAt.Equal(clockIn) {
				t.Fatalf("unexpected snapshot: %+v", got)
			}

			checkedOut := domain.SnapshotOf(domain.CheckedOutRecord("42"), clockIn.Add(time.Hour))
			if err := cache.Set(ctx, "attendance.snapshot", checkedOut); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err = cache.Get(ctx, "attendance.snapshot")
			if err != nil {
				t.Fatalf("get after overwrite: %v", err)
			}
			if got.Status != domain.StatusCheckedOut || !got.ClockInAt.IsZero() {
				t.Fatalf("expected cleared clock in after overwrite, got %+v", got)
			}

			if err := cache.Clear(ctx, "attendance.snapshot"); err != nil {
				t.Fatalf("clear: %v", err)
			}
			if err := cache.Clear(ctx, "attendance.snapshot"); err != nil {
				t.Fatalf("clearing twice must be a no-op, got %v", err)
			}
			if _, err := cache.Get(ctx, "attendance.snapshot"); !errors.Is(err, apperrors.ErrNotFound) {
				t.Fatalf("expected not found after clear, got %v", err)
			}
			if err := cache.Set(ctx, "../escape", snapshot); !errors.Is(err, apperrors.ErrInvalidInput) {
				t.Fatalf("expected invalid key rejected, got %v", err)
			}
		})
	}
}

func TestFileSnapshotCacheIgnoresForeignSchema(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cache := attendanceout.NewFileSnapshotCache(dir)
	path := filepath.Join(dir, "snapshots", "attendance.snapshot.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"schema_version":99,"employee_id":"42","status":"checked_in"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := cache.Get(context.Background(), "attendance.snapshot"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected foreign schema treated as absent, got %v", err)
	}
}

func TestSQLiteSnapshotCacheSurvivesReopen(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "nested", "punchclock.db")
	cache, err := attendanceout.NewSQLiteSnapshotCache(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	clockIn := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	if err := cache.Set(context.Background(), "k", domain.SnapshotOf(domain.CheckedInRecord("7", clockIn), clockIn)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := attendanceout.NewSQLiteSnapshotCache(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EmployeeID != "7" || !got.ClockInAt.Equal(clockIn) {
		t.Fatalf("unexpected snapshot after reopen: %+v", got)
	}
}
