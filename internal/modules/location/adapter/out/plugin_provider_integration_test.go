package out_test

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	locationout "punchclock/internal/modules/location/adapter/out"
	"punchclock/internal/modules/location/domain"
	"punchclock/internal/modules/location/service"
	apperrors "punchclock/internal/platform/errors"
)

func TestPluginProviderIntegrationFixedLocation(t *testing.T) {
	binPath := buildFixedLocationPlugin(t)
	t.Setenv("FIXEDLOCATION_LATITUDE", "31.5204")
	t.Setenv("FIXEDLOCATION_LONGITUDE", "74.3587")

	provider := locationout.NewPluginProvider(binPath, nil)
	defer provider.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	permission, err := provider.Check(ctx)
	if err != nil {
		t.Fatalf("check permission: %v", err)
	}
	if permission != domain.PermissionGranted {
		t.Fatalf("expected granted, got %s", permission)
	}
	reading, err := service.NewGateService(provider, provider, 5*time.Second).Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if reading.Latitude != 31.5204 || reading.Longitude != 74.3587 {
		t.Fatalf("unexpected reading %+v", reading)
	}
	if reading.CapturedAt.IsZero() {
		t.Fatalf("expected capture time")
	}
}

func TestPluginProviderIntegrationDeniedAfterRequest(t *testing.T) {
	binPath := buildFixedLocationPlugin(t)
	t.Setenv("FIXEDLOCATION_PERMISSION", "undetermined")
	t.Setenv("FIXEDLOCATION_ANSWER", "denied")

	provider := locationout.NewPluginProvider(binPath, nil)
	defer provider.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := service.NewGateService(provider, provider, 5*time.Second).Acquire(ctx)
	if !errors.Is(err, apperrors.ErrLocationDenied) {
		t.Fatalf("expected location denied, got %v", err)
	}
	if permission, _ := provider.Check(ctx); permission != domain.PermissionDenied {
		t.Fatalf("expected denial remembered by the plugin, got %s", permission)
	}
}

func TestPluginProviderIntegrationTimeout(t *testing.T) {
	binPath := buildFixedLocationPlugin(t)
	t.Setenv("FIXEDLOCATION_DELAY", "5s")

	provider := locationout.NewPluginProvider(binPath, nil)
	defer provider.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := service.NewGateService(provider, provider, 200*time.Millisecond).Acquire(ctx)
	if !errors.Is(err, apperrors.ErrLocationUnavailable) {
		t.Fatalf("expected location unavailable, got %v", err)
	}
}

func TestPluginProviderMissingBinary(t *testing.T) {
	provider := locationout.NewPluginProvider(filepath.Join(t.TempDir(), "missing"), nil)
	defer provider.Close()
	if _, err := provider.CurrentPosition(context.Background()); !errors.Is(err, apperrors.ErrLocationUnavailable) {
		t.Fatalf("expected location unavailable, got %v", err)
	}
}

func buildFixedLocationPlugin(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "fixedlocation")
	cmd := exec.Command("go", "build", "-o", binPath, "./plugins/fixedlocation")
	cmd.Dir = repositoryRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build fixedlocation plugin: %v\n%s", err, string(out))
	}
	return binPath
}

func repositoryRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "../../../../../"))
}
