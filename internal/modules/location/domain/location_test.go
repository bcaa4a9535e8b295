package domain

import (
	"errors"
	"testing"
	"time"

	apperrors "punchclock/internal/platform/errors"
)

func TestParsePermission(t *testing.T) {
	t.Parallel()
	cases := map[string]Permission{
		"granted":      PermissionGranted,
		"denied":       PermissionDenied,
		"undetermined": PermissionUndetermined,
		"":             PermissionUndetermined,
	}
	for raw, want := range cases {
		got, err := ParsePermission(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParsePermission("maybe"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReadingValidate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := (Reading{Latitude: 24.86, Longitude: 67.0, CapturedAt: now}).Validate(); err != nil {
		t.Fatalf("valid reading rejected: %v", err)
	}
	bad := []Reading{
		{Latitude: 91, CapturedAt: now},
		{Longitude: -181, CapturedAt: now},
		{Latitude: 1, Longitude: 1},
	}
	for _, r := range bad {
		if err := r.Validate(); !errors.Is(err, apperrors.ErrLocationUnavailable) {
			t.Fatalf("expected location unavailable for %+v, got %v", r, err)
		}
	}
}
