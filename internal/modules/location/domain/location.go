package domain

import (
	"fmt"
	"time"

	apperrors "punchclock/internal/platform/errors"
)

type Permission string

const (
	PermissionUndetermined Permission = "undetermined"
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
)

func ParsePermission(raw string) (Permission, error) {
	switch Permission(raw) {
	case PermissionGranted, PermissionDenied, PermissionUndetermined:
		return Permission(raw), nil
	case "":
		return PermissionUndetermined, nil
	default:
		return "", fmt.Errorf("%w: unknown permission %q", apperrors.ErrInvalidInput, raw)
	}
}

// Reading is a single device position. Accuracy is in meters; zero means
// unknown.
type Reading struct {
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	CapturedAt time.Time
}

func (r Reading) Validate() error {
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", apperrors.ErrLocationUnavailable, r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", apperrors.ErrLocationUnavailable, r.Longitude)
	}
	if r.CapturedAt.IsZero() {
		return fmt.Errorf("%w: reading without capture time", apperrors.ErrLocationUnavailable)
	}
	return nil
}
