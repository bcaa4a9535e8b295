package out

import (
	"context"

	"punchclock/internal/modules/location/domain"
	"punchclock/internal/platform/clock"
)

// StaticPermission answers with a decision fixed by configuration.
type StaticPermission struct {
	permission domain.Permission
}

func NewStaticPermission(permission domain.Permission) *StaticPermission {
	return &StaticPermission{permission: permission}
}

func (s *StaticPermission) Check(context.Context) (domain.Permission, error) {
	return s.permission, nil
}

func (s *StaticPermission) Request(context.Context) (domain.Permission, error) {
	if s.permission == domain.PermissionUndetermined {
		return domain.PermissionDenied, nil
	}
	return s.permission, nil
}

// StaticPosition reports configured coordinates stamped with the current
// time, for desktop installs without a positioning device.
type StaticPosition struct {
	latitude  float64
	longitude float64
	clock     clock.Clock
}

func NewStaticPosition(latitude, longitude float64, clk clock.Clock) *StaticPosition {
	return &StaticPosition{latitude: latitude, longitude: longitude, clock: clk}
}

func (s *StaticPosition) CurrentPosition(ctx context.Context) (domain.Reading, error) {
	if err := ctx.Err(); err != nil {
		return domain.Reading{}, err
	}
	return domain.Reading{Latitude: s.latitude, Longitude: s.longitude, CapturedAt: s.clock.Now()}, nil
}
