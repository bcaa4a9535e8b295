package out

import (
	"context"

	"punchclock/internal/modules/location/domain"
)

type PermissionSource interface {
	Check(ctx context.Context) (domain.Permission, error)
	// Request asks the user once and returns the resulting decision.
	Request(ctx context.Context) (domain.Permission, error)
}

type PositionSource interface {
	CurrentPosition(ctx context.Context) (domain.Reading, error)
}
