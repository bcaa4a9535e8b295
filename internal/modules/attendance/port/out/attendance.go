package out

import (
	"context"

	"punchclock/internal/modules/attendance/domain"
)

// RemoteSessionService is the authoritative HR attendance API. Failures are
// reported wrapped in apperrors.ErrRemoteUnavailable.
type RemoteSessionService interface {
	Status(ctx context.Context, cred domain.Credential) (domain.RemoteStatus, error)
	CheckIn(ctx context.Context, cred domain.Credential, reading domain.LocationReading) (domain.CheckInReceipt, error)
	CheckOut(ctx context.Context, cred domain.Credential) error
}

// SnapshotCache persists the last known session per installation. Get
// returns apperrors.ErrNotFound when nothing is stored under key.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (domain.CachedSnapshot, error)
	Set(ctx context.Context, key string, snapshot domain.CachedSnapshot) error
	Clear(ctx context.Context, key string) error
}

// LocationGate produces one fresh reading per call or fails with
// apperrors.ErrLocationDenied / apperrors.ErrLocationUnavailable.
type LocationGate interface {
	Acquire(ctx context.Context) (domain.LocationReading, error)
}
