package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"punchclock/internal/modules/location/domain"
	locationout "punchclock/internal/modules/location/port/out"
	apperrors "punchclock/internal/platform/errors"
)

const DefaultTimeout = 15 * time.Second

type GateService struct {
	permissions locationout.PermissionSource
	positions   locationout.PositionSource
	timeout     time.Duration
}

func NewGateService(permissions locationout.PermissionSource, positions locationout.PositionSource, timeout time.Duration) *GateService {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GateService{permissions: permissions, positions: positions, timeout: timeout}
}

// Acquire asks for permission at most once and never returns a previous
// reading.
func (s *GateService) Acquire(ctx context.Context) (domain.Reading, error) {
	permission, err := s.permissions.Check(ctx)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("%w: check permission: %v", apperrors.ErrLocationDenied, err)
	}
	if permission != domain.PermissionGranted {
		permission, err = s.permissions.Request(ctx)
		if err != nil {
			return domain.Reading{}, fmt.Errorf("%w: request permission: %v", apperrors.ErrLocationDenied, err)
		}
		if permission != domain.PermissionGranted {
			return domain.Reading{}, apperrors.ErrLocationDenied
		}
	}

	posCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reading, err := s.positions.CurrentPosition(posCtx)
	if err != nil {
		if errors.Is(err, apperrors.ErrLocationUnavailable) {
			return domain.Reading{}, err
		}
		if posCtx.Err() == context.DeadlineExceeded {
			return domain.Reading{}, fmt.Errorf("%w: no fix within %s", apperrors.ErrLocationUnavailable, s.timeout)
		}
		return domain.Reading{}, fmt.Errorf("%w: %v", apperrors.ErrLocationUnavailable, err)
	}
	if err := reading.Validate(); err != nil {
		return domain.Reading{}, err
	}
	return reading, nil
}
