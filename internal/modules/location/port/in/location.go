package in

import (
	"context"

	"punchclock/internal/modules/location/dto"
)

type Usecase interface {
	// Acquire returns a fresh reading or fails with ErrLocationDenied or
	// ErrLocationUnavailable.
	Acquire(ctx context.Context) (dto.ReadingOutput, error)
}
