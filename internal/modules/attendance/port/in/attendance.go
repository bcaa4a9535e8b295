package in

import (
	"context"

	"punchclock/internal/modules/attendance/dto"
)

type Usecase interface {
	Initialize(ctx context.Context, input dto.InitializeInput) (dto.StateOutput, error)
	RequestCheckIn(ctx context.Context) (dto.StateOutput, error)
	RequestCheckOut(ctx context.Context) (dto.StateOutput, error)
	Logout(ctx context.Context) error
	State() dto.StateOutput
	Subscribe() (<-chan dto.StateOutput, func())
	Close()
}
