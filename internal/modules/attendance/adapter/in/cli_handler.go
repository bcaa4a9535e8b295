package in

import (
	"context"

	attendancedto "punchclock/internal/modules/attendance/dto"
	attendancein "punchclock/internal/modules/attendance/port/in"
)

type CLIHandler struct {
	usecase attendancein.Usecase
}

func NewCLIHandler(usecase attendancein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Initialize(ctx context.Context, employeeID, accessToken string) (attendancedto.StateOutput, error) {
	return h.usecase.Initialize(ctx, attendancedto.InitializeInput{EmployeeID: employeeID, AccessToken: accessToken})
}

func (h CLIHandler) CheckIn(ctx context.Context) (attendancedto.StateOutput, error) {
	return h.usecase.RequestCheckIn(ctx)
}

func (h CLIHandler) CheckOut(ctx context.Context) (attendancedto.StateOutput, error) {
	return h.usecase.RequestCheckOut(ctx)
}

func (h CLIHandler) Logout(ctx context.Context) error {
	return h.usecase.Logout(ctx)
}

func (h CLIHandler) State() attendancedto.StateOutput {
	return h.usecase.State()
}

func (h CLIHandler) Watch() (<-chan attendancedto.StateOutput, func()) {
	return h.usecase.Subscribe()
}

func (h CLIHandler) Close() {
	h.usecase.Close()
}
