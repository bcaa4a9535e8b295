package out

import (
	"context"

	"punchclock/internal/modules/attendance/domain"
	attendanceout "punchclock/internal/modules/attendance/port/out"
	locationin "punchclock/internal/modules/location/port/in"
)

type LocationGateAdapter struct {
	location locationin.Usecase
}

func NewLocationGateAdapter(location locationin.Usecase) attendanceout.LocationGate {
	return &LocationGateAdapter{location: location}
}

func (a *LocationGateAdapter) Acquire(ctx context.Context) (domain.LocationReading, error) {
	reading, err := a.location.Acquire(ctx)
	if err != nil {
		return domain.LocationReading{}, err
	}
	return domain.LocationReading{
		Latitude:   reading.Latitude,
		Longitude:  reading.Longitude,
		CapturedAt: reading.CapturedAt,
	}, nil
}
