package usecase

import (
	"context"

	"go.uber.org/zap"

	"punchclock/internal/modules/location/dto"
	locationin "punchclock/internal/modules/location/port/in"
	"punchclock/internal/modules/location/service"
)

type Interactor struct {
	svc *service.GateService
	log *zap.Logger
}

func NewInteractor(svc *service.GateService, log *zap.Logger) locationin.Usecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &Interactor{svc: svc, log: log.Named("location")}
}

func (i *Interactor) Acquire(ctx context.Context) (dto.ReadingOutput, error) {
	reading, err := i.svc.Acquire(ctx)
	if err != nil {
		i.log.Warn("location not acquired", zap.Error(err))
		return dto.ReadingOutput{}, err
	}
	i.log.Debug("location acquired", zap.Float64("accuracy_m", reading.Accuracy))
	return dto.ReadingOutput{
		Latitude:   reading.Latitude,
		Longitude:  reading.Longitude,
		Accuracy:   reading.Accuracy,
		CapturedAt: reading.CapturedAt,
	}, nil
}
