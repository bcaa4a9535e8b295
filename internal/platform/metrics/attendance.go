package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "punchclock/attendance"

// Attendance groups the counters recorded by the attendance engine.
type Attendance struct {
	transitions    metric.Int64Counter
	remoteFailures metric.Int64Counter
	autoCheckouts  metric.Int64Counter
}

// NewAttendance registers the counters on the global meter provider.
func NewAttendance() (*Attendance, error) {
	return NewAttendanceWithMeter(otel.Meter(meterName))
}

func NewAttendanceWithMeter(meter metric.Meter) (*Attendance, error) {
	var err error
	m := &Attendance{}

	m.transitions, err = meter.Int64Counter(
		"attendance_transitions_total",
		metric.WithDescription("Check-in and check-out attempts by outcome"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register transitions counter: %w", err)
	}

	m.remoteFailures, err = meter.Int64Counter(
		"attendance_remote_failures_total",
		metric.WithDescription("Failed calls to the remote session service"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register remote failures counter: %w", err)
	}

	m.autoCheckouts, err = meter.Int64Counter(
		"attendance_auto_checkouts_total",
		metric.WithDescription("Checkouts issued because the session reached its maximum duration"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("register auto checkouts counter: %w", err)
	}
	return m, nil
}

// RecordTransition is safe on a nil receiver so callers may run without metrics.
func (m *Attendance) RecordTransition(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *Attendance) RecordRemoteFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.remoteFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Attendance) RecordAutoCheckout(ctx context.Context) {
	if m == nil {
		return
	}
	m.autoCheckouts.Add(ctx, 1)
}
