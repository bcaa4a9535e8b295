package attendance

import (
	"context"
	"strings"
	"testing"
	"time"

	attendancedto "punchclock/internal/modules/attendance/dto"
	apperrors "punchclock/internal/platform/errors"
)

type stubPort struct {
	state attendancedto.StateOutput
	err   error
}

func (s stubPort) CheckIn(context.Context) (attendancedto.StateOutput, error)  { return s.state, s.err }
func (s stubPort) CheckOut(context.Context) (attendancedto.StateOutput, error) { return s.state, s.err }

func TestViewRendersClockInInDisplayZone(t *testing.T) {
	t.Parallel()
	karachi := time.FixedZone("PKT", 5*3600)
	m := New(stubPort{}, nil, karachi)
	m, _ = m.Update(StateMsg{State: attendancedto.StateOutput{
		Status:    "checked_in",
		CheckedIn: true,
		ClockInAt: time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC),
		Elapsed:   2*time.Hour + 3*time.Minute + 4*time.Second,
		Phase:     "idle",
	}})

	out := m.View()
	if !strings.Contains(out, "CHECKED IN") {
		t.Fatalf("expected checked in badge, got:\n%s", out)
	}
	if !strings.Contains(out, "09:00:00") {
		t.Fatalf("expected clock in rendered in display zone, got:\n%s", out)
	}
	if !strings.Contains(out, "02:03:04") {
		t.Fatalf("expected elapsed counter, got:\n%s", out)
	}
}

func TestViewShowsTypedFailure(t *testing.T) {
	t.Parallel()
	m := New(stubPort{}, nil, time.UTC)
	state := attendancedto.StateOutput{Status: "checked_out", Phase: "idle", Reason: "location_denied"}
	msg := m.CheckIn()()
	if _, ok := msg.(ActionDoneMsg); !ok {
		t.Fatalf("expected ActionDoneMsg, got %T", msg)
	}
	m, _ = m.Update(ActionDoneMsg{Action: "check-in", State: state, Err: apperrors.ErrLocationDenied})

	out := m.View()
	if !strings.Contains(out, "check-in failed: location permission denied") {
		t.Fatalf("expected typed failure notice, got:\n%s", out)
	}
	if !strings.Contains(out, "CHECKED OUT") {
		t.Fatalf("expected checked out badge, got:\n%s", out)
	}
}

func TestWaitForStateForwardsStream(t *testing.T) {
	t.Parallel()
	states := make(chan attendancedto.StateOutput, 1)
	m := New(stubPort{}, states, time.UTC)
	states <- attendancedto.StateOutput{Status: "checked_out", Phase: "loading"}
	msg := m.waitForState()()
	got, ok := msg.(StateMsg)
	if !ok || got.State.Phase != "loading" {
		t.Fatalf("expected loading state message, got %#v", msg)
	}
	close(states)
	if _, ok := m.waitForState()().(StreamClosedMsg); !ok {
		t.Fatalf("expected stream closed message")
	}
}

func TestActionResultDoesNotOverrideStreamedState(t *testing.T) {
	t.Parallel()
	m := New(stubPort{}, nil, time.UTC)
	clockIn := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m, _ = m.Update(StateMsg{State: attendancedto.StateOutput{
		Status: "checked_in", CheckedIn: true, ClockInAt: clockIn, Elapsed: time.Hour, Phase: "idle",
	}})

	older := attendancedto.StateOutput{Status: "checked_in", CheckedIn: true, ClockInAt: clockIn, Elapsed: 59 * time.Minute, Phase: "idle"}
	m, _ = m.Update(ActionDoneMsg{Action: "check-in", State: older, Err: apperrors.ErrAlreadyCheckedIn})
	out := m.View()
	if !strings.Contains(out, "01:00:00") || strings.Contains(out, "00:59:00") {
		t.Fatalf("expected the streamed elapsed to stay on screen, got:\n%s", out)
	}
	if !strings.Contains(out, "check-in failed: already checked in") {
		t.Fatalf("expected failure notice, got:\n%s", out)
	}

	m, _ = m.Update(ActionDoneMsg{Action: "check-out", Err: apperrors.ErrSessionReset})
	out = m.View()
	if !strings.Contains(out, "CHECKED IN") || !strings.Contains(out, "01:00:00") {
		t.Fatalf("expected a dropped result to leave the panel intact, got:\n%s", out)
	}
	if !strings.Contains(out, "check-out failed") {
		t.Fatalf("expected failure notice for the dropped result, got:\n%s", out)
	}
}
