package domain

import (
	"errors"
	"fmt"
	"time"

	apperrors "punchclock/internal/platform/errors"
)

const SchemaVersion = 1

type Status string

const (
	StatusCheckedOut Status = "checked_out"
	StatusCheckedIn  Status = "checked_in"
)

type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseLoading          Phase = "loading"
	PhaseAwaitingLocation Phase = "awaiting_location"
	PhaseSubmitting       Phase = "submitting"
	PhaseError            Phase = "error"
)

// Busy reports whether a transition is already underway.
func (p Phase) Busy() bool {
	return p == PhaseLoading || p == PhaseAwaitingLocation || p == PhaseSubmitting
}

// Credential is supplied by the authentication collaborator.
type Credential struct {
	EmployeeID  string
	AccessToken string
}

func (c Credential) Validate() error {
	if c.EmployeeID == "" {
		return fmt.Errorf("%w: employee id is required", apperrors.ErrInvalidInput)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", apperrors.ErrInvalidInput)
	}
	return nil
}

// SessionRecord is the authoritative view of an attendance session. Zero
// timestamps mean absent.
type SessionRecord struct {
	EmployeeID string
	ClockInAt  time.Time
	ClockOutAt time.Time
	Status     Status
}

func CheckedOutRecord(employeeID string) SessionRecord {
	return SessionRecord{EmployeeID: employeeID, Status: StatusCheckedOut}
}

func CheckedInRecord(employeeID string, clockInAt time.Time) SessionRecord {
	return SessionRecord{EmployeeID: employeeID, ClockInAt: clockInAt, Status: StatusCheckedIn}
}

// Validate enforces CheckedIn <=> clock-in set and clock-out absent.
func (r SessionRecord) Validate() error {
	if r.EmployeeID == "" {
		return fmt.Errorf("%w: session record without employee id", apperrors.ErrInvalidInput)
	}
	active := !r.ClockInAt.IsZero() && r.ClockOutAt.IsZero()
	switch r.Status {
	case StatusCheckedIn:
		if !active {
			return fmt.Errorf("%w: checked-in record needs clock-in and no clock-out", apperrors.ErrInvalidInput)
		}
	case StatusCheckedOut:
		if active {
			return fmt.Errorf("%w: checked-out record with an open clock-in", apperrors.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, r.Status)
	}
	return nil
}

// CachedSnapshot is the persisted projection of a SessionRecord. It only ever
// bootstraps rendering; any remote answer replaces it.
type CachedSnapshot struct {
	SchemaVersion int       `json:"schema_version"`
	EmployeeID    string    `json:"employee_id"`
	Status        Status    `json:"status"`
	ClockInAt     time.Time `json:"clock_in_at"`
	WrittenAt     time.Time `json:"written_at"`
}

func SnapshotOf(r SessionRecord, writtenAt time.Time) CachedSnapshot {
	snap := CachedSnapshot{
		SchemaVersion: SchemaVersion,
		EmployeeID:    r.EmployeeID,
		Status:        r.Status,
		WrittenAt:     writtenAt,
	}
	if r.Status == StatusCheckedIn {
		snap.ClockInAt = r.ClockInAt
	}
	return snap
}

// Record rebuilds a session record, degrading inconsistent snapshots to checked out.
func (s CachedSnapshot) Record() SessionRecord {
	if s.Status == StatusCheckedIn && !s.ClockInAt.IsZero() {
		return CheckedInRecord(s.EmployeeID, s.ClockInAt)
	}
	return CheckedOutRecord(s.EmployeeID)
}

// LocationReading is acquired fresh for every check-in attempt.
type LocationReading struct {
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

// RemoteStatus is the answer of the status endpoint.
type RemoteStatus struct {
	CheckedIn bool
	ClockInAt time.Time
}

// CheckInReceipt is the answer of the check-in endpoint. AlreadyCheckedIn
// marks a 400 "already checked in" answer; ClockInAt may then be zero.
type CheckInReceipt struct {
	ClockInAt        time.Time
	AlreadyCheckedIn bool
}

// EngineState is what the UI observes.
type EngineState struct {
	Status    Status
	ClockInAt time.Time
	Elapsed   time.Duration
	Phase     Phase
	Reason    Reason
}

type Reason string

const (
	ReasonNone                Reason = ""
	ReasonAlreadyCheckedIn    Reason = "already_checked_in"
	ReasonNotCheckedIn        Reason = "not_checked_in"
	ReasonLocationDenied      Reason = "location_denied"
	ReasonLocationUnavailable Reason = "location_unavailable"
	ReasonRemoteUnavailable   Reason = "remote_unavailable"
	ReasonTransitionInFlight  Reason = "transition_in_flight"
	ReasonInvalidInput        Reason = "invalid_input"
	ReasonCancelled           Reason = "cancelled"
	ReasonInternal            Reason = "internal"
)

// ReasonOf maps an error onto the typed reason surfaced to the UI.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, apperrors.ErrAlreadyCheckedIn):
		return ReasonAlreadyCheckedIn
	case errors.Is(err, apperrors.ErrNotCheckedIn):
		return ReasonNotCheckedIn
	case errors.Is(err, apperrors.ErrLocationDenied):
		return ReasonLocationDenied
	case errors.Is(err, apperrors.ErrLocationUnavailable):
		return ReasonLocationUnavailable
	case errors.Is(err, apperrors.ErrRemoteUnavailable):
		return ReasonRemoteUnavailable
	case errors.Is(err, apperrors.ErrTransitionInFlight):
		return ReasonTransitionInFlight
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrNotInitialized):
		return ReasonInvalidInput
	case errors.Is(err, apperrors.ErrEngineClosed), errors.Is(err, apperrors.ErrSessionReset):
		return ReasonCancelled
	default:
		return ReasonInternal
	}
}

// ElapsedSince returns now-clockIn truncated to whole seconds, never negative.
func ElapsedSince(clockInAt, now time.Time) time.Duration {
	if clockInAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(clockInAt).Truncate(time.Second)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// FormatElapsed renders HH:MM:SS; hours grow past 99 rather than wrapping.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
