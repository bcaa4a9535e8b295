package out_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"punchclock/internal/devserver"
	attendanceout "punchclock/internal/modules/attendance/adapter/out"
	"punchclock/internal/modules/attendance/domain"
	apperrors "punchclock/internal/platform/errors"
)

var (
	karachi = time.FixedZone("PKT", 5*3600)
	cred    = domain.Credential{EmployeeID: "42", AccessToken: "secret"}
	reading = domain.LocationReading{Latitude: 24.8607, Longitude: 67.0011}
)

func newRemote(t *testing.T, opts devserver.Options, timeout time.Duration) (*attendanceout.HTTPRemoteService, *devserver.Server) {
	t.Helper()
	if opts.Location == nil {
		opts.Location = karachi
	}
	srv := devserver.New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	remote, err := attendanceout.NewHTTPRemoteService(attendanceout.HTTPRemoteOptions{
		BaseURL:  ts.URL + "/",
		Timeout:  timeout,
		Location: karachi,
		Logger:   zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	return remote, srv
}

func TestHTTPRemoteCheckInCycle(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC)
	remote, _ := newRemote(t, devserver.Options{Tokens: []string{"secret"}, Now: func() time.Time { return now }}, time.Second)
	ctx := context.Background()

	status, err := remote.Status(ctx, cred)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.CheckedIn {
		t.Fatalf("expected checked out, got %+v", status)
	}

	receipt, err := remote.CheckIn(ctx, cred, reading)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if receipt.AlreadyCheckedIn || !receipt.ClockInAt.Equal(now) {
		t.Fatalf("expected clock in %s converted from server zone, got %+v", now, receipt)
	}

	status, err = remote.Status(ctx, cred)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.CheckedIn || !status.ClockInAt.Equal(now) {
		t.Fatalf("expected open session at %s, got %+v", now, status)
	}

	if err := remote.CheckOut(ctx, cred); err != nil {
		t.Fatalf("check out: %v", err)
	}
	if err := remote.CheckOut(ctx, cred); !errors.Is(err, apperrors.ErrRemoteUnavailable) {
		t.Fatalf("expected typed error for second check out, got %v", err)
	}
}

func TestHTTPRemoteAlreadyCheckedIn(t *testing.T) {
	t.Parallel()
	clockIn := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	remote, srv := newRemote(t, devserver.Options{}, time.Second)
	srv.Seed(cred.EmployeeID, clockIn)

	receipt, err := remote.CheckIn(context.Background(), cred, reading)
	if err != nil {
		t.Fatalf("400 must not be an error, got %v", err)
	}
	if !receipt.AlreadyCheckedIn || !receipt.ClockInAt.Equal(clockIn) {
		t.Fatalf("expected already checked in at %s, got %+v", clockIn, receipt)
	}
}

func TestHTTPRemoteAlreadyCheckedInWithoutTimestamp(t *testing.T) {
	t.Parallel()
	remote, srv := newRemote(t, devserver.Options{OmitRejectTimestamp: true}, time.Second)
	srv.Seed(cred.EmployeeID, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC))

	receipt, err := remote.CheckIn(context.Background(), cred, reading)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if !receipt.AlreadyCheckedIn || !receipt.ClockInAt.IsZero() {
		t.Fatalf("expected bare already checked in receipt, got %+v", receipt)
	}
}

func TestHTTPRemoteServerErrors(t *testing.T) {
	t.Parallel()
	remote, srv := newRemote(t, devserver.Options{}, time.Second)
	for _, code := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusUnauthorized} {
		srv.Fail(code, 1)
		if _, err := remote.Status(context.Background(), cred); !errors.Is(err, apperrors.ErrRemoteUnavailable) {
			t.Fatalf("status %d: expected remote unavailable, got %v", code, err)
		}
	}
	srv.Fail(http.StatusServiceUnavailable, 1)
	if _, err := remote.CheckIn(context.Background(), cred, reading); !errors.Is(err, apperrors.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable for 503 check in, got %v", err)
	}
}

func TestHTTPRemoteTimeout(t *testing.T) {
	t.Parallel()
	remote, srv := newRemote(t, devserver.Options{}, 50*time.Millisecond)
	srv.Delay(time.Second)
	if _, err := remote.Status(context.Background(), cred); !errors.Is(err, apperrors.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable on timeout, got %v", err)
	}
}

func TestHTTPRemoteUnauthorizedToken(t *testing.T) {
	t.Parallel()
	remote, _ := newRemote(t, devserver.Options{Tokens: []string{"other"}}, time.Second)
	if _, err := remote.Status(context.Background(), cred); !errors.Is(err, apperrors.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable for rejected token, got %v", err)
	}
}

func TestHTTPRemoteParsesServerTimestamps(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw  string
		want time.Time
	}{
		{raw: "2026-03-02 09:00:00", want: time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)},
		{raw: "2026-03-02T09:00:00", want: time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)},
		{raw: "2026-03-02T09:00:00+05:00", want: time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)},
		{raw: "2026-03-02T04:00:00.250Z", want: time.Date(2026, 3, 2, 4, 0, 0, 250_000_000, time.UTC)},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"checked_in":true,"attendance":{"clock_in_time":"` + tc.raw + `"}}`))
		}))
		remote, err := attendanceout.NewHTTPRemoteService(attendanceout.HTTPRemoteOptions{BaseURL: ts.URL, Location: karachi})
		if err != nil {
			t.Fatalf("new remote: %v", err)
		}
		status, err := remote.Status(context.Background(), cred)
		ts.Close()
		if err != nil {
			t.Fatalf("%s: status: %v", tc.raw, err)
		}
		if !status.ClockInAt.Equal(tc.want) {
			t.Fatalf("%s: expected %s, got %s", tc.raw, tc.want, status.ClockInAt)
		}
	}
}

func TestHTTPRemoteRejectsGarbageTimestamp(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"checked_in":true,"attendance":{"clock_in_time":"yesterday"}}`))
	}))
	defer ts.Close()
	remote, err := attendanceout.NewHTTPRemoteService(attendanceout.HTTPRemoteOptions{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	if _, err := remote.Status(context.Background(), cred); !errors.Is(err, apperrors.ErrRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
}

func TestHTTPRemoteSendsHeaders(t *testing.T) {
	t.Parallel()
	seen := make(chan *http.Request, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(context.Background())
		_, _ = w.Write([]byte(`{"checked_in":false,"attendance":null}`))
	}))
	defer ts.Close()
	remote, err := attendanceout.NewHTTPRemoteService(attendanceout.HTTPRemoteOptions{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	if _, err := remote.Status(context.Background(), cred); err != nil {
		t.Fatalf("status: %v", err)
	}
	r := <-seen
	if got := r.Header.Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", got)
	}
	if r.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
	if r.URL.Query().Get("employee_id") != "42" {
		t.Fatalf("expected employee_id query, got %q", r.URL.RawQuery)
	}
}

func TestNewHTTPRemoteServiceRejectsBadURL(t *testing.T) {
	t.Parallel()
	if _, err := attendanceout.NewHTTPRemoteService(attendanceout.HTTPRemoteOptions{BaseURL: "not a url"}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
