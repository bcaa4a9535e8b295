package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, method, url, token, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp.StatusCode, payload
}

func TestAttendanceFlow(t *testing.T) {
	t.Parallel()
	karachi := time.FixedZone("PKT", 5*3600)
	now := time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
	_, ts := newTestServer(t, Options{Location: karachi, Now: func() time.Time { return now }})

	code, body := do(t, http.MethodGet, ts.URL+"/api/attendance/status?employee_id=42", "tok", "")
	if code != http.StatusOK || body["checked_in"] != false {
		t.Fatalf("expected checked out status, got %d %v", code, body)
	}

	code, body = do(t, http.MethodPost, ts.URL+"/api/attendance/checkin", "tok", `{"employee_id":"42","latitude":24.86,"longitude":67.0}`)
	if code != http.StatusOK || body["message"] != "Check-in successful" {
		t.Fatalf("expected check in success, got %d %v", code, body)
	}
	attendance := body["attendance"].(map[string]any)
	if attendance["clock_in_time"] != "2026-03-02 09:00:00" {
		t.Fatalf("expected server local clock in, got %v", attendance["clock_in_time"])
	}

	code, _ = do(t, http.MethodPost, ts.URL+"/api/attendance/checkin", "tok", `{"employee_id":"42","latitude":24.86,"longitude":67.0}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for second check in, got %d", code)
	}

	code, body = do(t, http.MethodGet, ts.URL+"/api/attendance/status?employee_id=42", "tok", "")
	if code != http.StatusOK || body["checked_in"] != true {
		t.Fatalf("expected checked in status, got %d %v", code, body)
	}

	code, _ = do(t, http.MethodPost, ts.URL+"/api/attendance/checkout", "tok", `{"employee_id":"42"}`)
	if code != http.StatusOK {
		t.Fatalf("expected checkout success, got %d", code)
	}
	code, _ = do(t, http.MethodPost, ts.URL+"/api/attendance/checkout", "tok", `{"employee_id":"42"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for second checkout, got %d", code)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Options{Tokens: []string{"good"}})
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/attendance/status?employee_id=1", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/attendance/status?employee_id=1", "bad", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", code)
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/attendance/status?employee_id=1", "good", ""); code != http.StatusOK {
		t.Fatalf("expected 200 for known token, got %d", code)
	}
}

func TestCheckInRequiresLocation(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, Options{})
	if code, _ := do(t, http.MethodPost, ts.URL+"/api/attendance/checkin", "tok", `{"employee_id":"42"}`); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without coordinates, got %d", code)
	}
}

func TestFaultInjection(t *testing.T) {
	t.Parallel()
	srv, ts := newTestServer(t, Options{})
	srv.Fail(http.StatusServiceUnavailable, 1)
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/attendance/status?employee_id=1", "tok", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("expected injected 503, got %d", code)
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/attendance/status?employee_id=1", "tok", ""); code != http.StatusOK {
		t.Fatalf("expected recovery after fault, got %d", code)
	}
	if srv.Requests() != 2 {
		t.Fatalf("expected 2 requests counted, got %d", srv.Requests())
	}
}
