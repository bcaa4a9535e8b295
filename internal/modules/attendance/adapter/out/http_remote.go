package out

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"punchclock/internal/modules/attendance/domain"
	attendanceout "punchclock/internal/modules/attendance/port/out"
	apperrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/id"
)

const maxErrorBody = 4 << 10

// serverLayouts are tried after RFC3339; they carry no zone and are read in
// the server's configured location.
var serverLayouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"}

type HTTPRemoteOptions struct {
	BaseURL  string
	Timeout  time.Duration
	Location *time.Location
	Client   *http.Client
	IDs      id.Generator
	Logger   *zap.Logger
}

// HTTPRemoteService speaks the HR attendance API.
type HTTPRemoteService struct {
	base    *url.URL
	timeout time.Duration
	loc     *time.Location
	client  *http.Client
	ids     id.Generator
	log     *zap.Logger
}

var _ attendanceout.RemoteSessionService = (*HTTPRemoteService)(nil)

func NewHTTPRemoteService(opts HTTPRemoteOptions) (*HTTPRemoteService, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid remote base url %q", apperrors.ErrInvalidInput, opts.BaseURL)
	}
	svc := &HTTPRemoteService{
		base:    base,
		timeout: opts.Timeout,
		loc:     opts.Location,
		client:  opts.Client,
		ids:     opts.IDs,
		log:     opts.Logger,
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.client == nil {
		svc.client = &http.Client{}
	}
	if svc.ids == nil {
		svc.ids = id.UUID{}
	}
	if svc.log == nil {
		svc.log = zap.NewNop()
	}
	svc.log = svc.log.Named("remote")
	return svc, nil
}

type attendancePayload struct {
	ClockInTime  string `json:"clock_in_time"`
	ClockOutTime string `json:"clock_out_time"`
}

type statusResponse struct {
	CheckedIn  bool               `json:"checked_in"`
	Attendance *attendancePayload `json:"attendance"`
}

type checkInResponse struct {
	Message    string             `json:"message"`
	Attendance *attendancePayload `json:"attendance"`
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (s *HTTPRemoteService) Status(ctx context.Context, cred domain.Credential) (domain.RemoteStatus, error) {
	query := url.Values{"employee_id": []string{cred.EmployeeID}}
	code, body, err := s.do(ctx, cred, http.MethodGet, "/api/attendance/status?"+query.Encode(), nil)
	if err != nil {
		return domain.RemoteStatus{}, err
	}
	if code < 200 || code > 299 {
		return domain.RemoteStatus{}, statusError("status", code, body)
	}
	payload := statusResponse{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.RemoteStatus{}, fmt.Errorf("%w: decode status: %v", apperrors.ErrRemoteUnavailable, err)
	}
	out := domain.RemoteStatus{CheckedIn: payload.CheckedIn}
	if payload.CheckedIn && payload.Attendance != nil && payload.Attendance.ClockInTime != "" {
		clockIn, err := s.parseTime(payload.Attendance.ClockInTime)
		if err != nil {
			return domain.RemoteStatus{}, err
		}
		out.ClockInAt = clockIn
	}
	return out, nil
}

func (s *HTTPRemoteService) CheckIn(ctx context.Context, cred domain.Credential, reading domain.LocationReading) (domain.CheckInReceipt, error) {
	request := map[string]any{
		"employee_id": cred.EmployeeID,
		"latitude":    reading.Latitude,
		"longitude":   reading.Longitude,
	}
	code, body, err := s.do(ctx, cred, http.MethodPost, "/api/attendance/checkin", request)
	if err != nil {
		return domain.CheckInReceipt{}, err
	}
	switch {
	case code >= 200 && code <= 299:
		receipt := domain.CheckInReceipt{}
		clockIn, err := s.clockInFrom(body)
		if err != nil {
			return domain.CheckInReceipt{}, err
		}
		receipt.ClockInAt = clockIn
		return receipt, nil
	case code == http.StatusBadRequest:
		// The server's answer for an open session; its timestamp is optional.
		receipt := domain.CheckInReceipt{AlreadyCheckedIn: true}
		if clockIn, err := s.clockInFrom(body); err == nil {
			receipt.ClockInAt = clockIn
		}
		return receipt, nil
	default:
		return domain.CheckInReceipt{}, statusError("check in", code, body)
	}
}

func (s *HTTPRemoteService) CheckOut(ctx context.Context, cred domain.Credential) error {
	code, body, err := s.do(ctx, cred, http.MethodPost, "/api/attendance/checkout", map[string]any{"employee_id": cred.EmployeeID})
	if err != nil {
		return err
	}
	if code < 200 || code > 299 {
		return statusError("check out", code, body)
	}
	return nil
}

func (s *HTTPRemoteService) do(ctx context.Context, cred domain.Credential, method, path string, payload any) (int, []byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base.String()+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: build request: %v", apperrors.ErrRemoteUnavailable, err)
	}
	requestID := s.ids.New()
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, fmt.Errorf("%w: %s %s timed out", apperrors.ErrRemoteUnavailable, method, path)
		}
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		return 0, nil, fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read response: %v", apperrors.ErrRemoteUnavailable, err)
	}
	s.log.Debug("remote call",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("took", time.Since(started)),
	)
	return resp.StatusCode, body, nil
}

func (s *HTTPRemoteService) clockInFrom(body []byte) (time.Time, error) {
	payload := checkInResponse{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return time.Time{}, fmt.Errorf("%w: decode check in: %v", apperrors.ErrRemoteUnavailable, err)
	}
	if payload.Attendance == nil || payload.Attendance.ClockInTime == "" {
		return time.Time{}, nil
	}
	return s.parseTime(payload.Attendance.ClockInTime)
}

func (s *HTTPRemoteService) parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range serverLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q", apperrors.ErrRemoteUnavailable, raw)
}

func statusError(op string, code int, body []byte) error {
	msg := messageResponse{}
	_ = json.Unmarshal(body, &msg)
	detail := msg.Message
	if detail == "" {
		detail = msg.Error
	}
	if detail == "" {
		detail = strings.TrimSpace(string(body[:min(len(body), maxErrorBody)]))
	}
	if detail == "" {
		detail = http.StatusText(code)
	}
	return fmt.Errorf("%w: %s: status %d: %s", apperrors.ErrRemoteUnavailable, op, code, detail)
}
