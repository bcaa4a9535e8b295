// Package devserver is an in-memory stand-in for the HR attendance API,
// used by integration tests and the devserver command.
package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ServerLayout is the timestamp layout the HR API emits, in its local zone.
const ServerLayout = "2006-01-02 15:04:05"

type Options struct {
	// Tokens lists accepted bearer tokens. Empty accepts any non-empty token.
	Tokens   []string
	Location *time.Location
	Now      func() time.Time
	Logger   *zap.Logger
	// OmitRejectTimestamp drops clock_in_time from the 400 check-in answer.
	OmitRejectTimestamp bool
}

type session struct {
	checkedIn bool
	clockIn   time.Time
	clockOut  time.Time
}

type Server struct {
	opts   Options
	tokens map[string]struct{}
	log    *zap.Logger

	mu         sync.Mutex
	sessions   map[string]session
	faultCode  int
	faultCount int
	delay      time.Duration
	requests   int
}

func New(opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tokens := make(map[string]struct{}, len(opts.Tokens))
	for _, token := range opts.Tokens {
		tokens[token] = struct{}{}
	}
	return &Server{
		opts:     opts,
		tokens:   tokens,
		log:      log.Named("devserver"),
		sessions: map[string]session{},
	}
}

func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.requestID, s.faults, s.auth)
	api := router.PathPrefix("/api/attendance").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet).Queries("employee_id", "{employee_id}")
	api.HandleFunc("/checkin", s.handleCheckIn).Methods(http.MethodPost)
	api.HandleFunc("/checkout", s.handleCheckOut).Methods(http.MethodPost)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "not found"})
	})
	return router
}

// Seed opens a session as if the employee had checked in at clockIn.
func (s *Server) Seed(employeeID string, clockIn time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[employeeID] = session{checkedIn: true, clockIn: clockIn}
}

// Fail answers the next count requests with status code.
func (s *Server) Fail(code, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultCode = code
	s.faultCount = count
}

// Delay holds every following request for d before answering.
func (s *Server) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		s.log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("request_id", id))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) faults(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		delay := s.delay
		code := 0
		if s.faultCount > 0 {
			s.faultCount--
			code = s.faultCode
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if code != 0 {
			writeJSON(w, code, map[string]any{"message": http.StatusText(code)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "missing bearer token"})
			return
		}
		if len(s.tokens) > 0 {
			if _, known := s.tokens[token]; !known {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid token"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	employeeID := mux.Vars(r)["employee_id"]
	if employeeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "employee_id is required"})
		return
	}
	s.mu.Lock()
	current := s.sessions[employeeID]
	s.mu.Unlock()

	body := map[string]any{"checked_in": current.checkedIn, "attendance": nil}
	if current.checkedIn {
		body["attendance"] = map[string]any{"clock_in_time": s.format(current.clockIn)}
	}
	writeJSON(w, http.StatusOK, body)
}

type checkInRequest struct {
	EmployeeID string   `json:"employee_id"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	req := checkInRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EmployeeID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "employee_id is required"})
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "location is required"})
		return
	}

	s.mu.Lock()
	current := s.sessions[req.EmployeeID]
	if current.checkedIn {
		s.mu.Unlock()
		body := map[string]any{"message": "Already checked in"}
		if !s.opts.OmitRejectTimestamp {
			body["attendance"] = map[string]any{"clock_in_time": s.format(current.clockIn)}
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	}
	clockIn := s.opts.Now().Truncate(time.Second)
	s.sessions[req.EmployeeID] = session{checkedIn: true, clockIn: clockIn}
	s.mu.Unlock()

	s.log.Info("check in", zap.String("employee_id", req.EmployeeID), zap.Float64("latitude", *req.Latitude), zap.Float64("longitude", *req.Longitude))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Check-in successful",
		"attendance": map[string]any{"clock_in_time": s.format(clockIn)},
	})
}

type checkOutRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	req := checkOutRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EmployeeID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "employee_id is required"})
		return
	}

	s.mu.Lock()
	current := s.sessions[req.EmployeeID]
	if !current.checkedIn {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Not checked in"})
		return
	}
	current.checkedIn = false
	current.clockOut = s.opts.Now().Truncate(time.Second)
	s.sessions[req.EmployeeID] = current
	s.mu.Unlock()

	s.log.Info("check out", zap.String("employee_id", req.EmployeeID))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Check-out successful",
		"attendance": map[string]any{
			"clock_in_time":  s.format(current.clockIn),
			"clock_out_time": s.format(current.clockOut),
		},
	})
}

func (s *Server) format(t time.Time) string {
	return t.In(s.opts.Location).Format(ServerLayout)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
