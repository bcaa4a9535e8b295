package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"punchclock/internal/modules/attendance/domain"
	attendancedto "punchclock/internal/modules/attendance/dto"
	attendancein "punchclock/internal/modules/attendance/port/in"
	attendanceout "punchclock/internal/modules/attendance/port/out"
	"punchclock/internal/modules/attendance/service"
	"punchclock/internal/platform/clock"
	apperrors "punchclock/internal/platform/errors"
	"punchclock/internal/platform/metrics"
)

const (
	kindCheckIn  = "checkin"
	kindCheckOut = "checkout"
	kindAuto     = "auto_checkout"
)

type Deps struct {
	Remote   attendanceout.RemoteSessionService
	Cache    attendanceout.SnapshotCache
	Gate     attendanceout.LocationGate
	Clock    clock.Clock
	Ticker   *service.ElapsedTicker
	Logger   *zap.Logger
	Metrics  *metrics.Attendance
	CacheKey string
}

// Engine owns the in-memory session record and the state observed by the
// UI. Its mutex is never held across a remote, gate or cache call; results
// of calls that outlive a Logout or Close are dropped via the epoch counter.
type Engine struct {
	remote   attendanceout.RemoteSessionService
	cache    attendanceout.SnapshotCache
	gate     attendanceout.LocationGate
	clock    clock.Clock
	ticker   *service.ElapsedTicker
	log      *zap.Logger
	metrics  *metrics.Attendance
	cacheKey string

	ctx    context.Context
	cancel context.CancelFunc

	// serializes snapshot writes against Logout's clear
	cacheMu sync.Mutex

	mu      sync.Mutex
	cred    domain.Credential
	record  domain.SessionRecord
	state   domain.EngineState
	epoch   uint64
	tickGen uint64
	// clock-in the current ticker run measures from
	tickClockIn time.Time
	closed      bool
	subs        map[int]chan attendancedto.StateOutput
	nextSub     int
}

var _ attendancein.Usecase = (*Engine)(nil)

func NewEngine(deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		remote:   deps.Remote,
		cache:    deps.Cache,
		gate:     deps.Gate,
		clock:    deps.Clock,
		ticker:   deps.Ticker,
		log:      log.Named("engine"),
		metrics:  deps.Metrics,
		cacheKey: deps.CacheKey,
		ctx:      ctx,
		cancel:   cancel,
		state:    domain.EngineState{Status: domain.StatusCheckedOut, Phase: domain.PhaseIdle},
		subs:     map[int]chan attendancedto.StateOutput{},
	}
}

// Initialize renders the cached snapshot first, then lets the remote status
// override it. A remote failure keeps the cached status and is reported only
// through the state's phase and reason.
func (e *Engine) Initialize(ctx context.Context, input attendancedto.InitializeInput) (attendancedto.StateOutput, error) {
	cred := domain.Credential{EmployeeID: input.EmployeeID, AccessToken: input.AccessToken}
	if err := cred.Validate(); err != nil {
		return e.State(), err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return attendancedto.StateOutput{}, apperrors.ErrEngineClosed
	}
	if e.state.Phase.Busy() {
		out := e.outputLocked()
		e.mu.Unlock()
		return out, apperrors.ErrTransitionInFlight
	}
	// A refresh for the same employee keeps the live session and its ticker
	// as the hint until the server answers.
	resume := e.cred.EmployeeID == cred.EmployeeID && e.record.EmployeeID == cred.EmployeeID
	e.cred = cred
	if resume {
		e.state.Phase = domain.PhaseLoading
		e.state.Reason = domain.ReasonNone
	} else {
		e.stopTickerLocked()
		e.record = domain.CheckedOutRecord(cred.EmployeeID)
		e.state = domain.EngineState{Status: domain.StatusCheckedOut, Phase: domain.PhaseLoading}
	}
	epoch := e.epoch
	e.publishLocked()
	e.mu.Unlock()

	opCtx, done := e.opContext(ctx)
	defer done()

	if cached, ok := e.loadSnapshot(opCtx, cred.EmployeeID); ok && !resume {
		e.mu.Lock()
		if err := e.staleLocked(epoch); err != nil {
			e.mu.Unlock()
			return attendancedto.StateOutput{}, err
		}
		e.record = cached.Record()
		e.state = e.stateFor(e.record, domain.PhaseLoading)
		e.publishLocked()
		e.mu.Unlock()
	}

	remote, err := e.remote.Status(opCtx, cred)
	var record domain.SessionRecord
	if err == nil {
		record, err = recordFromRemote(cred.EmployeeID, remote)
	}

	e.mu.Lock()
	if staleErr := e.staleLocked(epoch); staleErr != nil {
		e.mu.Unlock()
		return attendancedto.StateOutput{}, staleErr
	}
	if err != nil {
		err = asRemoteError(err)
		e.metrics.RecordRemoteFailure(opCtx, "status")
		e.log.Warn("status query failed, keeping cached session", zap.String("employee_id", cred.EmployeeID), zap.Error(err))
		if e.record.Status == domain.StatusCheckedIn {
			e.ensureTickerLocked(e.record.ClockInAt)
		}
		e.state.Phase = domain.PhaseError
		e.state.Reason = domain.ReasonOf(err)
		e.publishLocked()
		out := e.outputLocked()
		e.mu.Unlock()
		return out, nil
	}
	snapshot := e.commitLocked(record)
	out := e.outputLocked()
	e.mu.Unlock()

	e.persist(opCtx, epoch, snapshot)
	e.log.Info("session resolved", zap.String("employee_id", cred.EmployeeID), zap.String("status", string(record.Status)))
	return out, nil
}

func (e *Engine) RequestCheckIn(ctx context.Context) (attendancedto.StateOutput, error) {
	e.mu.Lock()
	cred, epoch, err := e.beginLocked()
	if err != nil {
		out := e.outputLocked()
		e.mu.Unlock()
		return out, err
	}
	if e.state.Status == domain.StatusCheckedIn {
		e.state.Reason = domain.ReasonAlreadyCheckedIn
		e.publishLocked()
		out := e.outputLocked()
		e.mu.Unlock()
		e.metrics.RecordTransition(ctx, kindCheckIn, string(domain.ReasonAlreadyCheckedIn))
		return out, apperrors.ErrAlreadyCheckedIn
	}
	e.state.Phase = domain.PhaseAwaitingLocation
	e.state.Reason = domain.ReasonNone
	e.publishLocked()
	e.mu.Unlock()

	opCtx, done := e.opContext(ctx)
	defer done()

	reading, err := e.gate.Acquire(opCtx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrLocationDenied) && !errors.Is(err, apperrors.ErrLocationUnavailable) {
			err = fmt.Errorf("%w: %v", apperrors.ErrLocationUnavailable, err)
		}
		return e.abort(opCtx, epoch, kindCheckIn, domain.PhaseIdle, err)
	}

	e.mu.Lock()
	if staleErr := e.staleLocked(epoch); staleErr != nil {
		e.mu.Unlock()
		return attendancedto.StateOutput{}, staleErr
	}
	e.state.Phase = domain.PhaseSubmitting
	e.publishLocked()
	e.mu.Unlock()

	clockInAt, err := e.submitCheckIn(opCtx, cred, reading)
	if err != nil {
		e.metrics.RecordRemoteFailure(opCtx, kindCheckIn)
		return e.abort(opCtx, epoch, kindCheckIn, domain.PhaseError, asRemoteError(err))
	}

	e.mu.Lock()
	if staleErr := e.staleLocked(epoch); staleErr != nil {
		e.mu.Unlock()
		return attendancedto.StateOutput{}, staleErr
	}
	snapshot := e.commitLocked(domain.CheckedInRecord(cred.EmployeeID, clockInAt))
	out := e.outputLocked()
	e.mu.Unlock()

	e.persist(opCtx, epoch, snapshot)
	e.metrics.RecordTransition(opCtx, kindCheckIn, "ok")
	e.log.Info("checked in", zap.String("employee_id", cred.EmployeeID), zap.Time("clock_in_at", clockInAt),
		zap.Float64("latitude", reading.Latitude), zap.Float64("longitude", reading.Longitude))
	return out, nil
}

// submitCheckIn resolves the clock-in instant confirmed by the server. A 400
// "already checked in" without a timestamp costs one status query.
func (e *Engine) submitCheckIn(ctx context.Context, cred domain.Credential, reading domain.LocationReading) (time.Time, error) {
	receipt, err := e.remote.CheckIn(ctx, cred, reading)
	if err != nil {
		return time.Time{}, err
	}
	if !receipt.ClockInAt.IsZero() {
		if receipt.AlreadyCheckedIn {
			e.log.Info("server reports an open session, reconciling", zap.String("employee_id", cred.EmployeeID))
		}
		return receipt.ClockInAt, nil
	}
	if !receipt.AlreadyCheckedIn {
		return time.Time{}, fmt.Errorf("%w: check-in accepted without clock-in time", apperrors.ErrRemoteUnavailable)
	}
	status, err := e.remote.Status(ctx, cred)
	if err != nil {
		return time.Time{}, err
	}
	if !status.CheckedIn || status.ClockInAt.IsZero() {
		return time.Time{}, fmt.Errorf("%w: server rejected check-in but reports no open session", apperrors.ErrRemoteUnavailable)
	}
	e.log.Info("server reports an open session, reconciling", zap.String("employee_id", cred.EmployeeID))
	return status.ClockInAt, nil
}

func (e *Engine) RequestCheckOut(ctx context.Context) (attendancedto.StateOutput, error) {
	return e.checkOut(ctx, kindCheckOut)
}

// onMaxDurationExceeded runs on the ticker goroutine once the session
// reaches its ceiling. It never consults the location gate.
func (e *Engine) onMaxDurationExceeded(gen uint64) {
	e.mu.Lock()
	current := !e.closed && gen == e.tickGen && e.state.Status == domain.StatusCheckedIn
	e.mu.Unlock()
	if !current {
		return
	}
	e.metrics.RecordAutoCheckout(e.ctx)
	e.log.Info("maximum session duration reached, checking out", zap.Duration("ceiling", e.ticker.Ceiling()))
	if _, err := e.checkOut(e.ctx, kindAuto); err != nil {
		e.log.Warn("automatic checkout failed", zap.Error(err))
	}
}

func (e *Engine) checkOut(ctx context.Context, kind string) (attendancedto.StateOutput, error) {
	e.mu.Lock()
	cred, epoch, err := e.beginLocked()
	if err != nil {
		out := e.outputLocked()
		e.mu.Unlock()
		return out, err
	}
	if e.state.Status != domain.StatusCheckedIn {
		e.state.Reason = domain.ReasonNotCheckedIn
		e.publishLocked()
		out := e.outputLocked()
		e.mu.Unlock()
		e.metrics.RecordTransition(ctx, kind, string(domain.ReasonNotCheckedIn))
		return out, apperrors.ErrNotCheckedIn
	}
	clockInAt := e.record.ClockInAt
	e.state.Phase = domain.PhaseSubmitting
	e.state.Reason = domain.ReasonNone
	e.publishLocked()
	e.mu.Unlock()

	opCtx, done := e.opContext(ctx)
	defer done()

	if err := e.remote.CheckOut(opCtx, cred); err != nil {
		e.metrics.RecordRemoteFailure(opCtx, kindCheckOut)
		return e.abort(opCtx, epoch, kind, domain.PhaseError, asRemoteError(err))
	}

	e.mu.Lock()
	if staleErr := e.staleLocked(epoch); staleErr != nil {
		e.mu.Unlock()
		return attendancedto.StateOutput{}, staleErr
	}
	snapshot := e.commitLocked(domain.SessionRecord{
		EmployeeID: cred.EmployeeID,
		ClockInAt:  clockInAt,
		ClockOutAt: e.clock.Now(),
		Status:     domain.StatusCheckedOut,
	})
	out := e.outputLocked()
	e.mu.Unlock()

	e.persist(opCtx, epoch, snapshot)
	e.metrics.RecordTransition(opCtx, kind, "ok")
	e.log.Info("checked out", zap.String("employee_id", cred.EmployeeID), zap.String("trigger", kind))
	return out, nil
}

// Logout forgets the session and clears the cached snapshot so the next
// account starts clean.
func (e *Engine) Logout(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return apperrors.ErrEngineClosed
	}
	e.epoch++
	e.stopTickerLocked()
	e.cred = domain.Credential{}
	e.record = domain.SessionRecord{}
	e.state = domain.EngineState{Status: domain.StatusCheckedOut, Phase: domain.PhaseIdle}
	e.publishLocked()
	e.mu.Unlock()

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if err := e.cache.Clear(ctx, e.cacheKey); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

// Close stops the ticker and cancels outstanding calls; their results are
// dropped rather than applied.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.epoch++
	e.stopTickerLocked()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()
	e.cancel()
}

func (e *Engine) State() attendancedto.StateOutput {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputLocked()
}

// Subscribe returns a channel holding the latest state. Slow readers miss
// intermediate states, never the most recent one.
func (e *Engine) Subscribe() (<-chan attendancedto.StateOutput, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan attendancedto.StateOutput, 1)
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	ch <- e.outputLocked()
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[id]; ok {
			close(sub)
			delete(e.subs, id)
		}
	}
}

func (e *Engine) onTick(gen uint64, elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.tickGen || e.state.Status != domain.StatusCheckedIn {
		return
	}
	if elapsed <= e.state.Elapsed {
		return
	}
	e.state.Elapsed = elapsed
	e.publishLocked()
}

// beginLocked applies the preconditions shared by every transition.
func (e *Engine) beginLocked() (domain.Credential, uint64, error) {
	if e.closed {
		return domain.Credential{}, 0, apperrors.ErrEngineClosed
	}
	if e.cred.EmployeeID == "" {
		return domain.Credential{}, 0, apperrors.ErrNotInitialized
	}
	if e.state.Phase.Busy() {
		return domain.Credential{}, 0, apperrors.ErrTransitionInFlight
	}
	return e.cred, e.epoch, nil
}

func (e *Engine) abort(ctx context.Context, epoch uint64, kind string, phase domain.Phase, err error) (attendancedto.StateOutput, error) {
	e.mu.Lock()
	if staleErr := e.staleLocked(epoch); staleErr != nil {
		e.mu.Unlock()
		return attendancedto.StateOutput{}, staleErr
	}
	e.state.Phase = phase
	e.state.Reason = domain.ReasonOf(err)
	e.publishLocked()
	out := e.outputLocked()
	e.mu.Unlock()

	e.metrics.RecordTransition(ctx, kind, string(domain.ReasonOf(err)))
	e.log.Warn("transition aborted", zap.String("kind", kind), zap.Error(err))
	return out, err
}

func (e *Engine) staleLocked(epoch uint64) error {
	if e.closed {
		return apperrors.ErrEngineClosed
	}
	if e.epoch != epoch {
		return apperrors.ErrSessionReset
	}
	return nil
}

// commitLocked installs an authoritative record, starts or stops the ticker
// accordingly and returns the snapshot to persist.
func (e *Engine) commitLocked(record domain.SessionRecord) domain.CachedSnapshot {
	prev := e.state
	e.record = record
	if record.Status == domain.StatusCheckedIn {
		e.ensureTickerLocked(record.ClockInAt)
	} else {
		e.stopTickerLocked()
	}
	e.state = e.stateFor(record, domain.PhaseIdle)
	if prev.Status == domain.StatusCheckedIn && prev.ClockInAt.Equal(record.ClockInAt) && prev.Elapsed > e.state.Elapsed {
		e.state.Elapsed = prev.Elapsed
	}
	e.publishLocked()
	return domain.SnapshotOf(record, e.clock.Now())
}

func (e *Engine) stateFor(record domain.SessionRecord, phase domain.Phase) domain.EngineState {
	if record.Status != domain.StatusCheckedIn {
		return domain.EngineState{Status: domain.StatusCheckedOut, Phase: phase}
	}
	return domain.EngineState{
		Status:    domain.StatusCheckedIn,
		ClockInAt: record.ClockInAt,
		Elapsed:   domain.ElapsedSince(record.ClockInAt, e.clock.Now()),
		Phase:     phase,
	}
}

func (e *Engine) startTickerLocked(clockInAt time.Time) {
	e.tickGen = e.ticker.Start(clockInAt, e.onTick, e.onMaxDurationExceeded)
	e.tickClockIn = clockInAt
}

// ensureTickerLocked leaves a live run for the same clock-in untouched. A run
// that already stopped at the ceiling is started again so the ceiling fires.
func (e *Engine) ensureTickerLocked(clockInAt time.Time) {
	if e.tickGen != 0 && e.tickClockIn.Equal(clockInAt) && e.ticker.Running() {
		return
	}
	e.startTickerLocked(clockInAt)
}

func (e *Engine) stopTickerLocked() {
	e.ticker.Stop()
	e.tickGen = 0
	e.tickClockIn = time.Time{}
}

func (e *Engine) publishLocked() {
	out := e.outputLocked()
	for _, ch := range e.subs {
		select {
		case ch <- out:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- out:
		default:
		}
	}
}

func (e *Engine) outputLocked() attendancedto.StateOutput {
	return attendancedto.StateOutput{
		Status:    string(e.state.Status),
		CheckedIn: e.state.Status == domain.StatusCheckedIn,
		ClockInAt: e.state.ClockInAt,
		Elapsed:   e.state.Elapsed,
		Phase:     string(e.state.Phase),
		Reason:    string(e.state.Reason),
	}
}

// opContext derives a context that is also cancelled by Close.
func (e *Engine) opContext(ctx context.Context) (context.Context, func()) {
	opCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (e *Engine) loadSnapshot(ctx context.Context, employeeID string) (domain.CachedSnapshot, bool) {
	snapshot, err := e.cache.Get(ctx, e.cacheKey)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			e.log.Warn("read session snapshot", zap.Error(err))
		}
		return domain.CachedSnapshot{}, false
	}
	if snapshot.EmployeeID != employeeID {
		e.log.Info("discarding snapshot of another account", zap.String("cached_employee_id", snapshot.EmployeeID))
		e.cacheMu.Lock()
		err := e.cache.Clear(ctx, e.cacheKey)
		e.cacheMu.Unlock()
		if err != nil {
			e.log.Warn("clear foreign session snapshot", zap.Error(err))
		}
		return domain.CachedSnapshot{}, false
	}
	return snapshot, true
}

// persist writes the snapshot unless a Logout or Close happened meanwhile.
// Write failures are logged; the remote-confirmed state stays committed.
func (e *Engine) persist(ctx context.Context, epoch uint64, snapshot domain.CachedSnapshot) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.mu.Lock()
	stale := e.staleLocked(epoch)
	e.mu.Unlock()
	if stale != nil {
		return
	}
	if err := e.cache.Set(ctx, e.cacheKey, snapshot); err != nil {
		e.log.Warn("write session snapshot", zap.Error(err))
	}
}

func recordFromRemote(employeeID string, status domain.RemoteStatus) (domain.SessionRecord, error) {
	if !status.CheckedIn {
		return domain.CheckedOutRecord(employeeID), nil
	}
	if status.ClockInAt.IsZero() {
		return domain.SessionRecord{}, fmt.Errorf("%w: checked in without clock-in time", apperrors.ErrRemoteUnavailable)
	}
	return domain.CheckedInRecord(employeeID, status.ClockInAt), nil
}

// asRemoteError keeps raw transport errors from escaping the engine.
func asRemoteError(err error) error {
	if errors.Is(err, apperrors.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", apperrors.ErrRemoteUnavailable, err)
}
