package service

import (
	"sync"
	"time"

	"punchclock/internal/modules/attendance/domain"
	"punchclock/internal/platform/clock"
)

// TickFunc receives the generation of the run that produced the tick.
type TickFunc func(gen uint64, elapsed time.Duration)

// CeilingFunc is called once, after the run has stopped itself.
type CeilingFunc func(gen uint64)

// ElapsedTicker recomputes the elapsed duration of the active session on a
// fixed interval. At most one run is active; every run gets a new generation
// so consumers can discard ticks from a run they already stopped.
type ElapsedTicker struct {
	clock    clock.Clock
	interval time.Duration
	ceiling  time.Duration

	mu  sync.Mutex
	run *tickerRun
	gen uint64
}

type tickerRun struct {
	gen  uint64
	stop chan struct{}
	once sync.Once
}

func (r *tickerRun) halt() {
	r.once.Do(func() { close(r.stop) })
}

func NewElapsedTicker(clk clock.Clock, interval, ceiling time.Duration) *ElapsedTicker {
	return &ElapsedTicker{clock: clk, interval: interval, ceiling: ceiling}
}

func (t *ElapsedTicker) Ceiling() time.Duration { return t.ceiling }

// Start replaces any active run and returns the generation of the new one.
func (t *ElapsedTicker) Start(clockInAt time.Time, onTick TickFunc, onCeiling CeilingFunc) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.run != nil {
		t.run.halt()
	}
	t.gen++
	run := &tickerRun{gen: t.gen, stop: make(chan struct{})}
	t.run = run
	go t.loop(run, t.clock.NewTicker(t.interval), clockInAt, onTick, onCeiling)
	return run.gen
}

// Stop is idempotent and does not wait for the run goroutine, so it is safe
// to call from inside a callback.
func (t *ElapsedTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.run != nil {
		t.run.halt()
		t.run = nil
	}
}

func (t *ElapsedTicker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run != nil
}

func (t *ElapsedTicker) loop(run *tickerRun, tk clock.Ticker, clockInAt time.Time, onTick TickFunc, onCeiling CeilingFunc) {
	defer tk.Stop()
	var last time.Duration
	for {
		select {
		case <-run.stop:
			return
		case <-tk.C():
		}
		select {
		case <-run.stop:
			return
		default:
		}

		elapsed := domain.ElapsedSince(clockInAt, t.clock.Now())
		if elapsed < last {
			elapsed = last
		}
		last = elapsed
		if onTick != nil {
			onTick(run.gen, elapsed)
		}
		if elapsed >= t.ceiling {
			t.finish(run)
			if onCeiling != nil {
				onCeiling(run.gen)
			}
			return
		}
	}
}

func (t *ElapsedTicker) finish(run *tickerRun) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run.halt()
	if t.run == run {
		t.run = nil
	}
}
