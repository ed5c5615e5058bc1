package coldvox

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// CaptureController is the capture-thread lifecycle the watchdog
// supervises: start spawns a new capture thread and returns once the
// device is open (not once data has arrived); stop joins the previous
// one. Both must be safe to call from the watchdog's single goroutine
// only — the watchdog coalesces concurrent restart requests itself.
type CaptureController interface {
	Start(ctx context.Context) error
	Stop()
	Stats() CaptureStats
}

// RecoveryEvent is emitted whenever the watchdog restarts capture.
type RecoveryEvent struct {
	SamplesGap int64 // best-effort estimate; 0 when unknown
	At         time.Time
}

// Watchdog polls a CaptureController's liveness timestamp and restarts it
// with exponential backoff and jitter after a stall. Run polls until ctx
// is cancelled.
type Watchdog struct {
	controller CaptureController
	logger     Logger

	period         time.Duration
	noDataTimeout  time.Duration
	backoffInitial time.Duration
	backoffFactor  float64
	backoffMax     time.Duration

	mu          sync.Mutex
	restarting  bool
	curBackoff  time.Duration
	restartsCnt atomic.Uint64

	events chan RecoveryEvent
}

// NewWatchdog builds a Watchdog over cfg's watchdog parameters, polling
// every period (callers typically pick a fraction of NoDataTimeout, e.g. 1s).
func NewWatchdog(controller CaptureController, cfg Config, period time.Duration, logger Logger) *Watchdog {
	if logger == nil {
		logger = NoOpLogger{}
	}
	if period <= 0 {
		period = time.Second
	}
	return &Watchdog{
		controller:     controller,
		logger:         logger,
		period:         period,
		noDataTimeout:  cfg.NoDataTimeout,
		backoffInitial: cfg.BackoffInitial,
		backoffFactor:  cfg.BackoffFactor,
		backoffMax:     cfg.BackoffMax,
		events:         make(chan RecoveryEvent, 16),
	}
}

// Events returns the channel RecoveryEvents are published on.
func (w *Watchdog) Events() <-chan RecoveryEvent { return w.events }

// Restarts returns the cumulative number of restarts performed.
func (w *Watchdog) Restarts() uint64 { return w.restartsCnt.Load() }

// Run polls liveness every period until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce(ctx)
		}
	}
}

func (w *Watchdog) checkOnce(ctx context.Context) {
	stats := w.controller.Stats()
	if time.Since(stats.LastDataAt) < w.noDataTimeout {
		return
	}

	w.mu.Lock()
	if w.restarting {
		w.mu.Unlock()
		return // concurrent stall detections coalesce into one restart
	}
	w.restarting = true
	backoff := w.curBackoff
	w.mu.Unlock()

	if backoff <= 0 {
		backoff = w.backoffInitial
	}

	w.logger.Warn("watchdog: capture stalled, restarting", "no_data_for", time.Since(stats.LastDataAt))
	w.controller.Stop()

	select {
	case <-ctx.Done():
		w.mu.Lock()
		w.restarting = false
		w.mu.Unlock()
		return
	case <-time.After(jitter(backoff)):
	}

	err := w.controller.Start(ctx)

	w.mu.Lock()
	if err != nil {
		next := time.Duration(float64(backoff) * w.backoffFactor)
		if next > w.backoffMax {
			next = w.backoffMax
		}
		w.curBackoff = next
		w.logger.Error("watchdog: restart failed", "err", err, "next_backoff", next)
	} else {
		w.curBackoff = 0 // resets on successful restart
		w.restartsCnt.Add(1)
	}
	w.restarting = false
	w.mu.Unlock()

	if err == nil {
		w.emit(RecoveryEvent{At: time.Now()})
	}
}

func (w *Watchdog) emit(ev RecoveryEvent) {
	select {
	case w.events <- ev:
	default:
		w.logger.Warn("watchdog: recovery event channel full, dropping")
	}
}

// jitter returns a duration uniformly distributed in [d/2, d], avoiding a
// thundering herd if multiple watchdogs (unusual, but not forbidden)
// restart in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
