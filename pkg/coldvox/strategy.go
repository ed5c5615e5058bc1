package coldvox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InjectionBackend is one OS-level text-injection method. Concrete
// implementations live in pkg/backends/inject (AT-SPI accessibility,
// clipboard+paste, synthetic keystroke, window-activate assist, no-op).
type InjectionBackend interface {
	Method() InjectionMethod

	// IsAvailable reports whether this backend can currently be used at
	// all (e.g. the AT-SPI bus is reachable, the uinput device opened).
	// The strategy manager caches the result for a short TTL.
	IsAvailable(ctx context.Context) bool

	// Prewarm performs any preparation that should happen before the
	// timed injection attempt (e.g. window activation) so it doesn't eat
	// into the per-method budget. Safe to call even if not needed; no-op
	// backends return nil immediately.
	Prewarm(ctx context.Context, focus FocusContext) error

	// Inject delivers text and reports whether delivery was confirmed.
	// An unconfirmed but error-free attempt is still treated as failure
	// by the caller (see Failure semantics in the injection-session
	// design): confirmed=false with err=nil means "could not verify".
	Inject(ctx context.Context, focus FocusContext, text string) (confirmed bool, err error)
}

// FocusProvider resolves the currently focused application and whether its
// focused element accepts text input.
type FocusProvider interface {
	Probe(ctx context.Context) (FocusContext, error)
}

type availabilityCacheEntry struct {
	available bool
	probedAt  time.Time
}

// StrategyManager chooses an injection method per attempt, applying
// per-(app_id, method) success tracking, cooldowns, and focus-context
// gating. Safe for concurrent use: all mutable state (success records,
// focus cache, availability cache) is mutex-guarded, and no lock is held
// across a backend call.
type StrategyManager struct {
	cfg      Config
	backends map[InjectionMethod]InjectionBackend
	focus    FocusProvider
	logger   Logger
	metrics  MetricsSink

	mu          sync.Mutex
	records     map[string]map[InjectionMethod]*SuccessRecord
	focusCache  map[string]FocusContext
	availCache  map[InjectionMethod]availabilityCacheEntry
	availTTL    time.Duration
	prewarmTTL  time.Duration
	prewarmedAt map[InjectionMethod]time.Time
}

// NewStrategyManager builds a manager over backends (indexed by method),
// using focus for focus-context probing.
func NewStrategyManager(cfg Config, backends []InjectionBackend, focus FocusProvider, logger Logger) *StrategyManager {
	if logger == nil {
		logger = NoOpLogger{}
	}
	byMethod := make(map[InjectionMethod]InjectionBackend, len(backends))
	for _, b := range backends {
		byMethod[b.Method()] = b
	}
	return &StrategyManager{
		cfg:         cfg,
		backends:    byMethod,
		focus:       focus,
		logger:      logger,
		metrics:     NoOpMetrics{},
		records:     make(map[string]map[InjectionMethod]*SuccessRecord),
		focusCache:  make(map[string]FocusContext),
		availCache:  make(map[InjectionMethod]availabilityCacheEntry),
		availTTL:    2 * time.Second,
		prewarmTTL:  3 * time.Second,
		prewarmedAt: make(map[InjectionMethod]time.Time),
	}
}

// SetMetrics assigns the sink used to report per-method attempt outcomes.
// Pass nil to disable (equivalent to never calling this).
func (m *StrategyManager) SetMetrics(sink MetricsSink) {
	if sink == nil {
		sink = NoOpMetrics{}
	}
	m.metrics = sink
}

// Inject delivers text to the application identified by appID, trying
// methods in priority order within the configured total latency budget.
func (m *StrategyManager) Inject(ctx context.Context, appID, text string) error {
	if !m.appAllowed(appID) {
		return &InjectionError{Kind: ErrKindAppBlocked, Underlying: ErrAppBlocked}
	}

	deadline := time.Now().Add(m.cfg.MaxTotalLatency)

	focus, err := m.resolveFocus(ctx, appID)
	if err != nil {
		return &InjectionError{Kind: ErrKindFocusMissing, Underlying: err}
	}
	if focus.Status == NonEditable && m.cfg.FocusEnforcement == Strict {
		return &InjectionError{Kind: ErrKindNoEditableFocus, Underlying: ErrNoEditableFocus}
	}

	order := m.orderedMethods(appID)
	var attempts []AttemptDiagnostic

	for _, method := range order {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &InjectionError{Kind: ErrKindAllMethodsFailed, Attempts: attempts, Underlying: ErrBudgetExhausted}
		}
		backend, ok := m.backends[method]
		if !ok {
			continue
		}
		if !m.isAvailable(ctx, backend) {
			continue
		}
		if m.inCooldown(appID, method) {
			continue
		}

		methodTimeout := m.cfg.PerMethodTimeout
		if remaining < methodTimeout {
			methodTimeout = remaining
		}
		if method == AccessibilityInsert && m.cfg.ConfirmTimeout > 0 && m.cfg.ConfirmTimeout < methodTimeout {
			// AT-SPI's InsertText return value is itself the confirmation:
			// delivery and confirmation are the same round trip, so bound
			// it to the tighter confirm_timeout_ms rather than the full
			// per-method budget.
			methodTimeout = m.cfg.ConfirmTimeout
		}

		m.maybePrewarm(ctx, backend, focus)

		attemptCtx, cancel := context.WithTimeout(ctx, methodTimeout)
		start := time.Now()
		confirmed, injErr := backend.Inject(attemptCtx, focus, text)
		cancel()
		elapsed := time.Since(start)

		if injErr == nil && confirmed {
			m.recordSuccess(appID, method)
			m.metrics.InjectionAttemptInc(method.String(), "success")
			return nil
		}

		kind := ErrKindBackendFailed
		if attemptCtx.Err() != nil {
			kind = ErrKindBackendTimeout
		}
		attempts = append(attempts, AttemptDiagnostic{
			Method:   method,
			Kind:     kind,
			Duration: elapsed.Milliseconds(),
			Detail:   detailOf(injErr),
		})
		m.recordFailure(appID, method)
		m.metrics.InjectionAttemptInc(method.String(), "failure")
	}

	return &InjectionError{Kind: ErrKindAllMethodsFailed, Attempts: attempts, Underlying: ErrAllMethodsFailed}
}

func detailOf(err error) string {
	if err == nil {
		return "unconfirmed"
	}
	return err.Error()
}

func (m *StrategyManager) resolveFocus(ctx context.Context, appID string) (FocusContext, error) {
	m.mu.Lock()
	cached, ok := m.focusCache[appID]
	m.mu.Unlock()
	if ok && !cached.Stale(time.Now(), m.cfg.FocusTTL) {
		return cached, nil
	}

	fc, err := m.focus.Probe(ctx)
	if err != nil {
		return FocusContext{}, err
	}
	m.mu.Lock()
	m.focusCache[appID] = fc
	m.mu.Unlock()
	return fc, nil
}

func (m *StrategyManager) isAvailable(ctx context.Context, backend InjectionBackend) bool {
	m.mu.Lock()
	entry, ok := m.availCache[backend.Method()]
	m.mu.Unlock()
	if ok && time.Since(entry.probedAt) < m.availTTL {
		return entry.available
	}
	available := backend.IsAvailable(ctx)
	m.mu.Lock()
	m.availCache[backend.Method()] = availabilityCacheEntry{available: available, probedAt: time.Now()}
	m.mu.Unlock()
	return available
}

func (m *StrategyManager) maybePrewarm(ctx context.Context, backend InjectionBackend, focus FocusContext) {
	m.mu.Lock()
	last, ok := m.prewarmedAt[backend.Method()]
	m.mu.Unlock()
	if ok && time.Since(last) < m.prewarmTTL {
		return
	}
	if err := backend.Prewarm(ctx, focus); err != nil {
		m.logger.Debug("strategy: prewarm failed", "method", backend.Method(), "err", err)
	}
	m.mu.Lock()
	m.prewarmedAt[backend.Method()] = time.Now()
	m.mu.Unlock()
}

func (m *StrategyManager) recordFor(appID string, method InjectionMethod) *SuccessRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	byMethod, ok := m.records[appID]
	if !ok {
		byMethod = make(map[InjectionMethod]*SuccessRecord)
		m.records[appID] = byMethod
	}
	rec, ok := byMethod[method]
	if !ok {
		rec = &SuccessRecord{}
		byMethod[method] = rec
	}
	return rec
}

func (m *StrategyManager) recordSuccess(appID string, method InjectionMethod) {
	rec := m.recordFor(appID, method)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Successes++
	rec.ConsecutiveFail = 0
	rec.ConsecutiveSuccess++
	now := time.Now()
	rec.LastOutcomeAt = now
	rec.LastSuccessAt = now
	if rec.ConsecutiveSuccess >= m.cfg.CooldownResetStreak {
		rec.CurrentCooldown = 0
		rec.CooldownUntil = time.Time{}
	}
}

func (m *StrategyManager) recordFailure(appID string, method InjectionMethod) {
	rec := m.recordFor(appID, method)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.Failures++
	rec.ConsecutiveFail++
	rec.ConsecutiveSuccess = 0
	rec.LastOutcomeAt = time.Now()

	next := m.cfg.CooldownInitial
	if rec.CurrentCooldown > 0 {
		scaled := time.Duration(float64(rec.CurrentCooldown) * m.cfg.CooldownBackoff)
		if scaled > next {
			next = scaled
		}
	}
	if next > m.cfg.CooldownMax {
		next = m.cfg.CooldownMax
	}
	rec.CurrentCooldown = next
	rec.CooldownUntil = time.Now().Add(next)
}

func (m *StrategyManager) inCooldown(appID string, method InjectionMethod) bool {
	return m.recordFor(appID, method).InCooldown(time.Now())
}

// appAllowed applies AppBlocklist (always wins) and AppAllowlist (when
// non-empty, restricts to only the listed app_ids).
func (m *StrategyManager) appAllowed(appID string) bool {
	for _, blocked := range m.cfg.AppBlocklist {
		if blocked == appID {
			return false
		}
	}
	if len(m.cfg.AppAllowlist) == 0 {
		return true
	}
	for _, allowed := range m.cfg.AppAllowlist {
		if allowed == appID {
			return true
		}
	}
	return false
}

// orderedMethods builds the priority list for appID: platform default
// order, demoting methods whose observed success rate has fallen below
// min_success_rate once enough samples exist.
func (m *StrategyManager) orderedMethods(appID string) []InjectionMethod {
	type scored struct {
		method   InjectionMethod
		priority int
		demoted  bool
	}
	list := make([]scored, 0, len(DefaultMethodPriority))
	for i, method := range DefaultMethodPriority {
		rec := m.recordFor(appID, method)
		demoted := rec.SampleSize() >= m.cfg.MinSampleSize && rec.SuccessRate() < m.cfg.MinSuccessRate
		list = append(list, scored{method: method, priority: i, demoted: demoted})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].demoted != list[j].demoted {
			return !list[i].demoted // non-demoted first
		}
		return list[i].priority < list[j].priority
	})
	out := make([]InjectionMethod, len(list))
	for i, s := range list {
		out[i] = s.method
	}
	return out
}
