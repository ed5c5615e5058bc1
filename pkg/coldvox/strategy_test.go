package coldvox

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBackend struct {
	method    InjectionMethod
	available bool
	confirmed bool
	injectErr error
	calls     int
}

func (f *fakeBackend) Method() InjectionMethod                    { return f.method }
func (f *fakeBackend) IsAvailable(ctx context.Context) bool       { return f.available }
func (f *fakeBackend) Prewarm(ctx context.Context, _ FocusContext) error { return nil }
func (f *fakeBackend) Inject(ctx context.Context, _ FocusContext, _ string) (bool, error) {
	f.calls++
	return f.confirmed, f.injectErr
}

type fakeFocus struct {
	ctx    FocusContext
	err    error
	probes int
}

func (f *fakeFocus) Probe(ctx context.Context) (FocusContext, error) {
	f.probes++
	return f.ctx, f.err
}

func strategyTestConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxTotalLatency = 500 * time.Millisecond
	cfg.PerMethodTimeout = 100 * time.Millisecond
	cfg.FocusTTL = time.Second
	cfg.MinSampleSize = 3
	cfg.MinSuccessRate = 0.3
	cfg.CooldownInitial = 50 * time.Millisecond
	cfg.CooldownBackoff = 2
	cfg.CooldownMax = time.Second
	return cfg
}

func TestStrategyManager_SucceedsOnFirstAvailableMethod(t *testing.T) {
	cfg := strategyTestConfig()
	primary := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: true}
	focus := &fakeFocus{ctx: FocusContext{Status: EditableText, AppID: "app", DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{primary}, focus, nil)
	if err := m.Inject(context.Background(), "app", "hello"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("expected 1 call, got %d", primary.calls)
	}
}

func TestStrategyManager_FallsBackOnFailure(t *testing.T) {
	cfg := strategyTestConfig()
	primary := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: false}
	secondary := &fakeBackend{method: ClipboardAndPaste, available: true, confirmed: true}
	focus := &fakeFocus{ctx: FocusContext{Status: EditableText, DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{primary, secondary}, focus, nil)
	if err := m.Inject(context.Background(), "app", "hello"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("expected both backends tried once, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}

func TestStrategyManager_AllMethodsFailedReturnsDiagnostics(t *testing.T) {
	cfg := strategyTestConfig()
	primary := &fakeBackend{method: AccessibilityInsert, available: true, injectErr: errors.New("nope")}
	focus := &fakeFocus{ctx: FocusContext{Status: EditableText, DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{primary}, focus, nil)
	err := m.Inject(context.Background(), "app", "hello")
	if err == nil {
		t.Fatal("expected an error when the only backend always fails")
	}
	var ie *InjectionError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InjectionError, got %T", err)
	}
	if ie.Kind != ErrKindAllMethodsFailed {
		t.Fatalf("expected AllMethodsFailed, got %v", ie.Kind)
	}
	if len(ie.Attempts) != 1 {
		t.Fatalf("expected 1 diagnostic attempt, got %d", len(ie.Attempts))
	}
}

func TestStrategyManager_StrictEnforcementRejectsNonEditableFocus(t *testing.T) {
	cfg := strategyTestConfig()
	cfg.FocusEnforcement = Strict
	primary := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: true}
	focus := &fakeFocus{ctx: FocusContext{Status: NonEditable, DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{primary}, focus, nil)
	err := m.Inject(context.Background(), "app", "hello")
	var ie *InjectionError
	if !errors.As(err, &ie) || ie.Kind != ErrKindNoEditableFocus {
		t.Fatalf("expected NoEditableFocus error, got %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("expected no backend attempted under Strict+NonEditable, got %d calls", primary.calls)
	}
}

func TestStrategyManager_DemotesLowSuccessRateMethod(t *testing.T) {
	cfg := strategyTestConfig()
	accessibility := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: false}
	clipboard := &fakeBackend{method: ClipboardAndPaste, available: true, confirmed: true}
	focus := &fakeFocus{ctx: FocusContext{Status: EditableText, DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{accessibility, clipboard}, focus, nil)

	// Drive enough failures on accessibility to cross min_sample_size with
	// a success rate below min_success_rate, demoting it below clipboard.
	for i := 0; i < cfg.MinSampleSize; i++ {
		m.recordFailure("app", AccessibilityInsert)
	}

	order := m.orderedMethods("app")
	if order[0] != ClipboardAndPaste {
		t.Fatalf("expected clipboard promoted ahead of demoted accessibility, got order %v", order)
	}
}

func TestStrategyManager_CooldownOnlyResetsAfterSuccessStreak(t *testing.T) {
	cfg := strategyTestConfig()
	cfg.CooldownResetStreak = 2
	primary := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: true}

	m := NewStrategyManager(cfg, []InjectionBackend{primary}, &fakeFocus{}, nil)

	m.recordFailure("app", AccessibilityInsert)
	rec := m.recordFor("app", AccessibilityInsert)
	if rec.CurrentCooldown == 0 {
		t.Fatal("expected a cooldown after a failure")
	}

	m.recordSuccess("app", AccessibilityInsert)
	if rec.CurrentCooldown == 0 {
		t.Fatal("expected cooldown to survive a single success below the reset streak")
	}

	m.recordSuccess("app", AccessibilityInsert)
	if rec.CurrentCooldown != 0 || !rec.CooldownUntil.IsZero() {
		t.Fatal("expected cooldown to clear once the reset streak is reached")
	}
}

func TestStrategyManager_BlocklistedAppIsRejected(t *testing.T) {
	cfg := strategyTestConfig()
	cfg.AppBlocklist = []string{"blocked-app"}
	primary := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: true}
	focus := &fakeFocus{ctx: FocusContext{Status: EditableText, DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{primary}, focus, nil)
	err := m.Inject(context.Background(), "blocked-app", "hello")
	var ie *InjectionError
	if !errors.As(err, &ie) || ie.Kind != ErrKindAppBlocked {
		t.Fatalf("expected AppBlocked error, got %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("expected no backend attempted for a blocklisted app, got %d calls", primary.calls)
	}
}

func TestStrategyManager_AllowlistRejectsUnlistedApp(t *testing.T) {
	cfg := strategyTestConfig()
	cfg.AppAllowlist = []string{"allowed-app"}
	primary := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: true}
	focus := &fakeFocus{ctx: FocusContext{Status: EditableText, DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{primary}, focus, nil)

	if err := m.Inject(context.Background(), "allowed-app", "hello"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("expected the allowlisted app to be injected, got %d calls", primary.calls)
	}

	err := m.Inject(context.Background(), "other-app", "hello")
	var ie *InjectionError
	if !errors.As(err, &ie) || ie.Kind != ErrKindAppBlocked {
		t.Fatalf("expected AppBlocked error for an app missing from a non-empty allowlist, got %v", err)
	}
}

func TestStrategyManager_CooldownExcludesMethodUntilExpiry(t *testing.T) {
	cfg := strategyTestConfig()
	primary := &fakeBackend{method: AccessibilityInsert, available: true, confirmed: false}
	secondary := &fakeBackend{method: ClipboardAndPaste, available: true, confirmed: true}
	focus := &fakeFocus{ctx: FocusContext{Status: EditableText, DetectedAt: time.Now()}}

	m := NewStrategyManager(cfg, []InjectionBackend{primary, secondary}, focus, nil)

	if err := m.Inject(context.Background(), "app", "hello"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("expected primary tried once before cooldown, got %d", primary.calls)
	}

	// Second attempt: primary should be skipped due to cooldown.
	if err := m.Inject(context.Background(), "app", "hello"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if primary.calls != 1 {
		t.Fatalf("expected primary skipped while cooling down, got %d calls", primary.calls)
	}
}
