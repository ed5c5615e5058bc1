// Package inject implements coldvox.InjectionBackend over four OS-level text
// delivery methods (accessibility insert, clipboard+paste, synthetic
// keystroke, window-activate-assist) plus a no-op backend, and a
// coldvox.FocusProvider over AT-SPI.
package inject

import (
	"context"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// NoOpBackend discards text. It is always available and used as the last
// resort in DefaultMethodPriority so a misconfigured host still "succeeds"
// rather than leaving the strategy manager with no method at all.
type NoOpBackend struct {
	logger coldvox.Logger
}

// NewNoOpBackend builds a NoOpBackend that logs dropped text at Warn level.
func NewNoOpBackend(logger coldvox.Logger) *NoOpBackend {
	if logger == nil {
		logger = coldvox.NoOpLogger{}
	}
	return &NoOpBackend{logger: logger}
}

func (b *NoOpBackend) Method() coldvox.InjectionMethod { return coldvox.NoOp }

func (b *NoOpBackend) IsAvailable(ctx context.Context) bool { return true }

func (b *NoOpBackend) Prewarm(ctx context.Context, focus coldvox.FocusContext) error { return nil }

func (b *NoOpBackend) Inject(ctx context.Context, focus coldvox.FocusContext, text string) (bool, error) {
	b.logger.Warn("inject: no-op backend discarding transcript", "app_id", focus.AppID, "len", len(text))
	return true, nil
}
