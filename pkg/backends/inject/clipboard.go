package inject

import (
	"context"
	"time"

	"github.com/atotto/clipboard"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// PasteKeySender issues the paste keystroke (normally Ctrl+Shift+V or
// Ctrl+V, terminal/app dependent) after the clipboard has been primed.
// ClipboardBackend doesn't own key synthesis itself; it delegates to a
// SyntheticKeystroke-style sender so the two backends share one input path.
type PasteKeySender interface {
	SendPaste(ctx context.Context) error
}

// ClipboardBackend injects text by writing it to the system clipboard and
// triggering a paste, then restoring the clipboard's prior contents. Per the
// shared-resource contract, restore is best-effort: a restore failure is
// logged but never turns a successful injection into a failure.
type ClipboardBackend struct {
	paster      PasteKeySender
	logger      coldvox.Logger
	restoreWait time.Duration
}

// NewClipboardBackend builds a ClipboardBackend. restoreWait bounds how long
// it waits after the paste before restoring the prior clipboard contents, so
// the target application's paste has time to read the clipboard first.
func NewClipboardBackend(paster PasteKeySender, restoreWait time.Duration, logger coldvox.Logger) *ClipboardBackend {
	if logger == nil {
		logger = coldvox.NoOpLogger{}
	}
	if restoreWait <= 0 {
		restoreWait = 150 * time.Millisecond
	}
	return &ClipboardBackend{paster: paster, restoreWait: restoreWait, logger: logger}
}

func (b *ClipboardBackend) Method() coldvox.InjectionMethod { return coldvox.ClipboardAndPaste }

func (b *ClipboardBackend) IsAvailable(ctx context.Context) bool {
	_, err := clipboard.ReadAll()
	return err == nil
}

func (b *ClipboardBackend) Prewarm(ctx context.Context, focus coldvox.FocusContext) error {
	return nil
}

// Inject writes text to the clipboard, pastes it, and restores whatever the
// clipboard held beforehand. The method is idempotent: on the next attempt
// the same text can be re-pasted from the start without side effects from a
// partial prior attempt.
func (b *ClipboardBackend) Inject(ctx context.Context, focus coldvox.FocusContext, text string) (bool, error) {
	prior, err := clipboard.ReadAll()
	hadPrior := err == nil

	if err := clipboard.WriteAll(text); err != nil {
		return false, err
	}

	pasteErr := b.paster.SendPaste(ctx)

	select {
	case <-time.After(b.restoreWait):
	case <-ctx.Done():
	}

	if hadPrior {
		if err := clipboard.WriteAll(prior); err != nil {
			b.logger.Warn("inject: clipboard restore failed", "err", err)
		}
	}

	if pasteErr != nil {
		return false, pasteErr
	}
	return true, nil
}
