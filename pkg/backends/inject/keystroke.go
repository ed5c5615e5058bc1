package inject

import (
	"context"
	"fmt"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// keyPressDelay is how long a synthetic key stays "down" before its release
// event, long enough for most input stacks to register it as a discrete
// press rather than a repeat.
const keyPressDelay = 8 * time.Millisecond

// KeystrokeBackend injects text by synthesizing per-character key events on
// a virtual /dev/uinput device. It doubles as the PasteKeySender used by
// ClipboardBackend, since both ultimately emit key events through the same
// uinput handle.
type KeystrokeBackend struct {
	device *evdev.UinputDevice
	logger coldvox.Logger
}

// NewKeystrokeBackend opens (or creates) a uinput virtual keyboard named
// name. The caller is responsible for Close.
func NewKeystrokeBackend(name string, logger coldvox.Logger) (*KeystrokeBackend, error) {
	if logger == nil {
		logger = coldvox.NoOpLogger{}
	}
	dev, err := evdev.CreateUinputDevice(name, evdev.UinputUserDev{})
	if err != nil {
		return nil, fmt.Errorf("inject: create uinput device: %w", err)
	}
	return &KeystrokeBackend{device: dev, logger: logger}, nil
}

func (b *KeystrokeBackend) Method() coldvox.InjectionMethod { return coldvox.SyntheticKeystroke }

func (b *KeystrokeBackend) IsAvailable(ctx context.Context) bool { return b.device != nil }

func (b *KeystrokeBackend) Prewarm(ctx context.Context, focus coldvox.FocusContext) error {
	return nil
}

// Inject emits one key-down/key-up pair per rune. A synthesis failure part
// way through cancels the remaining runes and reports failure; the target
// application is left with whatever partial text was already delivered.
// No clear step (Ctrl+A, Backspace) runs afterwards: the strategy manager
// moves on to its next method without removing the partial text.
func (b *KeystrokeBackend) Inject(ctx context.Context, focus coldvox.FocusContext, text string) (bool, error) {
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := b.sendRune(r); err != nil {
			return false, fmt.Errorf("inject: synthesize rune %q: %w", r, err)
		}
	}
	return true, nil
}

// SendPaste synthesizes Ctrl+V, the conventional paste shortcut, for use by
// ClipboardBackend.
func (b *KeystrokeBackend) SendPaste(ctx context.Context) error {
	if err := b.device.KeyDown(evdev.KEY_LEFTCTRL); err != nil {
		return err
	}
	defer b.device.KeyUp(evdev.KEY_LEFTCTRL)
	time.Sleep(keyPressDelay)
	if err := b.device.KeyDown(evdev.KEY_V); err != nil {
		return err
	}
	time.Sleep(keyPressDelay)
	return b.device.KeyUp(evdev.KEY_V)
}

func (b *KeystrokeBackend) sendRune(r rune) error {
	code, shifted, ok := runeToKeycode(r)
	if !ok {
		return fmt.Errorf("no keycode mapping for rune %q", r)
	}
	if shifted {
		if err := b.device.KeyDown(evdev.KEY_LEFTSHIFT); err != nil {
			return err
		}
		defer b.device.KeyUp(evdev.KEY_LEFTSHIFT)
	}
	if err := b.device.KeyDown(code); err != nil {
		return err
	}
	time.Sleep(keyPressDelay)
	return b.device.KeyUp(code)
}

// Close releases the uinput device.
func (b *KeystrokeBackend) Close() error {
	if b.device == nil {
		return nil
	}
	return b.device.Close()
}

// runeToKeycode maps a subset of ASCII (letters, digits, space, newline and
// . , ? !) to evdev keycodes. Anything else is rejected, which fails the
// keystroke attempt so the strategy manager moves on to the next method in
// its ordering.
func runeToKeycode(r rune) (code int, shifted bool, ok bool) {
	// evdev letter keycodes follow the physical QWERTY layout, not the
	// alphabet, so letters need a table rather than an offset from KEY_A.
	letterKeys := [26]int{
		evdev.KEY_A, evdev.KEY_B, evdev.KEY_C, evdev.KEY_D, evdev.KEY_E, evdev.KEY_F, evdev.KEY_G,
		evdev.KEY_H, evdev.KEY_I, evdev.KEY_J, evdev.KEY_K, evdev.KEY_L, evdev.KEY_M, evdev.KEY_N,
		evdev.KEY_O, evdev.KEY_P, evdev.KEY_Q, evdev.KEY_R, evdev.KEY_S, evdev.KEY_T, evdev.KEY_U,
		evdev.KEY_V, evdev.KEY_W, evdev.KEY_X, evdev.KEY_Y, evdev.KEY_Z,
	}
	switch {
	case r == ' ':
		return evdev.KEY_SPACE, false, true
	case r == '\n':
		return evdev.KEY_ENTER, false, true
	case r == '0':
		return evdev.KEY_0, false, true
	case r >= '1' && r <= '9':
		return int(evdev.KEY_1) + int(r-'1'), false, true
	case r >= 'a' && r <= 'z':
		return letterKeys[r-'a'], false, true
	case r >= 'A' && r <= 'Z':
		return letterKeys[r-'A'], true, true
	case r == '.':
		return evdev.KEY_DOT, false, true
	case r == ',':
		return evdev.KEY_COMMA, false, true
	case r == '?':
		return evdev.KEY_SLASH, true, true
	case r == '!':
		return evdev.KEY_1, true, true
	default:
		return 0, false, false
	}
}
