package inject

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// netActiveWindow is the EWMH atom used to ask the window manager to raise
// and focus a window before a keystroke-based injection is retried.
const netActiveWindow = "_NET_ACTIVE_WINDOW"

// WindowActivateBackend doesn't inject text itself; it raises and focuses
// the target window via an EWMH ClientMessage, then delegates the actual
// delivery to an inner backend. This is the "assist" method: it exists for
// apps whose focus tracking is stale, where activating first makes a
// subsequent keystroke or clipboard attempt land correctly.
type WindowActivateBackend struct {
	conn   *xgb.Conn
	root   xproto.Window
	atom   xproto.Atom
	inner  coldvox.InjectionBackend
	logger coldvox.Logger
}

// NewWindowActivateBackend connects to the X server and resolves the
// _NET_ACTIVE_WINDOW atom once. inner performs the actual text delivery
// after activation.
func NewWindowActivateBackend(inner coldvox.InjectionBackend, logger coldvox.Logger) (*WindowActivateBackend, error) {
	if logger == nil {
		logger = coldvox.NoOpLogger{}
	}
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("inject: connect X server: %w", err)
	}
	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	atomReply, err := xproto.InternAtom(conn, false, uint16(len(netActiveWindow)), netActiveWindow).Reply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("inject: resolve %s atom: %w", netActiveWindow, err)
	}

	return &WindowActivateBackend{conn: conn, root: root, atom: atomReply.Atom, inner: inner, logger: logger}, nil
}

func (b *WindowActivateBackend) Method() coldvox.InjectionMethod { return coldvox.WindowActivateAssist }

func (b *WindowActivateBackend) IsAvailable(ctx context.Context) bool {
	return b.conn != nil && b.inner.IsAvailable(ctx)
}

func (b *WindowActivateBackend) Prewarm(ctx context.Context, focus coldvox.FocusContext) error {
	return b.inner.Prewarm(ctx, focus)
}

// Inject resolves focus.AppID to an X window ID, sends an EWMH
// _NET_ACTIVE_WINDOW ClientMessage to request activation, then calls inner
// to perform the actual delivery.
func (b *WindowActivateBackend) Inject(ctx context.Context, focus coldvox.FocusContext, text string) (bool, error) {
	win, err := resolveWindowID(focus.AppID)
	if err != nil {
		return false, fmt.Errorf("inject: resolve window for %q: %w", focus.AppID, err)
	}

	data := xproto.ClientMessageDataUnionData32New([4]uint32{1, 0, 0, 0})
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   b.atom,
		Data:   data,
	}
	mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
	if err := xproto.SendEventChecked(b.conn, false, b.root, mask, string(ev.Bytes())).Check(); err != nil {
		return false, fmt.Errorf("inject: send activation event: %w", err)
	}

	return b.inner.Inject(ctx, focus, text)
}

// Close releases the X connection.
func (b *WindowActivateBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	b.conn.Close()
	return nil
}

// resolveWindowID expects appID to carry the X11 window ID. The AT-SPI focus
// provider publishes a D-Bus object path as AppID instead, so under that
// provider resolution fails and Inject returns an error, which the strategy
// manager records as a failed attempt of this method.
func resolveWindowID(appID string) (xproto.Window, error) {
	id, err := strconv.ParseUint(appID, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("app id %q is not an X11 window id", appID)
	}
	return xproto.Window(id), nil
}
