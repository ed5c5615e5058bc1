package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

const (
	atspiBusInterface = "org.a11y.Bus"
	atspiBusPath      = dbus.ObjectPath("/org/a11y/bus")
	editableTextIface = "org.a11y.atspi.EditableText"
)

// dialAccessibilityBus resolves and dials the AT-SPI bus via the session
// bus's org.a11y.Bus.GetAddress call. AccessibilityBackend and
// DBusFocusProvider each hold their own reference to the one connection
// it returns; both are only ever driven from the strategy manager's single
// task, so no locking is needed here.
func dialAccessibilityBus() (*dbus.Conn, error) {
	sessionConn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, fmt.Errorf("inject: connect session bus: %w", err)
	}
	defer sessionConn.Close()
	if err := sessionConn.Auth(nil); err != nil {
		return nil, fmt.Errorf("inject: auth session bus: %w", err)
	}

	var addr string
	obj := sessionConn.Object("org.a11y.Bus", atspiBusPath)
	if err := obj.Call(atspiBusInterface+".GetAddress", 0).Store(&addr); err != nil {
		return nil, fmt.Errorf("inject: get a11y bus address: %w", err)
	}

	a11yConn, err := dbus.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("inject: dial a11y bus: %w", err)
	}
	if err := a11yConn.Auth(nil); err != nil {
		a11yConn.Close()
		return nil, fmt.Errorf("inject: auth a11y bus: %w", err)
	}
	return a11yConn, nil
}

// AccessibilityBackend injects text by calling InsertText on the focused
// element's AT-SPI EditableText interface, the highest-fidelity method
// since it bypasses synthetic input entirely.
type AccessibilityBackend struct {
	conn   *dbus.Conn
	logger coldvox.Logger
}

// NewAccessibilityBackend dials the AT-SPI bus once at construction.
func NewAccessibilityBackend(logger coldvox.Logger) (*AccessibilityBackend, error) {
	if logger == nil {
		logger = coldvox.NoOpLogger{}
	}
	conn, err := dialAccessibilityBus()
	if err != nil {
		return nil, err
	}
	return &AccessibilityBackend{conn: conn, logger: logger}, nil
}

func (b *AccessibilityBackend) Method() coldvox.InjectionMethod { return coldvox.AccessibilityInsert }

func (b *AccessibilityBackend) IsAvailable(ctx context.Context) bool {
	return b.conn != nil && b.conn.Connected()
}

func (b *AccessibilityBackend) Prewarm(ctx context.Context, focus coldvox.FocusContext) error {
	return nil
}

// Inject calls EditableText.InsertText(0, text, len(text)) on the
// accessible named by focus.AppID. AT-SPI's InsertText reports a boolean
// result so success here is directly confirmed, unlike keystroke methods.
func (b *AccessibilityBackend) Inject(ctx context.Context, focus coldvox.FocusContext, text string) (bool, error) {
	if focus.Status != coldvox.EditableText {
		return false, coldvox.ErrNoEditableFocus
	}
	obj := b.conn.Object(focus.AppID, dbus.ObjectPath("/org/a11y/atspi/accessible/focused"))
	var confirmed bool
	call := obj.CallWithContext(ctx, editableTextIface+".InsertText", 0, int32(0), text, int32(len(text)))
	if call.Err != nil {
		return false, fmt.Errorf("inject: accessibility insert: %w", call.Err)
	}
	if err := call.Store(&confirmed); err != nil {
		return false, fmt.Errorf("inject: accessibility insert result: %w", err)
	}
	return confirmed, nil
}

// Close releases the AT-SPI bus connection.
func (b *AccessibilityBackend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

// Conn exposes the underlying AT-SPI bus connection so a FocusProvider can
// share it rather than dialing a second one.
func (b *AccessibilityBackend) Conn() *dbus.Conn { return b.conn }

// DBusFocusProvider implements coldvox.FocusProvider by querying the AT-SPI
// registry for the currently focused accessible and its editable state.
type DBusFocusProvider struct {
	conn   *dbus.Conn
	logger coldvox.Logger
}

// NewDBusFocusProvider reuses an already-dialed AT-SPI connection (typically
// the same one AccessibilityBackend holds, since both are reads/writes
// against the same registry).
func NewDBusFocusProvider(conn *dbus.Conn, logger coldvox.Logger) *DBusFocusProvider {
	if logger == nil {
		logger = coldvox.NoOpLogger{}
	}
	return &DBusFocusProvider{conn: conn, logger: logger}
}

// Probe asks the AT-SPI registry which accessible holds focus and whether
// it implements EditableText.
func (p *DBusFocusProvider) Probe(ctx context.Context) (coldvox.FocusContext, error) {
	now := time.Now()
	registry := p.conn.Object("org.a11y.atspi.Registry", dbus.ObjectPath("/org/a11y/atspi/registry"))

	var appPath dbus.ObjectPath
	call := registry.CallWithContext(ctx, "org.a11y.atspi.Registry.GetFocusedAccessible", 0)
	if call.Err != nil {
		return coldvox.FocusContext{Status: coldvox.Unknown, Reason: call.Err.Error(), DetectedAt: now}, nil
	}
	if err := call.Store(&appPath); err != nil {
		return coldvox.FocusContext{Status: coldvox.Unknown, Reason: err.Error(), DetectedAt: now}, nil
	}

	accessible := p.conn.Object("org.a11y.atspi", appPath)
	var ifaces []string
	if err := accessible.CallWithContext(ctx, "org.a11y.atspi.Accessible.GetInterfaces", 0).Store(&ifaces); err != nil {
		return coldvox.FocusContext{AppID: string(appPath), Status: coldvox.Unknown, Reason: err.Error(), DetectedAt: now}, nil
	}

	status := coldvox.NonEditable
	for _, iface := range ifaces {
		if iface == editableTextIface {
			status = coldvox.EditableText
			break
		}
	}
	return coldvox.FocusContext{AppID: string(appPath), Status: status, DetectedAt: now}, nil
}
