// Package logging adapts charmbracelet/log to coldvox.Logger so every
// component gets structured, leveled output without depending on the
// logging library directly.
package logging

import (
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// Options configures the adapter's output.
type Options struct {
	Writer    io.Writer
	Level     string // debug, info, warn, error
	ReportTS  bool
	Prefix    string
}

// New builds a coldvox.Logger backed by charmbracelet/log.
func New(opts Options) coldvox.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: opts.ReportTS,
		Prefix:          opts.Prefix,
	})
	l.SetLevel(parseLevel(opts.Level))
	return &adapter{l: l}
}

func parseLevel(s string) charmlog.Level {
	switch s {
	case "debug":
		return charmlog.DebugLevel
	case "warn":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

type adapter struct {
	l *charmlog.Logger
}

func (a *adapter) Debug(msg string, args ...interface{}) { a.l.Debug(msg, args...) }
func (a *adapter) Info(msg string, args ...interface{})  { a.l.Info(msg, args...) }
func (a *adapter) Warn(msg string, args ...interface{})  { a.l.Warn(msg, args...) }
func (a *adapter) Error(msg string, args ...interface{}) { a.l.Error(msg, args...) }

// With returns a child logger with persistent key/value pairs attached,
// e.g. logging.With(base, "component", "strategy").
func With(base coldvox.Logger, keyvals ...interface{}) coldvox.Logger {
	a, ok := base.(*adapter)
	if !ok {
		return base
	}
	return &adapter{l: a.l.With(keyvals...)}
}
