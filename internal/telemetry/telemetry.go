// Package telemetry provides the structured, leveled logging used across
// the translator for block-compile and cache-invalidation events, per
// SPEC_FULL.md's ambient stack section. It
// wraps github.com/rs/zerolog behind a small Logger interface so the rest
// of the module depends on a couple of methods, not zerolog's API
// surface, and so a nil Logger (the zero value of the embedder's Config)
// costs nothing: every call site nil-checks before logging, exactly like
// the teacher's own optional diagnostics hooks (internal/engine/wazevo's
// wazevoapi.PrintEnabledListenerMessages-gated debug prints) cost nothing
// when disabled.
package telemetry

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is one structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is the minimal structured-logging surface the translator core
// depends on. NewZerolog satisfies it; embedders may supply their own
// implementation instead.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
}

// zlogger adapts zerolog.Logger to Logger.
type zlogger struct {
	l zerolog.Logger
}

// NewZerolog builds a Logger writing structured JSON lines to w at the
// given minimum level. Passing io.Discard yields a functioning but silent
// Logger, cheaper than a nil check at every call site when an embedder
// wants to unconditionally wire one in regardless of verbosity.
func NewZerolog(w io.Writer, level zerolog.Level) Logger {
	return &zlogger{l: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// NewDefault returns a Logger writing Info-and-above to stderr. The
// translator never installs it by itself: when an embedder supplies no
// Config.Logger, logging is disabled.
func NewDefault() Logger {
	return NewZerolog(os.Stderr, zerolog.InfoLevel)
}

func (z *zlogger) with(ev *zerolog.Event, fields []Field) *zerolog.Event {
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	return ev
}

func (z *zlogger) Debug(msg string, fields ...Field) { z.with(z.l.Debug(), fields).Msg(msg) }
func (z *zlogger) Info(msg string, fields ...Field)  { z.with(z.l.Info(), fields).Msg(msg) }
func (z *zlogger) Warn(msg string, fields ...Field)  { z.with(z.l.Warn(), fields).Msg(msg) }
