// Package logging holds the slog conventions shared by every component.
//
// Loggers are dependency-injected, never global: main() builds the base
// handler once and components receive a *slog.Logger at construction,
// scoping it with With(). A nil logger means "log nothing" and resolves
// to a discard logger, so components never have to nil-check.
//
// Logging is intentionally sparse. Lifecycle boundaries (start, stop,
// fatal errors) are the intended log points; nothing logs per message on
// the ingest path except guarded debug statements.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default resolves an optional logger parameter: the logger itself when
// non-nil, a discard logger otherwise.
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ParseLevel converts a level name (debug, info, warn, error) to a
// slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// NewHandler builds the base handler for main(). Format is "text" or
// "json".
func NewHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}
