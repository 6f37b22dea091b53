// Package logging defines the structured-logging interface used across the
// sending VASP. Backends wrap log/slog (default) or zap.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "lookup finished", "receiver", addr, "uma", true)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}

// Supported backends.
const (
	BackendSlog = "slog"
	BackendZap  = "zap"
)

// New builds a Logger for the given backend and level ("debug", "info",
// "warn", "error"). Output goes to w as JSON.
func New(backend, level string, w io.Writer) (Logger, error) {
	switch strings.ToLower(backend) {
	case "", BackendSlog:
		return NewJSONSlogLogger(w, level), nil
	case BackendZap:
		return NewZapLogger(level, w), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}
