// Package logging provides structured logging for agentsync using slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Level aliases for convenience.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Options configures the logger behavior.
type Options struct {
	// Level sets the minimum log level. Defaults to LevelWarn so that routine
	// sync chatter stays out of CLI output unless --verbose is passed.
	Level slog.Level
	// Output sets the output destination. Defaults to os.Stderr.
	Output io.Writer
	// JSON enables JSON output format.
	JSON bool
	// AddSource includes source file and line in log output.
	AddSource bool
}

// DefaultOptions returns options suitable for CLI usage.
func DefaultOptions() Options {
	return Options{
		Level:  LevelWarn,
		Output: os.Stderr,
	}
}

// New creates a new logger with the given options.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	if opts.JSON {
		return slog.New(slog.NewJSONHandler(out, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts))
}

// Default returns the process-wide logger, creating it on first use.
func Default() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultOptions())
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger and installs it as slog's default.
func SetDefault(logger *slog.Logger) {
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// With returns a child of the default logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return Default().With(args...)
}

// WithContext returns the logger attached to ctx, or the default logger.
func WithContext(ctx context.Context) *slog.Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return Default()
}

// Debug logs at debug level using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at info level using the default logger.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at error level using the default logger.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

type loggerKey struct{}

// NewContext returns a context with the logger attached.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the logger from context, or nil if not present.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return nil
}

// Common attribute keys for consistent logging across the codebase.
const (
	KeyProvider  = "provider"
	KeyPath      = "path"
	KeyOperation = "operation"
	KeyContainer = "container"
	KeyCount     = "count"
	KeyError     = "error"
	KeyDuration  = "duration"
)

// Provider returns a slog attribute identifying an assistant provider.
func Provider(id string) slog.Attr {
	return slog.String(KeyProvider, id)
}

// Path returns a slog attribute for file path logging.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Operation returns a slog attribute for operation logging.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Container returns a slog attribute for the remote container (gist) id.
func Container(id string) slog.Attr {
	return slog.String(KeyContainer, id)
}

// Err returns a slog attribute for error logging. A nil error yields an
// empty attribute, which slog drops.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// Count returns a slog attribute for item counts.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Timer logs the elapsed time of an operation at debug level when the
// returned function is called.
//
//	defer logging.Timer("push")()
func Timer(op string) func() {
	start := time.Now()
	return func() {
		Debug("operation finished",
			Operation(op),
			slog.Duration(KeyDuration, time.Since(start)),
		)
	}
}
