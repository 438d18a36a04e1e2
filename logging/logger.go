// Package logging provides the process-wide structured logger used across
// the module model, the event pipeline and the CLI. It mirrors the
// teacher's single-instance, logrus-backed logger: one configured instance,
// obtained via Std, that every package logs through.
package logging

import (
	"context"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config describes how the process-wide logger should be set up.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" json:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format" json:"format"`
	// Output is "stdout", "stderr", or a file path.
	Output string `yaml:"output" json:"output"`
}

// Logger wraps *logrus.Logger with the fields this toolkit always attaches.
type Logger struct {
	*logrus.Logger
}

var (
	std  *Logger
	once sync.Once
)

// Std returns the single process-wide logger, initializing it with sane
// defaults on first use.
func Std() *Logger {
	once.Do(func() {
		std = &Logger{Logger: logrus.New()}
		std.SetFormatter(&logrus.JSONFormatter{})
	})
	return std
}

// Init configures the process-wide logger. Safe to call once during
// startup; later calls re-apply settings to the same instance.
func Init(cfg Config) *Logger {
	l := Std()

	switch cfg.Level {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "warn":
		l.SetLevel(logrus.WarnLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	switch cfg.Format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "", "stdout":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.WithError(err).Warn("logging: falling back to stdout")
			l.SetOutput(os.Stdout)
			break
		}
		l.SetOutput(f)
	}

	return l
}

type ctxKey struct{}

// WithCorrelationID attaches a correlation id to ctx, propagated by the
// async dispatch worker pool so log lines for a given publication can be
// traced across the commit/after-commit boundary.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns a logger entry carrying the correlation id stashed by
// WithCorrelationID, if any.
func FromContext(ctx context.Context) *logrus.Entry {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return Std().WithField("correlation_id", id)
	}
	return Std().WithField("correlation_id", "")
}

// Errorf logs a formatted error-level line carrying the context's
// correlation id, mirroring the teacher's package-level logger.Errorf.
func Errorf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Errorf(format, args...)
}

// Warnf logs a formatted warn-level line.
func Warnf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Warnf(format, args...)
}

// Infof logs a formatted info-level line.
func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Infof(format, args...)
}
