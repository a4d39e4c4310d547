// Package logging wraps structured logging behind a Port interface so
// the rest of the core depends on an interface, not a concrete
// *slog.Logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Port is the logging contract the domain/application/provider layers
// depend on.
type Port interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Port
}

type slogPort struct {
	l *slog.Logger
}

func (s slogPort) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogPort) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogPort) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogPort) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s slogPort) With(args ...any) Port         { return slogPort{l: s.l.With(args...)} }

// DefaultLogger returns a stderr text-handler logger, debug level when
// verbose is set.
func DefaultLogger(verbose bool) Port {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slogPort{l: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// DefaultFileLogger writes to an arbitrary io.Writer (a log file opened
// by the caller).
func DefaultFileLogger(verbose bool, file io.Writer) Port {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slogPort{l: slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))}
}

// NoOpLogger discards everything; used by tests and as the default when
// a constructor (event bus, unit of work, provider context, strategies)
// is handed a nil logger.
func NoOpLogger() Port {
	return slogPort{l: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))}
}

type ctxKey struct{}

func FromContext(ctx context.Context) Port {
	if l, ok := ctx.Value(ctxKey{}).(Port); ok {
		return l
	}
	return NoOpLogger()
}

func ToContext(ctx context.Context, logger Port) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}
