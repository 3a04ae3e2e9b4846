// Package logger provides the structured logger used throughout the
// engine. It wraps log/slog behind a small interface so call sites never
// depend on the handler chain, and fans out to multiple destinations
// (stdout, an optional log file) via github.com/samber/slog-multi.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the logging surface the rest of the engine depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With returns a Logger that always includes the given key/value
	// attributes, e.g. the run identity while stepping through a build.
	With(args ...any) Logger
}

type options struct {
	debug   bool
	format  string
	quiet   bool
	writer  io.Writer
	logFile *os.File
}

// Option configures NewLogger.
type Option func(*options)

// WithDebug enables debug-level logging.
func WithDebug() Option {
	return func(o *options) { o.debug = true }
}

// WithFormat selects the slog handler format: "json" or "text" (default).
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// WithQuiet suppresses the stdout handler, useful in tests and when a
// log file is the only desired destination.
func WithQuiet() Option {
	return func(o *options) { o.quiet = true }
}

// WithWriter overrides the stdout destination, primarily for tests.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithLogFile adds a second fan-out destination.
func WithLogFile(f *os.File) Option {
	return func(o *options) { o.logFile = f }
}

type slogLogger struct {
	l *slog.Logger
}

// NewLogger builds a Logger from the given options, matching the
// functional-options shape the rest of this codebase uses.
func NewLogger(opts ...Option) Logger {
	o := &options{writer: os.Stdout, format: "text"}
	for _, opt := range opts {
		opt(o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: true}

	var handlers []slog.Handler
	if !o.quiet {
		handlers = append(handlers, newHandler(o.format, o.writer, handlerOpts))
	}
	if o.logFile != nil {
		handlers = append(handlers, newHandler(o.format, o.logFile, handlerOpts))
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(io.Discard, handlerOpts)
	case 1:
		h = handlers[0]
	default:
		h = slogmulti.Fanout(handlers...)
	}

	return &slogLogger{l: slog.New(h)}
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (s *slogLogger) Debug(msg string, args ...any) { s.logSkip(slog.LevelDebug, msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.logSkip(slog.LevelInfo, msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.logSkip(slog.LevelWarn, msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.logSkip(slog.LevelError, msg, args...) }

func (s *slogLogger) Debugf(format string, args ...any) {
	s.logSkip(slog.LevelDebug, sprintf(format, args...))
}
func (s *slogLogger) Infof(format string, args ...any) {
	s.logSkip(slog.LevelInfo, sprintf(format, args...))
}
func (s *slogLogger) Warnf(format string, args ...any) {
	s.logSkip(slog.LevelWarn, sprintf(format, args...))
}
func (s *slogLogger) Errorf(format string, args ...any) {
	s.logSkip(slog.LevelError, sprintf(format, args...))
}

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// logSkip records the log line with the source location of the caller of
// the public Debug/Info/.../Errorf method, not this helper.
func (s *slogLogger) logSkip(level slog.Level, msg string, args ...any) {
	if !s.l.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = s.l.Handler().Handle(context.Background(), r)
}

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
