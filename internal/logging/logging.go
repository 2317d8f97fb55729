// Package logging builds the slog loggers used by the taskgraph CLI and
// adapts them to core.Logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Swind/go-task-graph/core"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr by default (stdout is reserved for program output).
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to the given writer.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FileOptions configures a rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileWriter returns a size-rotated writer for opts.Path. Close it on exit.
func NewFileWriter(opts FileOptions) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}

// =============================================================================
// core.Logger adapter
// =============================================================================

// SlogAdapter implements core.Logger on top of a slog.Logger.
type SlogAdapter struct {
	l *slog.Logger
}

var _ core.Logger = (*SlogAdapter)(nil)

// NewSlogAdapter wraps l. A nil l uses slog.Default().
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAdapter{l: l}
}

func (a *SlogAdapter) Debug(msg string, fields ...core.Field) {
	a.log(slog.LevelDebug, msg, fields)
}

func (a *SlogAdapter) Info(msg string, fields ...core.Field) {
	a.log(slog.LevelInfo, msg, fields)
}

func (a *SlogAdapter) Warn(msg string, fields ...core.Field) {
	a.log(slog.LevelWarn, msg, fields)
}

func (a *SlogAdapter) Error(msg string, fields ...core.Field) {
	a.log(slog.LevelError, msg, fields)
}

func (a *SlogAdapter) log(level slog.Level, msg string, fields []core.Field) {
	ctx := context.Background()
	if !a.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	a.l.LogAttrs(ctx, level, msg, attrs...)
}
