// Package logger is the process-wide structured logger of wcstore.
//
// It wraps log/slog with a text or JSON handler selected at startup, a
// level that can be changed at runtime, and *Ctx variants that prepend the
// fields carried by a LogContext.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func (l Level) slog() slog.Level {
	return slog.Level((int(l) - int(LevelInfo)) * 4)
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelNames {
		if s == name {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// Config holds logger configuration.
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`   // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format" yaml:"format"` // text, json
	Output string `mapstructure:"output" yaml:"output"` // stdout, stderr, or file path
}

var (
	// level is shared by every handler, so SetLevel never rebuilds them.
	level slog.LevelVar

	mu       sync.RWMutex
	format             = "text"
	output   io.Writer = os.Stderr
	logFile  *os.File
	useColor bool
	slogger  *slog.Logger
)

func init() {
	useColor = isTerminal(os.Stderr.Fd())
	reconfigure()
}

// reconfigure rebuilds the handler from format, output and useColor.
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: &level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init applies cfg. Output is "stdout", "stderr" or a file path opened
// for appending; a previously opened log file is closed.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, color, f, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		mu.Lock()
		if logFile != nil {
			_ = logFile.Close()
		}
		output, useColor, logFile = w, color, f
		mu.Unlock()
	}

	if cfg.Format != "" {
		SetFormat(cfg.Format)
	} else {
		reconfigure()
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	return nil
}

func openOutput(dest string) (io.Writer, bool, *os.File, error) {
	switch strings.ToLower(dest) {
	case "stdout":
		return os.Stdout, isTerminal(os.Stdout.Fd()), nil, nil
	case "stderr":
		return os.Stderr, isTerminal(os.Stderr.Fd()), nil, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, false, nil, fmt.Errorf("failed to open log file %q: %w", dest, err)
	}
	return f, false, f, nil
}

// InitWithWriter sends output to w. Used by tests and embedders.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	output, useColor = w, enableColor
	mu.Unlock()

	if fmtName == "" {
		reconfigure()
	} else {
		SetFormat(fmtName)
	}
	if lvl != "" {
		SetLevel(lvl)
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := ParseLevel(name); ok {
		level.Set(l.slog())
	}
}

// SetFormat selects "text" or "json". Unknown formats are ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return
	}
	mu.Lock()
	format = name
	mu.Unlock()
	reconfigure()
}

// Enabled reports whether messages at l would be emitted.
func Enabled(l Level) bool {
	return l.slog() >= level.Level()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func logAt(ctx context.Context, l Level, msg string, args []any) {
	if !Enabled(l) {
		return
	}
	args = appendContextFields(ctx, args)
	current().Log(ctx, l.slog(), msg, args...)
}

// Debug logs msg with alternating key/value args.
func Debug(msg string, args ...any) { logAt(context.Background(), LevelDebug, msg, args) }

// Info logs msg with alternating key/value args.
func Info(msg string, args ...any) { logAt(context.Background(), LevelInfo, msg, args) }

// Warn logs msg with alternating key/value args.
func Warn(msg string, args ...any) { logAt(context.Background(), LevelWarn, msg, args) }

// Error logs msg with alternating key/value args.
func Error(msg string, args ...any) { logAt(context.Background(), LevelError, msg, args) }

// DebugCtx is Debug with the LogContext fields of ctx prepended.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, LevelDebug, msg, args)
}

// InfoCtx is Info with the LogContext fields of ctx prepended.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, LevelInfo, msg, args)
}

// WarnCtx is Warn with the LogContext fields of ctx prepended.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, LevelWarn, msg, args)
}

// ErrorCtx is Error with the LogContext fields of ctx prepended.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logAt(ctx, LevelError, msg, args)
}

// appendContextFields puts the LogContext fields of ctx ahead of args.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	return append(lc.args(), args...)
}

// With returns a logger with args bound to every record.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

// Duration returns the milliseconds elapsed since start.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
