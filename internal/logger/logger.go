// Package logger is the SDK's internal logging facility, built on log/slog.
//
// The SDK is embedded in a host application, so the default posture is
// quiet: WARN level, stderr, no color unless attached to a terminal. Host
// integrations raise verbosity through Init.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level is the minimum severity the logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stderr, stdout, or a file path
}

var (
	currentLevel atomic.Int32

	mu       sync.RWMutex
	slogger  *slog.Logger
	output   io.Writer = os.Stderr
	format             = "text"
	useColor bool
)

func init() {
	currentLevel.Store(int32(LevelWarn))
	useColor = isTerminal(os.Stderr.Fd())
	rebuild()
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// rebuild recreates the slog handler from current settings. Callers must
// not hold mu.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(Level(currentLevel.Load())))
	opts := &slog.HandlerOptions{Level: levelVar}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = NewTextHandler(output, opts, useColor)
	}
	slogger = slog.New(h)
}

// Init applies the given configuration. Output may be "stderr", "stdout",
// or a file path; files are opened in append mode.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var w io.Writer
		var color bool
		switch strings.ToLower(cfg.Output) {
		case "stderr":
			w, color = os.Stderr, isTerminal(os.Stderr.Fd())
		case "stdout":
			w, color = os.Stdout, isTerminal(os.Stdout.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file %q: %w", cfg.Output, err)
			}
			w, color = f, false
		}
		mu.Lock()
		output = w
		useColor = color
		mu.Unlock()
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	rebuild()
	return nil
}

// InitWithWriter points the logger at an arbitrary writer. Test helper.
func InitWithWriter(w io.Writer, level, fmtName string) {
	mu.Lock()
	output = w
	useColor = false
	mu.Unlock()
	if level != "" {
		SetLevel(level)
	}
	if fmtName != "" {
		SetFormat(fmtName)
	}
	rebuild()
}

// SetLevel sets the minimum level; unknown names are ignored.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	default:
		return
	}
	rebuild()
}

// SetFormat selects "text" or "json"; anything else is ignored.
func SetFormat(f string) {
	f = strings.ToLower(f)
	if f != "text" && f != "json" {
		return
	}
	mu.Lock()
	format = f
	mu.Unlock()
	rebuild()
}

func get() *slog.Logger {
	mu.RLock()
	l := slogger
	mu.RUnlock()
	return l
}

// Debug logs at debug level with structured fields:
// Debug("msg", "key", value, ...)
func Debug(msg string, args ...any) {
	if LevelDebug < Level(currentLevel.Load()) {
		return
	}
	get().Debug(msg, args...)
}

// Info logs at info level with structured fields.
func Info(msg string, args ...any) {
	if LevelInfo < Level(currentLevel.Load()) {
		return
	}
	get().Info(msg, args...)
}

// Warn logs at warn level with structured fields.
func Warn(msg string, args ...any) {
	if LevelWarn < Level(currentLevel.Load()) {
		return
	}
	get().Warn(msg, args...)
}

// Error logs at error level with structured fields.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// With returns a child logger with pre-bound attributes, typically
// With(KeyFeature, name) held by a per-feature component.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
