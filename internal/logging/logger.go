// Package logging holds the process-wide structured logger.
//
// Logs always go to stderr (or a caller-supplied writer) so that stdout stays
// reserved for the pivot table.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
	isInited bool
)

// Level is the logging verbosity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Config holds logger configuration.
type Config struct {
	Level  Level
	Output io.Writer // nil means stderr
	Format string    // "json" or "text"
}

// ParseLevel maps a case-insensitive name to a Level.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	case "":
		return LevelInfo, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init replaces the global logger. Unlike a library logger it may be called
// more than once; the CLI calls it after flags are parsed.
func Init(cfg Config) {
	w := cfg.Output
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slog()}

	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	loggerMu.Lock()
	logger = slog.New(h)
	isInited = true
	loggerMu.Unlock()
}

// GetLogger returns the current logger, initialising a text logger at info
// level on first use.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	if isInited {
		l := logger
		loggerMu.RUnlock()
		return l
	}
	loggerMu.RUnlock()

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if !isInited {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		isInited = true
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { GetLogger().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { GetLogger().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { GetLogger().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { GetLogger().Error(msg, args...) }
