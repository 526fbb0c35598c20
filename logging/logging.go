// Package logging configures the process-wide slog handler.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and destination.
//
// Filename "-" writes to stdout, "stderr" to stderr, "" or "." discards
// output, anything else is a file rotated by size.
type Config struct {
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // rotated files to keep
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
	UTC        bool   `yaml:"utc"`
}

// LevelTrace is below slog.LevelDebug.
const LevelTrace = slog.LevelDebug - 4

var (
	mu      sync.Mutex
	closer  io.Closer
	current = slog.Default()
)

// ParseLevel converts TRACE, DEBUG, INFO, WARN or ERROR (any case) to a slog level.
// Unknown names map to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure installs a handler built from cfg as the default logger.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		closer.Close()
		closer = nil
	}

	var w io.Writer
	switch cfg.Filename {
	case "", ".":
		w = io.Discard
	case "-":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  !cfg.UTC,
		}
		w, closer = lj, lj
	}

	current = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.Any() == LevelTrace {
				a.Value = slog.StringValue("TRACE")
			}
			return a
		},
	}))
	slog.SetDefault(current)
}

// NewLog returns a logger writing to w at the given level, for tests and tools.
func NewLog(name string, w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})).With("logger", name)
}

// GetLog returns the current default logger tagged with name.
func GetLog(name string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return current.With("logger", name)
}

// Close releases the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}
