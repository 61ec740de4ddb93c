// Package logging builds the process slog logger: a console handler plus
// rotating main and errors files.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/syntrixbase/warden/internal/config"
)

// Log file names inside LoggingConfig.File.Dir.
const (
	MainFile   = "warden.log"
	ErrorsFile = "warden-errors.log"
)

// Logs is a logger together with the files it writes to.
type Logs struct {
	Logger *slog.Logger
	files  []*lumberjack.Logger
}

// Initialize builds the logger and installs it as slog's default.
func Initialize(cfg config.LoggingConfig) (*Logs, error) {
	logs, err := New(cfg, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	slog.SetDefault(logs.Logger)
	slog.Info("Logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"dir", cfg.File.Dir,
		"console_enabled", cfg.Console.Enabled,
		"file_enabled", cfg.File.Enabled,
	)
	return logs, nil
}

// New creates a logger writing console output to console.
func New(cfg config.LoggingConfig, console io.Writer) (*Logs, error) {
	logs := &Logs{}
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		handlers = append(handlers, createHandler(console, cfg.Console.Format, parseLevel(cfg.Console.Level)))
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.File.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		main := logs.open(cfg, MainFile)
		handlers = append(handlers, createHandler(main, cfg.File.Format, parseLevel(cfg.File.Level)))

		// Warnings and errors are duplicated into their own file.
		errs := logs.open(cfg, ErrorsFile)
		handlers = append(handlers, NewLevelFilter(createHandler(errs, cfg.File.Format, slog.LevelWarn), slog.LevelWarn))
	}

	switch len(handlers) {
	case 0:
		logs.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		logs.Logger = slog.New(handlers[0])
	default:
		logs.Logger = slog.New(NewMultiHandler(handlers...))
	}
	return logs, nil
}

func (l *Logs) open(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	f := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.File.Dir, name),
		MaxSize:    cfg.File.MaxSizeMB,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAgeDays,
		Compress:   cfg.File.Compress,
	}
	l.files = append(l.files, f)
	return f
}

// Close closes all log files.
func (l *Logs) Close() error {
	var errs []error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", f.Filename, err))
		}
	}
	l.files = nil
	return errors.Join(errs...)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func createHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
