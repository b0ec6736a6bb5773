package logger

import (
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"

	"github.com/OpenTraceLab/OpenTraceBSC/internal/config"
)

// Levels holds the live level of every configured logger, in config order,
// and the log files opened for them.
type Levels struct {
	mu     sync.Mutex
	vars   []*slog.LevelVar
	files  []*os.File
	closed bool
}

// Setup builds one tint handler per configured output and installs the
// result as the slog default. With quiet set everything is discarded.
func Setup(configs []config.LoggerConfig, quiet bool) (*slog.Logger, *Levels) {
	levels := &Levels{}
	if quiet {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), levels
	}

	var handlers []slog.Handler

	for _, cfg := range configs {
		level := new(slog.LevelVar)
		level.Set(parseLogLevel(cfg.Level))
		levels.vars = append(levels.vars, level)

		hideTime := cfg.HideTime
		replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
			if hideTime && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}

		timeFormat, fileTimeFormat := "15:04:05.000", time.DateTime+".000"
		if cfg.TimeFormat != "" {
			timeFormat, fileTimeFormat = cfg.TimeFormat, cfg.TimeFormat
		}

		if cfg.Stdout {
			handlers = append(handlers, tint.NewHandler(os.Stdout, &tint.Options{
				NoColor:     !isatty.IsTerminal(os.Stdout.Fd()),
				Level:       level,
				AddSource:   cfg.Source,
				ReplaceAttr: replaceAttr,
				TimeFormat:  timeFormat,
			}))
		}

		if cfg.File != "" {
			dir := filepath.Dir(cfg.File)
			if err := os.MkdirAll(dir, 0755); err != nil {
				log.Printf("Failed to create log directory %s: %v", dir, err)
				continue
			}

			file, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				log.Printf("Failed to open log file %s: %v", cfg.File, err)
				continue
			}
			levels.files = append(levels.files, file)

			handlers = append(handlers, tint.NewHandler(file, &tint.Options{
				NoColor:     true,
				Level:       level,
				AddSource:   cfg.Source,
				ReplaceAttr: replaceAttr,
				TimeFormat:  fileTimeFormat,
			}))
		}
	}

	var logger *slog.Logger
	switch len(handlers) {
	case 0:
		logger = slog.New(tint.NewHandler(os.Stdout, nil))
	case 1:
		logger = slog.New(handlers[0])
	default:
		logger = slog.New(slogmulti.Fanout(handlers...))
	}

	slog.SetDefault(logger)
	return logger, levels
}

// Apply sets each logger's level from configs. It reports false, changing
// nothing, when the number of loggers differs from the one Setup saw; the
// outputs themselves are only chosen at startup.
func (l *Levels) Apply(configs []config.LoggerConfig) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(configs) != len(l.vars) {
		return false
	}
	for i, cfg := range configs {
		l.vars[i].Set(parseLogLevel(cfg.Level))
	}
	return true
}

// Level returns the current level of logger i.
func (l *Levels) Level(i int) slog.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.vars) {
		return slog.LevelInfo
	}
	return l.vars[i].Level()
}

// Close closes the log files.
func (l *Levels) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug", "verbose", "silly":
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
