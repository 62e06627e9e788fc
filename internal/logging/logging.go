// ABOUTME: Logger construction from the logging configuration.
// ABOUTME: Console output is colorized text or JSON; an optional rotating file receives text records.

package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/FndMG/mcp-api-wrapper/internal/config"
)

// ParseLevel maps a configured level name to a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch name {
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

// Setup builds the logger described by cfg. Console records go to console
// (os.Stdout when nil). The returned closer releases the log file, if any.
func Setup(cfg config.LoggingConfig, console io.Writer) (*slog.Logger, io.Closer, error) {
	if console == nil {
		console = os.Stdout
	}

	level := ParseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level})
	} else {
		handler = NewColorHandler(console, level)
	}

	if cfg.File.Path == "" {
		return slog.New(handler), nopCloser{}, nil
	}

	if dir := filepath.Dir(cfg.File.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    megabytes(cfg.File.MaxBytes),
		MaxBackups: cfg.File.BackupCount,
	}
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: ParseLevel(cfg.File.Level)})

	return slog.New(fanout{handler, fileHandler}), file, nil
}

// megabytes converts a byte limit to lumberjack's MB unit, rounding up.
func megabytes(n int64) int {
	if n <= 0 {
		return 0 // lumberjack default
	}
	const mb = 1 << 20
	return int((n + mb - 1) / mb)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
