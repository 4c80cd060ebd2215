package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options задает вывод логгера. Пустой File означает stdout.
type Options struct {
	Level      string
	Format     string // json|text
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns logger with level taken from opts.Level, overridden by LOG_LEVEL (default info).
// Closer is non-nil when logs go to a rotated file.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := parseLevel(opts.Level, slog.LevelInfo)
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = parseLevel(env, level)
	}

	var out io.Writer = os.Stdout
	var closer io.Closer
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out, closer = lj, lj
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		h = slog.NewTextHandler(out, hopts)
	} else {
		h = slog.NewJSONHandler(out, hopts)
	}
	return slog.New(h), closer
}

func parseLevel(v string, fallback slog.Level) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return fallback
	}
	return parsed
}
