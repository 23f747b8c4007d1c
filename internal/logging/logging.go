// Package logging builds the slog loggers used by the binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the level and destination of a logger.
type Options struct {
	Level string
	// File, when set, receives rotated logs in addition to Stdout.
	File string
	// Stdout defaults to os.Stdout.
	Stdout io.Writer
}

// New returns a text logger and a close function for the rotating file, if any.
func New(opts Options) (*slog.Logger, func() error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	closeFn := func() error { return nil }
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Clean(opts.File),
			MaxSize:    32, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotator)
		closeFn = rotator.Close
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})
	return slog.New(handler), closeFn
}

// ParseLevel maps a level name to a slog level. Unknown names select info.
func ParseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
