package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level     string
	Writer    io.Writer
	Component string
}

// NewLogger builds a JSON slog logger. Component, when set, is attached to
// every record so the supervisor, server and overlay logs can be told apart
// in a shared stream.
func NewLogger(opts Options) *slog.Logger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	h := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	lg := slog.New(h)
	if component := strings.TrimSpace(opts.Component); component != "" {
		lg = lg.With("component", component)
	}
	return lg
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
