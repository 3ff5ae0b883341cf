package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Version is stamped at build time via
// -ldflags "-X github.com/regulens/regulens/internal/observability/logging.Version=...".
var Version = "dev"

// NewJSONLogger builds the process-wide structured logger. Every line
// carries the service name and build version so api and worker output
// interleave cleanly in one aggregated stream.
func NewJSONLogger(service, level string) *slog.Logger {
	return New(os.Stdout, service, level)
}

// New is the writer-injected constructor behind NewJSONLogger. Debug
// level also records source positions.
func New(w io.Writer, service, level string) *slog.Logger {
	lvl := parseLevel(level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
	return slog.New(handler).With("service", service, "version", Version)
}

func parseLevel(level string) slog.Level {
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
