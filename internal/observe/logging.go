package observe

import (
	"io"
	"log/slog"
	"os"
)

// LoggingConfig controls the process-wide slog setup.
type LoggingConfig struct {
	// Level is the initial log level ("debug", "info", "warn", "error").
	// Unrecognised or empty values fall back to info.
	Level string

	// JSON selects the JSON handler instead of the human-readable text one.
	JSON bool

	// Output overrides the log destination. Default: os.Stderr.
	Output io.Writer
}

// InitLogging installs the process-wide slog default handler and returns the
// [slog.LevelVar] driving it, so the level can be changed at runtime (e.g.
// from a config reload).
func InitLogging(cfg LoggingConfig) *slog.LevelVar {
	level := &slog.LevelVar{}
	level.Set(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return level
}

// ParseLevel maps a config log level string to a slog.Level. Unknown values
// map to info.
func ParseLevel(s string) slog.Level {
	switch s {
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
