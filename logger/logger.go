// Package logger configures the structured logging of the fas command.
package logger

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel returns the level named s (debug, info, warn or error).
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// InitLogger installs a text logger writing to w as the default logger.
//
// An invalid level falls back to info with a warning.
func InitLogger(w io.Writer, level string) *slog.Logger {
	lvl, ok := ParseLevel(level)
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// a command line tool, the time is noise.
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(l)
	if !ok {
		l.Warn("invalid log level, defaulting to info", "level", level)
	}
	return l
}
