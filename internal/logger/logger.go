package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger that stamps every record with the service and
// host it came from.
func New(service, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	hostname, _ := os.Hostname()

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				a.Key = "timestamp"
				a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
			}
			return a
		},
	})
	return slog.New(handler).With("service", service, "hostname", hostname)
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
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

// Action derives a child logger for one unit of work.
func Action(l *slog.Logger, action string) *slog.Logger {
	return l.With("action", action)
}
