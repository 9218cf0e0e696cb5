package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// levelEnv overrides the minimum log level; it accepts the slog level names
// (debug, info, warn, error).
const levelEnv = "FUNDING_LOG_LEVEL"

// Setup installs a JSON slog handler as the process default and returns a
// logger carrying the service and environment attributes. Keys are renamed to
// timestamp/severity/message so lines land in log collectors unmodified.
func Setup(service, env string) *slog.Logger {
	env = strings.TrimSpace(env)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: minimumLevel(env),
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				attr = slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	// Route the standard library logger through the same handler.
	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// minimumLevel resolves the handler threshold: the explicit override wins,
// production environments default to info, everything else logs debug.
func minimumLevel(env string) slog.Level {
	if raw := strings.TrimSpace(os.Getenv(levelEnv)); raw != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(raw)); err == nil {
			return level
		}
	}
	if strings.EqualFold(env, "production") || strings.EqualFold(env, "prod") {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
