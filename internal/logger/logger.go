// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"
)

var globalLogger *slog.Logger // The globally accessible logger

// ParseLevel maps a PHOENIX_LOG_LEVEL value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "critical":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level '%s'", s)
	}
}

// InitLogger configures the global logger for env. level overrides the
// environment's default level when non-empty. Output goes to out, or stdout
// when out is nil.
func InitLogger(env, level string, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}

	var handler slog.Handler
	var opts slog.HandlerOptions

	opts.AddSource = true
	opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		// Format time to RFC3339Nano for precision and consistency
		if a.Key == slog.TimeKey {
			a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339Nano))
		}
		return a
	}

	jsonOutput := true
	switch env {
	case "development":
		opts.Level = slog.LevelDebug
		jsonOutput = false
	case "development-json":
		opts.Level = slog.LevelDebug
	case "production", "staging":
		opts.Level = slog.LevelInfo
		opts.AddSource = false
	default:
		log.Printf("WARNING: Unknown APP_ENV '%s'. Defaulting to production logging.\n", env)
		opts.Level = slog.LevelInfo
	}

	if level != "" {
		if lvl, err := ParseLevel(level); err == nil {
			opts.Level = lvl
		} else {
			log.Printf("WARNING: %v. Keeping the %s default.\n", err, env)
		}
	}

	if jsonOutput {
		handler = slog.NewJSONHandler(out, &opts)
	} else {
		handler = slog.NewTextHandler(out, &opts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}

// L returns the global slog logger instance, initialising a development
// logger if InitLogger has not been called.
func L() *slog.Logger {
	if globalLogger == nil {
		InitLogger("development", "", nil)
		log.Println("WARNING: Logger accessed before explicit initialization. Using default development logger.")
	}
	return globalLogger
}
