package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/quennel-io/hearthlink/internal/infrastructure/config"
)

// Logger is a thin wrapper over slog.Logger. Every line carries the
// service name and version so HearthLink's output can be filtered out
// of a shared journal. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the process logger from config. Format "text" is for a
// terminal; anything else produces JSON for log shippers. Output
// "stderr" keeps stdout clean; anything else writes to stdout.
//
// Unrecognised level strings fall back to info rather than failing,
// so a typo in config.yaml does not prevent startup.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return newWithWriter(cfg, version, w)
}

// newWithWriter is the real constructor; New only picks the stream.
func newWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "hearthlink"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

func levelFor(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child logger carrying extra default attributes.
// Subsystems tag themselves this way:
//
//	cloudLog := log.With("component", "cloud")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON info-level stdout logger for the window
// before config is loaded, when startup errors still need somewhere
// to go.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
