package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "garagebridge"

// Logger wraps slog.Logger with bridge-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the output named in cfg.
//
// Output may be "stdout", "stderr" or a file path, which is opened for
// append. An unopenable file falls back to stderr with a warning entry.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var (
		output  io.Writer
		openErr error
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			output, openErr = os.Stderr, err
		} else {
			output = f
		}
	}

	l := NewWithWriter(output, cfg, version)
	if openErr != nil {
		l.Warn("log file unavailable, using stderr", "path", cfg.Output, "error", openErr)
	}
	return l
}

// NewWithWriter creates a Logger writing to w. Output in cfg is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	discoveryLog := logger.With("component", "discovery")
//	discoveryLog.Info("responder started") // Includes component=discovery
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Printer adapts a Logger to libraries that log through Println/Printf,
// such as the paho MQTT client.
type Printer struct {
	logger *Logger
	level  slog.Level
}

// Printer returns a printf-style sink writing entries at level.
func (l *Logger) Printer(level slog.Level) Printer {
	return Printer{logger: l, level: level}
}

// Printf writes a formatted entry.
func (p Printer) Printf(format string, v ...any) {
	p.logger.Log(context.Background(), p.level, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Println writes its operands separated by spaces.
func (p Printer) Println(v ...any) {
	p.logger.Log(context.Background(), p.level, strings.TrimSpace(fmt.Sprintln(v...)))
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
	}
}
