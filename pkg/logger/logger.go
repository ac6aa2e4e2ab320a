package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"wabridge/pkg/config"
)

const (
	defaultFormat = "text"
	defaultLevel  = "info"
)

// New builds the application logger from config, honoring
// WABRIDGE_LOG_FORMAT and WABRIDGE_LOG_LEVEL overrides. Text format uses the
// charmbracelet handler; json uses the stock slog JSON handler.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if value := strings.TrimSpace(os.Getenv("WABRIDGE_LOG_FORMAT")); value != "" {
		format = strings.ToLower(value)
	}
	if format == "" {
		format = defaultFormat
	}
	if format != "json" && format != "text" {
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if format == "json" {
		handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
		return slog.New(handler), nil
	}

	pretty := charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLevel(level),
		ReportTimestamp: true,
		ReportCaller:    cfg.AddSource,
		Formatter:       charmLog.TextFormatter,
	})
	return slog.New(pretty), nil
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

func parseLevel(input string) (slog.Level, error) {
	levelText := strings.ToLower(strings.TrimSpace(input))
	if value := strings.TrimSpace(os.Getenv("WABRIDGE_LOG_LEVEL")); value != "" {
		levelText = strings.ToLower(value)
	}
	if levelText == "" {
		levelText = defaultLevel
	}

	switch levelText {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", levelText)
	}
}
