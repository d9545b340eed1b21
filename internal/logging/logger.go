package logging

import (
	"log/slog"
	"os"
)

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// InitLogger initializes the global logger with the specified level and format.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
//
// Output always goes to stdout: the process runs under systemd and the
// journal is the only log sink.
func InitLogger(level, format string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// WithSeries returns a logger with an event_series field.
func WithSeries(seriesID string) *slog.Logger {
	return slog.Default().With("event_series", seriesID)
}

// WithUser returns a logger with a discord_user field.
func WithUser(discordID string) *slog.Logger {
	return slog.Default().With("discord_user", discordID)
}

// WithChannel returns a logger with a discord_channel field.
func WithChannel(channelID string) *slog.Logger {
	return slog.Default().With("discord_channel", channelID)
}
