package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler
type Format string

const (
	// FormatJSON writes one JSON object per record (default)
	FormatJSON Format = "json"
	// FormatText writes logfmt style records for local use
	FormatText Format = "text"
)

// GetLogLevel returns the log level based on the LOG_LEVEL environment variable.
// If LOG_LEVEL is not set or invalid, it defaults to Info level.
//
// Supported values (case-insensitive):
//   - DEBUG: slog.LevelDebug
//   - INFO: slog.LevelInfo
//   - WARN or WARNING: slog.LevelWarn
//   - ERROR: slog.LevelError
func GetLogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogFormat reads LOG_FORMAT, defaulting to JSON
func GetLogFormat() Format {
	if strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), string(FormatText)) {
		return FormatText
	}
	return FormatJSON
}

// New builds a logger writing to w with the level and format taken from the
// environment
func New(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: GetLogLevel()}

	var handler slog.Handler
	switch GetLogFormat() {
	case FormatText:
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
