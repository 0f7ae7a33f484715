package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

var (
	logger *slog.Logger

	// Info and Error are printf-style loggers for startup code; they write
	// through the same handler as slog.
	Info  *log.Logger
	Error *log.Logger
)

func init() {
	// Default to INFO level
	InitLogger("info")
}

// InitLogger initializes the global logger with the specified level and a
// text handler.
func InitLogger(level string) {
	InitLoggerWithFormat(level, "text")
}

// InitLoggerWithFormat initializes the global logger; format is "json" or
// "text" (anything else falls back to text).
func InitLoggerWithFormat(level string, format string) {
	initLogger(os.Stderr, level, format)
}

func initLogger(w io.Writer, level string, format string) {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)

	Info = slog.NewLogLogger(handler, slog.LevelInfo)
	Error = slog.NewLogLogger(handler, slog.LevelError)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the global logger instance
func GetLogger() *slog.Logger {
	return logger
}
