package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog logger configured for stdout at info level.
func New() zerolog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a stdout logger at the given level. Unknown levels fall back to info.
func NewWithLevel(level string) zerolog.Logger {
	return NewWriter(os.Stdout, level)
}

// NewWriter returns a logger writing to w at the given level.
func NewWriter(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(value string) zerolog.Level {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "warning" {
		normalized = "warn"
	}
	switch normalized {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		level, err := zerolog.ParseLevel(normalized)
		if err == nil {
			return level
		}
	}
	return zerolog.InfoLevel
}
