// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init configures the global slog default with the given level and format.
// If w is nil, os.Stdout is used. Format must be "text" or "json".
func Init(level slog.Level, format string, w io.Writer) {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Level maps the verbose switch to a slog level
func Level(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// New returns a logger with a "component" attribute for module-scoped logging.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
