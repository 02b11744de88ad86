// Package logging configures the diagnostic logger shared by the CLI and
// the hook entry points.
//
// Diagnostics go to stderr so hook output never pollutes git's stdout
// plumbing. The pretty handler is used on terminals; --json switches every
// command to structured records for machine consumers.
package logging

import (
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Options selects the level and encoding of the returned logger.
type Options struct {
	// Verbose lowers the level to debug; Quiet raises it to error.
	// Quiet wins when both are set.
	Verbose bool
	Quiet   bool

	// JSON emits slog JSON records instead of pretty terminal output.
	JSON bool

	// Writer overrides the destination. Defaults to os.Stderr.
	Writer io.Writer
}

// New builds the process logger.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	if opts.Quiet {
		level = slog.LevelError
	}

	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	h := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmLevel(level),
		ReportTimestamp: false,
	})
	return slog.New(h)
}

// Discard returns a logger that drops everything. Handy default for
// library constructors so callers can leave logging unset.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func charmLevel(level slog.Level) charmlog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmlog.DebugLevel
	case level >= slog.LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}
