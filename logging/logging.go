package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type Options struct {
	Level  string
	Prefix string
	// Writer defaults to stderr.
	Writer io.Writer
}

// New returns a logger with timestamps and the given level ("info" when empty
// or unknown).
func New(opts Options) *log.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "depthify"
	}
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          prefix,
	})
	l.SetLevel(ParseLevel(opts.Level))
	return l
}

// ParseLevel maps a config string to a level, falling back to info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Discard is a logger that drops everything, for tests and library callers
// that pass no logger.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}
