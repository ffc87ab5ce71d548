package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogOptions selects the handler for NewLogger.
type LogOptions struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	File   string // append to this file instead of stderr
}

// NewLogger builds the process logger. The returned closer releases the
// log file, if one was opened.
func NewLogger(opts LogOptions) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(defaultString(opts.Level, "info"))); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", opts.Level, err)
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log: %w", err)
		}
		out, closer = file, file
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(defaultString(opts.Format, "json")) {
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(handler), closer, nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
