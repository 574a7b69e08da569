// Package logging builds the process-wide slog handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Formats accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ParseLevel maps debug, info, warn and error to slog levels. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewHandler returns a colorized tint handler for text output and a JSON
// handler otherwise. An empty format picks text when out is a terminal.
func NewHandler(out io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch strings.ToLower(format) {
	case "":
		if isTerminal(out) {
			return newTextHandler(out, level, true), nil
		}
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
	case FormatText:
		return newTextHandler(out, level, isTerminal(out)), nil
	case FormatJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Setup installs the handler as the slog default.
func Setup(out io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	h, err := NewHandler(out, format, lvl)
	if err != nil {
		return nil, err
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func newTextHandler(out io.Writer, level slog.Level, color bool) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !color,
	})
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
