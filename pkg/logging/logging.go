// Package logging configures log/slog for the gorelay binaries.
//
// Levels from most to least verbose: debug, info, warn, error. Debug output
// carries the source location of each record.
//
//	logger, err := logging.Setup(logging.Options{Level: "debug", Format: "json"})
//	logger.Info("user joined", "user", "alice")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how logging is configured.
type Options struct {
	Level  string    // see LevelNames (default: "info")
	Format string    // "text" or "json" (default: "text")
	Output io.Writer // default: os.Stdout
}

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func lookupLevel(level string) (slog.Level, bool) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(level))]
	return l, ok
}

// ParseLevel converts a level name to slog.Level, falling back to info.
func ParseLevel(level string) slog.Level {
	if l, ok := lookupLevel(level); ok {
		return l
	}
	return slog.LevelInfo
}

// Validate returns an error if the level string is not recognized.
func Validate(level string) error {
	if _, ok := lookupLevel(level); !ok {
		return fmt.Errorf("unknown log level %q (valid: %s)", level, LevelNames())
	}
	return nil
}

// LevelNames lists the accepted level names for flag help text.
func LevelNames() string {
	return "debug, info, warn, error"
}

// New builds a logger from opts without touching the global default.
func New(opts Options) (*slog.Logger, error) {
	level, ok := lookupLevel(opts.Level)
	if !ok {
		return nil, Validate(opts.Level)
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	ho := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	switch strings.ToLower(opts.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(out, ho)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(out, ho)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", opts.Format)
	}
}

// Setup installs the logger described by opts as the slog default and
// returns it. Call it early in main, before anything logs.
func Setup(opts Options) (*slog.Logger, error) {
	logger, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
