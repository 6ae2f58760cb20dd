package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Log output formats
const (
	FormatTerminal = "terminal"
	FormatLogfmt   = "logfmt"
	FormatJSON     = "json"
)

// NewLogger builds a logger writing to stderr. Terminal output is coloured
// when stderr is a tty.
func NewLogger(cfg Logging) (log.Logger, error) {
	useColor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) &&
		os.Getenv("TERM") != "dumb"

	var out io.Writer = os.Stderr
	if useColor {
		out = colorable.NewColorableStderr()
	}
	return newLogger(out, useColor, cfg)
}

var levels = map[string]slog.Level{
	"trace":   log.LevelTrace,
	"debug":   log.LevelDebug,
	"info":    log.LevelInfo,
	"warn":    log.LevelWarn,
	"warning": log.LevelWarn,
	"error":   log.LevelError,
	"crit":    log.LevelCrit,
}

// ParseLevel maps a level name to a log level. Besides the names above it
// accepts anything slog understands, such as "DEBUG-2" or "info+1".
// An empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return log.LevelInfo, nil
	}
	if level, ok := levels[name]; ok {
		return level, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func newLogger(out io.Writer, useColor bool, cfg Logging) (log.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = log.JSONHandlerWithLevel(out, level)
	case FormatLogfmt:
		handler = log.LogfmtHandlerWithLevel(out, level)
	case FormatTerminal, "":
		handler = log.NewTerminalHandlerWithLevel(out, level, useColor)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return log.NewLogger(handler), nil
}
