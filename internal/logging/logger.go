package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tallybook/internal/config"

	"github.com/rs/zerolog"
)

// New builds the agent's root logger. Empty fields fall back to JSON at info
// level on stdout. The closer is nil unless output goes to a file.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = os.Stdout
		closer io.Closer
	)

	switch normalize(cfg.Output) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	case "file":
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		out, closer = f, f
	default:
		return nil, nil, fmt.Errorf("unknown logging output %q", cfg.Output)
	}

	if normalize(cfg.Format) == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	ctx := zerolog.New(out).Level(level).With().Timestamp().
		Str("app", app.Name).
		Str("env", app.Environment).
		Str("version", app.Version)
	if host, err := os.Hostname(); err == nil {
		// Several agents may share one queue file; the host tells their logs apart.
		ctx = ctx.Str("host", host)
	}
	logger := ctx.Logger()

	return &logger, closer, nil
}

// Component derives a sub-logger tagged with the component name.
// A nil parent yields a disabled logger so callers can skip nil checks.
func Component(parent *zerolog.Logger, name string) *zerolog.Logger {
	if parent == nil {
		nop := zerolog.Nop()
		return &nop
	}
	l := parent.With().Str("component", name).Logger()
	return &l
}

func parseLevel(s string) (zerolog.Level, error) {
	if normalize(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(normalize(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse logging level: %w", err)
	}
	return level, nil
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("logging.output=file requires logging.file_path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
