// Package logging builds the process logger from the [log] config section.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/config"
)

// Console is the file value that logs human-readable lines to stderr.
const Console = "-"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates the logger described by cfg. The returned closer releases
// the log file.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.File {
	case "":
		return zerolog.Nop(), closer, nil
	case Console:
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		w, closer = f, f
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), closer, nil
}
