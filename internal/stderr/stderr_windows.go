//go:build windows

// Package stderr is a no-op on Windows, whose audio stack does not write
// to stderr.
package stderr

import (
	"os"

	"github.com/rs/zerolog"
)

type Capture struct{}

func Start(zerolog.Logger) (*Capture, error) {
	return &Capture{}, nil
}

func (c *Capture) WriteOriginal(msg string) {
	_, _ = os.Stderr.WriteString(msg)
}

func (c *Capture) Stop() {}
