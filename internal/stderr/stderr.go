//go:build !windows

// Package stderr captures output that C libraries (ALSA, oto) write
// directly to file descriptor 2 and forwards it to the logger, so it does
// not corrupt the TUI.
package stderr

import (
	"os"
	"syscall"

	"github.com/rs/zerolog"
)

// Capture redirects file descriptor 2 until Stop.
type Capture struct {
	orig int
	r, w *os.File
	done chan struct{}
}

// Start begins capturing stderr into logger. It must run before any C
// library initializes. On error the program can continue uncaptured.
func Start(logger zerolog.Logger) (*Capture, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	orig, err := syscall.Dup(int(os.Stderr.Fd()))
	if err != nil {
		r.Close()
		w.Close()
		return nil, err
	}

	if err := syscall.Dup2(int(w.Fd()), int(os.Stderr.Fd())); err != nil {
		syscall.Close(orig)
		r.Close()
		w.Close()
		return nil, err
	}

	c := &Capture{orig: orig, r: r, w: w, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		forward(r, logger)
	}()
	return c, nil
}

// WriteOriginal writes to the real stderr, bypassing the capture.
func (c *Capture) WriteOriginal(msg string) {
	if c == nil {
		_, _ = os.Stderr.WriteString(msg)
		return
	}
	_, _ = syscall.Write(c.orig, []byte(msg))
}

// Stop restores the original stderr and waits for pending lines.
func (c *Capture) Stop() {
	if c == nil {
		return
	}
	_ = syscall.Dup2(c.orig, int(os.Stderr.Fd()))
	_ = syscall.Close(c.orig)
	c.w.Close()
	<-c.done
	c.r.Close()
}
