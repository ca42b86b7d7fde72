// Package player turns cached song files into audio output, one chunk at a
// time, so the caller controls pacing, pausing and skipping.
package player

import (
	"errors"
	"time"
)

var (
	// ErrDevice wraps failures of the audio output itself. These are fatal
	// to playback, unlike decode errors which only affect one track.
	ErrDevice = errors.New("audio device error")

	// ErrUnsupportedFormat is returned for files no decoder accepts.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Device is an audio output.
type Device interface {
	// Start opens path for output, replacing whatever was outputting.
	Start(path string) (Track, error)
	// Close releases the device.
	Close() error
}

// Track is a file being output chunk by chunk.
type Track interface {
	// WriteChunk outputs the next chunk of audio. It blocks while the
	// device is busy and reports done after the last chunk.
	WriteChunk() (done bool, err error)
	Position() time.Duration
	Duration() time.Duration
	Close() error
}
