//go:build !linux

package mpris

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/playback"
	"github.com/llehouerou/wavebot/internal/song"
)

// Controller is the part of the player driven over MPRIS.
type Controller interface {
	Pause()
	Resume()
	Toggle()
	Next()
	State() playback.State
	CurrentSong() *song.Song
	Position() time.Duration
	QueueSongs() []*song.Song
	Warm() *song.Song
}

// Adapter is a no-op on non-Linux platforms.
type Adapter struct{}

// New returns a no-op adapter on non-Linux platforms.
func New(Controller, zerolog.Logger) (*Adapter, error) {
	return &Adapter{}, nil
}

func (a *Adapter) Close() error { return nil }

var _ Controller = (*playback.Player)(nil)
