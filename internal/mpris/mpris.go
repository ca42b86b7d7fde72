//go:build linux

// Package mpris exposes the player on the session bus as an MPRIS2 media
// player so desktop media keys and widgets can control it.
package mpris

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
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

// Adapter serves a Controller over D-Bus.
type Adapter struct {
	server *server.Server
}

// New creates the adapter and starts serving in the background.
func New(c Controller, logger zerolog.Logger) (*Adapter, error) {
	logger = logger.With().Str("component", "mpris").Logger()
	a := &Adapter{
		server: server.NewServer("wavebot", &rootAdapter{}, &playerAdapter{c: c}),
	}
	go func() {
		if err := a.server.Listen(); err != nil {
			logger.Warn().Err(err).Msg("mpris server stopped")
		}
	}()
	return a, nil
}

// Close releases the bus name.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error { return nil }
func (r *rootAdapter) Quit() error { return nil }
func (r *rootAdapter) CanQuit() (bool, error) { return false, nil }
func (r *rootAdapter) CanRaise() (bool, error) { return false, nil }
func (r *rootAdapter) HasTrackList() (bool, error) { return false, nil }
func (r *rootAdapter) Identity() (string, error) { return "Wavebot", nil }

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter.
type playerAdapter struct {
	c Controller
}

func (p *playerAdapter) Next() error {
	go p.c.Next()
	return nil
}

// Previous is not supported: played songs are not replayed.
func (p *playerAdapter) Previous() error { return nil }

func (p *playerAdapter) Pause() error {
	p.c.Pause()
	return nil
}

func (p *playerAdapter) PlayPause() error {
	p.c.Toggle()
	return nil
}

// Stop pauses; the bot keeps its queue.
func (p *playerAdapter) Stop() error {
	p.c.Pause()
	return nil
}

func (p *playerAdapter) Play() error {
	p.c.Resume()
	return nil
}

func (p *playerAdapter) Seek(types.Microseconds) error { return nil }

func (p *playerAdapter) SetPosition(string, types.Microseconds) error { return nil }

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(string) error { return nil }

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.c.State() {
	case playback.StatePlaying:
		return types.PlaybackStatusPlaying, nil
	case playback.StatePaused:
		return types.PlaybackStatusPaused, nil
	case playback.StateStopped:
		return types.PlaybackStatusStopped, nil
	}
	return types.PlaybackStatusStopped, nil
}

func (p *playerAdapter) Rate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) SetRate(float64) error { return nil }

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	s := p.c.CurrentSong()
	if s == nil {
		return types.Metadata{}, nil
	}
	meta := types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(s.Key())),
		Length:  types.Microseconds(s.Duration().Microseconds()),
		Title:   s.Title(),
		Album:   s.Album(),
		ArtUrl:  s.ArtworkURL(),
	}
	if artist := s.Description(); artist != "" {
		meta.Artist = []string{artist}
	}
	return meta, nil
}

func (p *playerAdapter) Volume() (float64, error) { return 1.0, nil }

func (p *playerAdapter) SetVolume(float64) error { return nil }

func (p *playerAdapter) Position() (int64, error) {
	return p.c.Position().Microseconds(), nil
}

func (p *playerAdapter) MinimumRate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) MaximumRate() (float64, error) { return 1.0, nil }

func (p *playerAdapter) CanGoNext() (bool, error) {
	return len(p.c.QueueSongs()) > 0 || p.c.Warm() != nil, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) { return false, nil }

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.c.CurrentSong() != nil, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return p.c.State().IsActive(), nil
}

func (p *playerAdapter) CanSeek() (bool, error) { return false, nil }

func (p *playerAdapter) CanControl() (bool, error) { return true, nil }

func formatTrackID(key string) string {
	h := fnv.New64a()
	h.Write([]byte(key))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}

var _ Controller = (*playback.Player)(nil)
