// Package song defines the lazily materialized track handle shared by
// providers, the queue and the player.
package song

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalid is returned when a song is built without an id or provider.
var ErrInvalid = errors.New("invalid song")

// Meta holds the descriptive attributes of a song.
type Meta struct {
	Title       string
	Description string // artist or subtitle
	Album       string
	ArtworkURL  string
	Duration    time.Duration
}

// Song is a provider-scoped handle to a playable track. The audio is
// fetched only when Load is called and is shared by every handle with
// the same provider and id.
type Song struct {
	id       string
	provider Provider
	meta     Meta

	mu          sync.RWMutex
	requestedBy string
}

// New creates a song handle.
func New(id string, p Provider, meta Meta) (*Song, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalid)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider for %q", ErrInvalid, id)
	}
	return &Song{id: id, provider: p, meta: meta}, nil
}

// ID returns the provider-scoped identifier.
func (s *Song) ID() string { return s.id }

// Key returns an identifier unique across providers.
func (s *Song) Key() string { return Key(s.provider.Name(), s.id) }

// Key builds the cross-provider key for a provider name and id.
func Key(provider, id string) string { return provider + ":" + id }

func (s *Song) Provider() Provider { return s.provider }

func (s *Song) Meta() Meta { return s.meta }

func (s *Song) Title() string { return s.meta.Title }

func (s *Song) Description() string { return s.meta.Description }

func (s *Song) Album() string { return s.meta.Album }

func (s *Song) ArtworkURL() string { return s.meta.ArtworkURL }

func (s *Song) Duration() time.Duration { return s.meta.Duration }

// RequestedBy returns who queued the song, empty for suggestions.
func (s *Song) RequestedBy() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestedBy
}

// SetRequestedBy annotates the song with the name of who queued it.
func (s *Song) SetRequestedBy(name string) {
	s.mu.Lock()
	s.requestedBy = name
	s.mu.Unlock()
}

// Load materializes the song to a local playable file and returns its path.
// Concurrent and repeated calls for the same song perform the work once.
func (s *Song) Load(ctx context.Context) (string, error) {
	return s.provider.Materialize(ctx, s)
}

// Loaded reports whether Load would return without doing any I/O.
func (s *Song) Loaded() bool {
	return s.provider.Materialized(s)
}

// Equal reports whether both handles point at the same provider track.
func (s *Song) Equal(o *Song) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Key() == o.Key()
}

func (s *Song) String() string {
	switch {
	case s.meta.Title != "" && s.meta.Description != "":
		return s.meta.Description + " - " + s.meta.Title
	case s.meta.Title != "":
		return s.meta.Title
	default:
		return "Unknown"
	}
}
