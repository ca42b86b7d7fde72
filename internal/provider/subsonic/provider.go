package subsonic

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
)

// Name identifies the provider in song keys.
const Name = config.ProviderSubsonic

const (
	songMemoSize   = 256
	searchPageSize = 50
	maxSearchPages = 10
)

// Options configures the provider.
type Options struct {
	Client  *Client
	Cache   *cache.Cache
	History state.PlayedStore // optional, seeds the played list
	Logger  zerolog.Logger
}

// Provider resolves songs through a Subsonic server and streams them into
// the cache.
type Provider struct {
	*cache.Binding

	client  *Client
	logger  zerolog.Logger
	songs   *lru.Cache[string, *song.Song]
	suggest *suggester
}

// New creates the provider.
func New(opts Options) (*Provider, error) {
	if opts.Client == nil || opts.Cache == nil {
		return nil, errors.New("subsonic provider: client and cache are required")
	}
	songs, err := lru.New[string, *song.Song](songMemoSize)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		client: opts.Client,
		logger: opts.Logger.With().Str("component", "subsonic").Logger(),
		songs:  songs,
	}
	p.Binding = opts.Cache.Bind(p)
	p.suggest = newSuggester(p, opts.History)
	return p, nil
}

func (p *Provider) Name() string { return Name }

// songFromTrack returns the memoized song for t, creating it if needed.
func (p *Provider) songFromTrack(t Track) (*song.Song, error) {
	if s, ok := p.songs.Get(t.ID); ok {
		return s, nil
	}
	s, err := song.New(t.ID, p, song.Meta{
		Title:       t.Title,
		Description: t.Artist,
		Album:       t.Album,
		ArtworkURL:  p.client.CoverArtURL(t.CoverArt),
		Duration:    time.Duration(t.Duration) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	p.songs.Add(t.ID, s)
	return s, nil
}

func (p *Provider) songsFromTracks(tracks []Track) []*song.Song {
	out := make([]*song.Song, 0, len(tracks))
	for _, t := range tracks {
		if t.IsVideo {
			continue
		}
		s, err := p.songFromTrack(t)
		if err != nil {
			p.logger.Debug().Err(err).Str("id", t.ID).Msg("skipping track")
			continue
		}
		out = append(out, s)
	}
	return out
}

// Search pages through search3 results until limit songs were yielded or
// the server runs out.
func (p *Provider) Search(ctx context.Context, query string, limit int) iter.Seq2[*song.Song, error] {
	return func(yield func(*song.Song, error) bool) {
		if query == "" {
			return
		}
		n := 0
		for page := range maxSearchPages {
			size := searchPageSize
			if limit > 0 {
				size = min(size, limit-n)
			}
			tracks, err := p.client.Search(ctx, query, size, page*searchPageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, s := range p.songsFromTracks(tracks) {
				n++
				if !yield(s, nil) {
					return
				}
				if limit > 0 && n >= limit {
					return
				}
			}
			if len(tracks) < size {
				return
			}
		}
	}
}

func (p *Provider) Lookup(ctx context.Context, id string) (*song.Song, error) {
	if s, ok := p.songs.Get(id); ok {
		return s, nil
	}
	t, err := p.client.Song(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.songFromTrack(t)
}

// Fetch streams the song into dst.
func (p *Provider) Fetch(ctx context.Context, s *song.Song, dst string) (string, error) {
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	ext, err := p.client.Stream(ctx, s.ID(), f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", s.ID(), err)
	}
	return ext, nil
}

func (p *Provider) Suggestions() (song.Suggester, bool) {
	return p.suggest, true
}

var (
	_ song.Provider = (*Provider)(nil)
	_ cache.Fetcher = (*Provider)(nil)
)
