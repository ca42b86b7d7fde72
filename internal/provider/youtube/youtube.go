// Package youtube serves songs from YouTube through yt-dlp.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"iter"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/song"
)

// Name identifies the provider in song keys.
const Name = "youtube"

const (
	songMemoSize   = 256
	maxSearchLimit = 50
)

// Options configures the provider.
type Options struct {
	Cache  *cache.Cache
	Runner Runner // default: the yt-dlp binary
	Logger zerolog.Logger
}

// Provider searches YouTube and extracts the audio of videos. It has no
// suggestions.
type Provider struct {
	*cache.Binding

	runner Runner
	logger zerolog.Logger
	songs  *lru.Cache[string, *song.Song]
}

// New creates the provider.
func New(opts Options) (*Provider, error) {
	if opts.Cache == nil {
		return nil, errors.New("youtube provider: cache is required")
	}
	songs, err := lru.New[string, *song.Song](songMemoSize)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		runner: opts.Runner,
		logger: opts.Logger.With().Str("component", "youtube").Logger(),
		songs:  songs,
	}
	if p.runner == nil {
		p.runner = cli{}
	}
	p.Binding = opts.Cache.Bind(p)
	return p, nil
}

func (p *Provider) Name() string { return Name }

func videoURL(id string) string { return "https://www.youtube.com/watch?v=" + id }

func thumbnailURL(id string) string { return "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg" }

func (p *Provider) songFromEntry(e entry) (*song.Song, error) {
	if s, ok := p.songs.Get(e.ID); ok {
		return s, nil
	}
	s, err := song.New(e.ID, p, song.Meta{
		Title:       e.Title,
		Description: e.Uploader,
		ArtworkURL:  thumbnailURL(e.ID),
		Duration:    e.Duration,
	})
	if err != nil {
		return nil, err
	}
	p.songs.Add(e.ID, s)
	return s, nil
}

// Search runs a single yt-dlp search for up to limit videos.
func (p *Provider) Search(ctx context.Context, query string, limit int) iter.Seq2[*song.Song, error] {
	return func(yield func(*song.Song, error) bool) {
		if query == "" {
			return
		}
		if limit <= 0 || limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		out, err := p.runner.Search(ctx, query, limit)
		if err != nil {
			yield(nil, fmt.Errorf("youtube search: %w", err))
			return
		}
		for _, e := range parseEntries(out) {
			s, err := p.songFromEntry(e)
			if err != nil {
				p.logger.Debug().Err(err).Str("id", e.ID).Msg("skipping result")
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

func (p *Provider) Lookup(ctx context.Context, id string) (*song.Song, error) {
	if s, ok := p.songs.Get(id); ok {
		return s, nil
	}
	out, err := p.runner.Metadata(ctx, videoURL(id))
	if err != nil {
		return nil, fmt.Errorf("youtube lookup %s: %w", id, err)
	}
	entries := parseEntries(out)
	if len(entries) == 0 {
		return nil, fmt.Errorf("youtube lookup %s: %w", id, errNoEntry)
	}
	e := entries[0]
	e.ID = id
	return p.songFromEntry(e)
}

// Fetch downloads the audio of the video as mp3.
func (p *Provider) Fetch(ctx context.Context, s *song.Song, dst string) (string, error) {
	if err := p.runner.Download(ctx, videoURL(s.ID()), dst); err != nil {
		return "", fmt.Errorf("youtube download %s: %w", s.ID(), err)
	}
	return ".mp3", nil
}

func (p *Provider) Suggestions() (song.Suggester, bool) { return nil, false }

var (
	_ song.Provider = (*Provider)(nil)
	_ cache.Fetcher = (*Provider)(nil)
)
