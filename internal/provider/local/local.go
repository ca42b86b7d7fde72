// Package local serves songs from music folders on disk.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/cache"
	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/radio"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
	"github.com/llehouerou/wavebot/internal/tags"
)

// Name identifies the provider in song keys.
const Name = config.ProviderLocal

// Options configures the provider.
type Options struct {
	Folders []string
	Cache   *cache.Cache

	// Radio suggestions
	Radio        config.RadioConfig
	Similar      radio.SimilarFetcher
	SimilarCache *radio.Cache
	History      state.PlayedStore

	Logger zerolog.Logger
}

type entry struct {
	song *song.Song
	path string
}

// Provider indexes the music files of its folders. Song ids are paths
// relative to the folder holding the file.
type Provider struct {
	*cache.Binding

	folders []string
	logger  zerolog.Logger
	radio   *radio.Radio

	mu      sync.RWMutex
	entries []entry
	byID    map[string]entry
}

// New scans the folders and prepares the radio.
func New(ctx context.Context, opts Options) (*Provider, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("local provider: cache is required")
	}
	p := &Provider{
		folders: opts.Folders,
		logger:  opts.Logger.With().Str("component", "local").Logger(),
	}
	p.Binding = opts.Cache.Bind(p)
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	p.radio = radio.New(radio.Options{
		Catalog:  p,
		Similar:  opts.Similar,
		Cache:    opts.SimilarCache,
		History:  opts.History,
		Provider: Name,
		Config:   opts.Radio,
		Logger:   opts.Logger,
	})
	return p, nil
}

func (p *Provider) Name() string { return Name }

// Reload rescans the folders. Songs already known keep their identity.
func (p *Provider) Reload(ctx context.Context) error {
	p.mu.RLock()
	known := p.byID
	p.mu.RUnlock()

	byID := make(map[string]entry)
	covers := make(map[string]string)
	var entries []entry
	for _, folder := range p.folders {
		err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				p.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || !tags.IsMusicFile(path) {
				return nil
			}
			rel, err := filepath.Rel(folder, path)
			if err != nil {
				return nil //nolint:nilerr // path is always under folder
			}
			id := filepath.ToSlash(rel)
			if _, dup := byID[id]; dup {
				return nil
			}
			e, ok := known[id]
			if !ok || e.path != path {
				s, err := p.songFromFile(id, path, covers)
				if err != nil {
					return err
				}
				e = entry{song: s, path: path}
			}
			byID[id] = e
			entries = append(entries, e)
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", folder, err)
		}
	}

	p.mu.Lock()
	p.entries = entries
	p.byID = byID
	p.mu.Unlock()
	p.logger.Info().Int("songs", len(entries)).Msg("library scanned")
	return nil
}

func (p *Provider) songFromFile(id, path string, covers map[string]string) (*song.Song, error) {
	meta := song.Meta{Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	if cover := findCover(path, covers); cover != "" {
		meta.ArtworkURL = "file://" + cover
	}
	if t, err := tags.Read(path); err != nil {
		p.logger.Debug().Err(err).Str("path", path).Msg("no tags, using file name")
	} else {
		if t.Title != "" {
			meta.Title = t.Title
		}
		meta.Description = t.Artist
		meta.Album = t.Album
	}
	return song.New(id, p, meta)
}

// Songs returns every indexed song.
func (p *Provider) Songs() []*song.Song {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*song.Song, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.song
	}
	return out
}

// Search matches songs whose artist, title or album contain every word of
// query, ignoring case.
func (p *Provider) Search(ctx context.Context, query string, limit int) iter.Seq2[*song.Song, error] {
	words := strings.Fields(strings.ToLower(query))
	return func(yield func(*song.Song, error) bool) {
		if len(words) == 0 {
			return
		}
		n := 0
		for _, s := range p.Songs() {
			if limit > 0 && n >= limit {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			haystack := strings.ToLower(s.Description() + " " + s.Title() + " " + s.Album())
			if !allIn(words, haystack) {
				continue
			}
			n++
			if !yield(s, nil) {
				return
			}
		}
	}
}

func allIn(words []string, s string) bool {
	return !slices.ContainsFunc(words, func(w string) bool { return !strings.Contains(s, w) })
}

func (p *Provider) Lookup(_ context.Context, id string) (*song.Song, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", song.ErrNotFound, id)
	}
	return e.song, nil
}

// Fetch copies the library file into dst.
func (p *Provider) Fetch(ctx context.Context, s *song.Song, dst string) (string, error) {
	p.mu.RLock()
	e, ok := p.byID[s.ID()]
	p.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", song.ErrNotFound, s.ID())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(e.path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", err
	}
	return strings.ToLower(filepath.Ext(e.path)), out.Close()
}

func (p *Provider) Suggestions() (song.Suggester, bool) {
	return p.radio, true
}

var (
	_ song.Provider = (*Provider)(nil)
	_ cache.Fetcher = (*Provider)(nil)
	_ radio.Catalog = (*Provider)(nil)
)
