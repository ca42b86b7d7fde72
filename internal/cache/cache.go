// Package cache materializes songs into playable files on disk. Each song
// is downloaded and converted at most once, with bounded parallelism for
// both steps.
package cache

import (
	"context"
	"crypto/sha1" //nolint:gosec // file naming only
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/tags"
	"github.com/llehouerou/wavebot/internal/transcode"
)

const (
	finalExt    = ".wav"
	tmpSuffix   = ".tmp"
	partSuffix  = ".part"
	nativeInfix = ".src"

	defaultMaxDownloads   = 2
	defaultMaxConversions = 2
	defaultRetries        = 3
	defaultRetryDelay     = 500 * time.Millisecond
)

// Fetcher downloads the native audio of a song.
type Fetcher interface {
	// Fetch writes the audio of s to the file dst and returns the
	// extension matching its encoding, such as ".mp3". Errors worth
	// retrying must satisfy errors.Is(err, song.ErrTransient).
	Fetch(ctx context.Context, s *song.Song, dst string) (ext string, err error)
}

// Converter turns a downloaded file into the final playable file.
type Converter interface {
	Convert(ctx context.Context, src, dst string, t *tags.Tag) error
}

// Options configures a Cache.
type Options struct {
	Dir            string
	MaxDownloads   int
	MaxConversions int
	// Retries is the number of download attempts for transient errors.
	Retries    int
	RetryDelay time.Duration
	Converter  Converter
	Logger     zerolog.Logger
}

// Cache owns the song files of one directory.
type Cache struct {
	dir         string
	retries     int
	retryDelay  time.Duration
	converter   Converter
	logger      zerolog.Logger
	downloads   *semaphore.Weighted
	conversions *semaphore.Weighted
	group       singleflight.Group

	mu    sync.Mutex
	paths map[string]string // song key -> final path
}

// New creates the cache directory if needed.
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if opts.MaxDownloads <= 0 {
		opts.MaxDownloads = defaultMaxDownloads
	}
	if opts.MaxConversions <= 0 {
		opts.MaxConversions = defaultMaxConversions
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Converter == nil {
		opts.Converter = transcode.Transcoder{Normalize: true}
	}
	return &Cache{
		dir:         opts.Dir,
		retries:     opts.Retries,
		retryDelay:  opts.RetryDelay,
		converter:   opts.Converter,
		logger:      opts.Logger.With().Str("component", "cache").Logger(),
		downloads:   semaphore.NewWeighted(int64(opts.MaxDownloads)),
		conversions: semaphore.NewWeighted(int64(opts.MaxConversions)),
		paths:       make(map[string]string),
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Bind returns the materialization methods a provider exposes, backed by
// this cache and the given fetcher.
func (c *Cache) Bind(f Fetcher) *Binding {
	return &Binding{cache: c, fetcher: f}
}

// Binding implements Provider.Materialize and Provider.Materialized.
type Binding struct {
	cache   *Cache
	fetcher Fetcher
}

func (b *Binding) Materialize(ctx context.Context, s *song.Song) (string, error) {
	return b.cache.Load(ctx, s, b.fetcher)
}

func (b *Binding) Materialized(s *song.Song) bool {
	return b.cache.Has(s)
}

// Path returns where the playable file of s lives once loaded.
func (c *Cache) Path(s *song.Song) string {
	return filepath.Join(c.dir, baseName(s)+finalExt)
}

func baseName(s *song.Song) string {
	sum := sha1.Sum([]byte(s.Key())) //nolint:gosec // file naming only
	return s.Provider().Name() + "-" + hex.EncodeToString(sum[:10])
}

// Has reports whether s is loaded. Files left by a previous run count.
func (c *Cache) Has(s *song.Song) bool {
	_, ok := c.lookup(s)
	return ok
}

func (c *Cache) lookup(s *song.Song) (string, bool) {
	key := s.Key()
	c.mu.Lock()
	path, ok := c.paths[key]
	c.mu.Unlock()
	if ok {
		return path, true
	}

	path = c.Path(s)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	c.mu.Lock()
	c.paths[key] = path
	c.mu.Unlock()
	return path, true
}

// Load returns the playable file of s, downloading and converting it on
// first use. Concurrent calls for the same song share one pipeline run
// and its result; a failure is not remembered, so a later call retries.
func (c *Cache) Load(ctx context.Context, s *song.Song, f Fetcher) (string, error) {
	if path, ok := c.lookup(s); ok {
		return path, nil
	}

	ch := c.group.DoChan(s.Key(), func() (any, error) {
		// A concurrent run may have finished between lookup and DoChan.
		if path, ok := c.lookup(s); ok {
			return path, nil
		}
		path, err := c.materialize(ctx, s, f)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.paths[s.Key()] = path
		c.mu.Unlock()
		return path, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil //nolint:forcetypeassert // only strings are stored
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Cache) materialize(ctx context.Context, s *song.Song, f Fetcher) (string, error) {
	base := filepath.Join(c.dir, baseName(s))
	final := base + finalExt
	log := c.logger.With().Str("song", s.String()).Str("key", s.Key()).Logger()

	native, err := c.download(ctx, s, f, base, log)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", s, err)
	}
	defer os.Remove(native)

	if err := c.conversions.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.conversions.Release(1)

	log.Debug().Msg("converting")
	tmp := final + tmpSuffix
	meta := &tags.Tag{
		Title:      s.Title(),
		Artist:     s.Description(),
		Album:      s.Album(),
		ArtworkURL: s.ArtworkURL(),
		Source:     s.Provider().Name(),
		SourceID:   s.ID(),
	}
	if err := c.converter.Convert(ctx, native, tmp, meta); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("convert %s: %w", s, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("convert %s: %w", s, err)
	}
	log.Debug().Str("path", final).Msg("loaded")
	return final, nil
}

// download fetches the native file under a download permit, retrying
// transient failures, and returns its path.
func (c *Cache) download(
	ctx context.Context,
	s *song.Song,
	f Fetcher,
	base string,
	log zerolog.Logger,
) (string, error) {
	if err := c.downloads.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.downloads.Release(1)

	part := base + partSuffix
	var lastErr error
	for attempt := range c.retries {
		if attempt > 0 {
			log.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("retrying download")
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		log.Debug().Int("attempt", attempt+1).Msg("downloading")
		ext, err := f.Fetch(ctx, s, part)
		if err == nil {
			native := base + nativeInfix + ext
			if err := os.Rename(part, native); err != nil {
				os.Remove(part)
				return "", err
			}
			return native, nil
		}
		os.Remove(part)
		lastErr = err
		if !errors.Is(err, song.ErrTransient) || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func isFinal(name string) bool {
	return strings.HasSuffix(name, finalExt) && !strings.Contains(name, nativeInfix+".")
}

// Size returns the bytes used by loaded songs.
func (c *Cache) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isFinal(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// Prune deletes every loaded song except keep and returns how many files
// were removed. Files of loads in progress are left alone.
func (c *Cache) Prune(keep []*song.Song) (int, error) {
	kept := make(map[string]bool, len(keep))
	for _, s := range keep {
		kept[c.Path(s)] = true
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		path := filepath.Join(c.dir, e.Name())
		if e.IsDir() || !isFinal(e.Name()) || kept[path] {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	c.mu.Lock()
	for key, path := range c.paths {
		if !kept[path] {
			delete(c.paths, key)
		}
	}
	c.mu.Unlock()

	return removed, errors.Join(errs...)
}
