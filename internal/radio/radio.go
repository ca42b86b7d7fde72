// Package radio suggests songs from a catalog when nothing is queued,
// favoring artists similar to the last played one on Last.fm.
package radio

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/lastfm"
	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
)

const similarLimit = 50

// Catalog provides the songs the radio picks from.
type Catalog interface {
	Songs() []*song.Song
}

// Reloader is implemented by catalogs that can be rescanned.
type Reloader interface {
	Reload(ctx context.Context) error
}

// SimilarFetcher looks up artists similar to an artist.
type SimilarFetcher interface {
	GetSimilarArtists(artist string, limit int) ([]lastfm.SimilarArtist, error)
}

// Options configures a Radio.
type Options struct {
	Catalog  Catalog
	Similar  SimilarFetcher    // nil disables the similar artist boost
	Cache    *Cache            // optional cache of Similar results
	History  state.PlayedStore // optional, seeds and clears the played list
	Provider string            // provider name used to filter History
	Config   config.RadioConfig
	Logger   zerolog.Logger
	Rand     *rand.Rand
}

// Radio is a song.Suggester over a Catalog. It keeps a pool of picked
// songs; each pick is a weighted random draw where recently played songs
// are penalized and artists similar to the seed are boosted.
type Radio struct {
	catalog  Catalog
	similar  SimilarFetcher
	cache    *Cache
	history  state.PlayedStore
	provider string
	cfg      config.RadioConfig
	logger   zerolog.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	pool   []*song.Song
	recent []string // keys, oldest first
	seed   string   // artist of the last played song
}

// New creates a radio and seeds its played list from History.
func New(opts Options) *Radio {
	r := &Radio{
		catalog:  opts.Catalog,
		similar:  opts.Similar,
		cache:    opts.Cache,
		history:  opts.History,
		provider: opts.Provider,
		cfg:      opts.Config,
		logger:   opts.Logger.With().Str("component", "radio").Logger(),
		rng:      opts.Rand,
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // not security-sensitive
	}
	r.loadHistory()
	return r
}

func (r *Radio) loadHistory() {
	if r.history == nil {
		return
	}
	played, err := r.history.RecentlyPlayed(r.cfg.RecentWindow)
	if err != nil {
		r.logger.Warn().Err(err).Msg("reading play history failed")
		return
	}
	// newest first
	for i := len(played) - 1; i >= 0; i-- {
		p := played[i]
		if r.provider != "" && p.Provider != r.provider {
			continue
		}
		r.recent = append(r.recent, p.Key())
		r.seed = p.Artist
	}
}

// Seed returns the artist suggestions are currently based on.
func (r *Radio) Seed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seed
}

func (r *Radio) Next(ctx context.Context) (*song.Song, error) {
	if err := r.ensure(ctx, 1); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pool) == 0 {
		return nil, song.ErrNoSuggestions
	}
	s := r.pool[0]
	r.pool = slices.Delete(r.pool, 0, 1)
	return s, nil
}

func (r *Radio) Peek(ctx context.Context, n int) ([]*song.Song, error) {
	if err := r.ensure(ctx, n); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.pool[:min(n, len(r.pool))]), nil
}

func (r *Radio) Remove(s *song.Song) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = slices.DeleteFunc(r.pool, s.Equal)
}

// Played records s as recent and makes its artist the seed. When the seed
// changes, every pooled song but the next one is dropped so the pool is
// redrawn around the new artist.
func (r *Radio) Played(_ context.Context, s *song.Song) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = slices.DeleteFunc(r.pool, s.Equal)
	r.recent = append(r.recent, s.Key())
	if excess := len(r.recent) - r.cfg.RecentWindow; excess > 0 {
		r.recent = slices.Delete(r.recent, 0, excess)
	}
	if artist := s.Description(); artist != "" && artist != r.seed {
		r.seed = artist
		if len(r.pool) > 1 {
			r.pool = r.pool[:1]
		}
	}
}

// Reload rescans the catalog and drops the pool.
func (r *Radio) Reload(ctx context.Context) error {
	if rl, ok := r.catalog.(Reloader); ok {
		if err := rl.Reload(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.pool = nil
	r.mu.Unlock()
	return nil
}

// Reset drops the pool and forgets what was played.
func (r *Radio) Reset(_ context.Context) error {
	r.mu.Lock()
	r.pool = nil
	r.recent = nil
	r.seed = ""
	r.mu.Unlock()
	if r.history != nil {
		return r.history.ClearPlayed(r.provider)
	}
	return nil
}

// ensure tops the pool up to at least n songs.
func (r *Radio) ensure(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	enough := len(r.pool) >= n
	seed := r.seed
	r.mu.Unlock()
	if enough {
		return nil
	}

	similar := r.similarTo(seed)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pool) < n {
		r.fillLocked(similar, max(n, r.cfg.BufferSize)-len(r.pool))
	}
	return nil
}

// fillLocked draws count songs not already pooled using Efraimidis-Spirakis
// weighted sampling: each candidate gets key -log(u)/weight and the lowest
// keys win.
func (r *Radio) fillLocked(similar map[string]float64, count int) {
	type keyed struct {
		s   *song.Song
		key float64
	}
	var items []keyed
	for _, s := range r.catalog.Songs() {
		if slices.ContainsFunc(r.pool, s.Equal) {
			continue
		}
		w := r.weight(s, similar)
		items = append(items, keyed{s: s, key: -math.Log(1-r.rng.Float64()) / w})
	}
	slices.SortFunc(items, func(a, b keyed) int { return cmp.Compare(a.key, b.key) })
	for _, it := range items[:min(count, len(items))] {
		r.pool = append(r.pool, it.s)
	}
}

func (r *Radio) weight(s *song.Song, similar map[string]float64) float64 {
	w := 1.0
	if slices.Contains(r.recent, s.Key()) {
		w *= r.cfg.DecayFactor
	}
	if match, ok := similar[s.Description()]; ok {
		w *= 1 + (r.cfg.SimilarBoost-1)*max(match, 0.1)
	}
	return max(w, 1e-6)
}

// similarTo maps catalog artists to how similar they are to seed.
func (r *Radio) similarTo(seed string) map[string]float64 {
	if seed == "" || r.similar == nil {
		return nil
	}
	artists, err := r.similarArtists(seed)
	if err != nil {
		r.logger.Warn().Err(err).Str("seed", seed).Msg("similar artists lookup failed")
		return nil
	}
	if len(artists) == 0 {
		return nil
	}
	return matchArtists(artists, r.localArtists(), r.cfg.ArtistMatchThreshold)
}

// similarArtists returns similar artists from cache or fetches from API.
func (r *Radio) similarArtists(artist string) ([]lastfm.SimilarArtist, error) {
	if r.cache != nil {
		cached, ok, err := r.cache.Lookup(artist)
		if err != nil {
			r.logger.Debug().Err(err).Msg("reading similar artists cache failed")
		}
		if ok {
			return cached, nil
		}
	}

	similar, err := r.similar.GetSimilarArtists(artist, similarLimit)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Store(artist, similar); err != nil {
			r.logger.Debug().Err(err).Msg("caching similar artists failed")
		}
	}
	return similar, nil
}

func (r *Radio) localArtists() []string {
	artists := lo.Map(r.catalog.Songs(), func(s *song.Song, _ int) string { return s.Description() })
	return lo.Compact(lo.Uniq(artists))
}

var _ song.Suggester = (*Radio)(nil)
