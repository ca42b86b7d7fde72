package subsonic

import (
	"context"
	"slices"
	"sync"

	"github.com/llehouerou/wavebot/internal/song"
	"github.com/llehouerou/wavebot/internal/state"
)

const (
	fetchSize    = 50
	playedWindow = 200
)

// suggester keeps a pool of upcoming songs similar to the last played one.
// When the server knows no similar songs, random songs are used instead.
// Recently played songs are never suggested.
type suggester struct {
	p       *Provider
	history state.PlayedStore

	mu     sync.Mutex
	pool   []*song.Song
	played []string // song ids, oldest first
}

func newSuggester(p *Provider, history state.PlayedStore) *suggester {
	sg := &suggester{p: p, history: history}
	sg.loadHistory()
	return sg
}

func (sg *suggester) loadHistory() {
	if sg.history == nil {
		return
	}
	rows, err := sg.history.RecentlyPlayed(playedWindow)
	if err != nil {
		sg.p.logger.Warn().Err(err).Msg("loading play history failed")
		return
	}
	for _, r := range slices.Backward(rows) {
		if r.Provider == Name {
			sg.played = append(sg.played, r.SongID)
		}
	}
}

func (sg *suggester) Next(ctx context.Context) (*song.Song, error) {
	if err := sg.ensure(ctx, 1); err != nil {
		return nil, err
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if len(sg.pool) == 0 {
		return nil, song.ErrNoSuggestions
	}
	s := sg.pool[0]
	sg.pool = sg.pool[1:]
	return s, nil
}

func (sg *suggester) Peek(ctx context.Context, n int) ([]*song.Song, error) {
	if err := sg.ensure(ctx, n); err != nil {
		return nil, err
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return slices.Clone(sg.pool[:min(n, len(sg.pool))]), nil
}

func (sg *suggester) Remove(s *song.Song) {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.pool = slices.DeleteFunc(sg.pool, s.Equal)
}

// Played remembers s. Songs of other providers are ignored.
func (sg *suggester) Played(_ context.Context, s *song.Song) {
	if s.Provider().Name() != Name {
		return
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.played = append(sg.played, s.ID())
	if excess := len(sg.played) - playedWindow; excess > 0 {
		sg.played = slices.Delete(sg.played, 0, excess)
	}
	sg.pool = slices.DeleteFunc(sg.pool, s.Equal)
}

func (sg *suggester) Reload(context.Context) error {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.pool = nil
	return nil
}

func (sg *suggester) Reset(context.Context) error {
	sg.mu.Lock()
	sg.pool = nil
	sg.played = nil
	sg.mu.Unlock()
	if sg.history != nil {
		return sg.history.ClearPlayed(Name)
	}
	return nil
}

// ensure fills the pool to at least n songs. Server calls run without
// holding the lock.
func (sg *suggester) ensure(ctx context.Context, n int) error {
	sg.mu.Lock()
	if len(sg.pool) >= n {
		sg.mu.Unlock()
		return nil
	}
	var seed string
	if len(sg.played) > 0 {
		seed = sg.played[len(sg.played)-1]
	}
	sg.mu.Unlock()

	if seed != "" {
		tracks, err := sg.p.client.SimilarSongs(ctx, seed, fetchSize)
		if err != nil {
			sg.p.logger.Warn().Err(err).Str("seed", seed).Msg("similar songs lookup failed")
		} else if sg.add(sg.p.songsFromTracks(tracks)) >= n {
			return nil
		}
	}

	tracks, err := sg.p.client.RandomSongs(ctx, fetchSize)
	if err != nil {
		return err
	}
	if sg.add(sg.p.songsFromTracks(tracks)) == 0 {
		return song.ErrNoSuggestions
	}
	return nil
}

// add appends the songs that are neither pooled nor recently played and
// returns the new pool size.
func (sg *suggester) add(songs []*song.Song) int {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	for _, s := range songs {
		if slices.Contains(sg.played, s.ID()) || slices.ContainsFunc(sg.pool, s.Equal) {
			continue
		}
		sg.pool = append(sg.pool, s)
	}
	return len(sg.pool)
}

var _ song.Suggester = (*suggester)(nil)
