// internal/song/fake.go
package song

import (
	"context"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Fake is an in-memory Provider and Suggester for tests.
type Fake struct {
	name string

	mu          sync.Mutex
	catalog     []*Song
	loaded      map[string]bool
	loadCalls   map[string]int
	loadErrs    map[string]error
	loadDelay   time.Duration
	loadGate    chan struct{}
	suggestions []*Song
	noSuggest   bool
	nextErr     error
	nextCalls   int
	peekCalls   int
	played      []*Song
	removed     []*Song
	resets      int
}

// NewFake creates a fake provider with the given name.
func NewFake(name string) *Fake {
	return &Fake{
		name:      name,
		loaded:    make(map[string]bool),
		loadCalls: make(map[string]int),
		loadErrs:  make(map[string]error),
	}
}

// Song adds a song to the catalog and returns it.
func (f *Fake) Song(id, title string) *Song {
	s, _ := New(id, f, Meta{Title: title, Description: "Artist " + id})
	f.mu.Lock()
	f.catalog = append(f.catalog, s)
	f.mu.Unlock()
	return s
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) Search(ctx context.Context, query string, limit int) iter.Seq2[*Song, error] {
	return func(yield func(*Song, error) bool) {
		f.mu.Lock()
		catalog := slices.Clone(f.catalog)
		f.mu.Unlock()
		n := 0
		for _, s := range catalog {
			if n >= limit {
				return
			}
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if !strings.Contains(strings.ToLower(s.Title()), strings.ToLower(query)) {
				continue
			}
			n++
			if !yield(s, nil) {
				return
			}
		}
	}
}

func (f *Fake) Lookup(_ context.Context, id string) (*Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.catalog {
		if s.ID() == id {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

func (f *Fake) Materialize(ctx context.Context, s *Song) (string, error) {
	f.mu.Lock()
	if f.loaded[s.ID()] {
		f.mu.Unlock()
		return f.path(s), nil
	}
	f.loadCalls[s.ID()]++
	delay, gate, err := f.loadDelay, f.loadGate, f.loadErrs[s.ID()]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.loaded[s.ID()] = true
	f.mu.Unlock()
	return f.path(s), nil
}

func (f *Fake) path(s *Song) string {
	return filepath.Join("/fake", f.name, s.ID()+".wav")
}

func (f *Fake) Materialized(s *Song) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded[s.ID()]
}

func (f *Fake) Suggestions() (Suggester, bool) {
	if f.noSuggest {
		return nil, false
	}
	return f, true
}

func (f *Fake) Next(_ context.Context) (*Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCalls++
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	if len(f.suggestions) == 0 {
		return nil, ErrNoSuggestions
	}
	s := f.suggestions[0]
	f.suggestions = f.suggestions[1:]
	return s, nil
}

func (f *Fake) Peek(_ context.Context, n int) ([]*Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peekCalls++
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	n = min(n, len(f.suggestions))
	return slices.Clone(f.suggestions[:n]), nil
}

func (f *Fake) Remove(s *Song) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, s)
	f.suggestions = slices.DeleteFunc(f.suggestions, s.Equal)
}

func (f *Fake) Played(_ context.Context, s *Song) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, s)
}

func (f *Fake) Reload(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions = nil
	return nil
}

func (f *Fake) Reset(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions = nil
	f.played = nil
	f.resets++
	return nil
}

// Test helpers

// Suggest appends songs to the suggestion stream.
func (f *Fake) Suggest(songs ...*Song) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions = append(f.suggestions, songs...)
}

// DisableSuggestions makes Suggestions report no capability.
func (f *Fake) DisableSuggestions() { f.noSuggest = true }

// SetLoaded marks a song as already materialized.
func (f *Fake) SetLoaded(s *Song) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded[s.ID()] = true
}

// SetLoadError makes every load of s fail with err.
func (f *Fake) SetLoadError(s *Song, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErrs[s.ID()] = err
}

// SetLoadDelay delays every load.
func (f *Fake) SetLoadDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadDelay = d
}

// SetLoadGate blocks loads until gate is closed.
func (f *Fake) SetLoadGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadGate = gate
}

// SetNextError makes Next and Peek fail with err.
func (f *Fake) SetNextError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextErr = err
}

func (f *Fake) LoadCalls(s *Song) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadCalls[s.ID()]
}

func (f *Fake) NextCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextCalls
}

func (f *Fake) PeekCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peekCalls
}

func (f *Fake) PlayedSongs() []*Song {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.played)
}

func (f *Fake) RemovedSongs() []*Song {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.removed)
}

func (f *Fake) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Verify Fake implements the provider contracts at compile time.
var (
	_ Provider  = (*Fake)(nil)
	_ Suggester = (*Fake)(nil)
)
