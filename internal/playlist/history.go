package playlist

import (
	"slices"
	"sync"

	"github.com/llehouerou/wavebot/internal/song"
)

// DefaultHistorySize is the number of played songs remembered.
const DefaultHistorySize = 20

// History remembers the most recently played songs, oldest first.
type History struct {
	mu      sync.Mutex
	songs   []*song.Song
	maxSize int
}

// NewHistory creates a history holding at most maxSize songs.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = DefaultHistorySize
	}
	return &History{
		songs:   make([]*song.Song, 0, maxSize),
		maxSize: maxSize,
	}
}

// Push records a played song, evicting the oldest when full.
func (h *History) Push(s *song.Song) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.songs = append(h.songs, s)
	if excess := len(h.songs) - h.maxSize; excess > 0 {
		h.songs = slices.Delete(h.songs, 0, excess)
	}
}

// Songs returns a copy of the history, oldest first.
func (h *History) Songs() []*song.Song {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.songs)
}

// Last returns the most recently played song.
func (h *History) Last() *song.Song {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.songs) == 0 {
		return nil
	}
	return h.songs[len(h.songs)-1]
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.songs)
}

func (h *History) Cap() int { return h.maxSize }
