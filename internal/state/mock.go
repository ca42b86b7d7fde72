// internal/state/mock.go
package state

import (
	"slices"
	"sync"
)

// Mock is an in-memory test double for Manager.
type Mock struct {
	mu        sync.Mutex
	played    []Played
	pending   []PendingScrobble
	nextID    int64
	recordErr error
}

// NewMock creates a new mock state manager for testing.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) RecordPlayed(p Played) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.nextID++
	p.ID = m.nextID
	m.played = append(m.played, p)
	return nil
}

func (m *Mock) RecentlyPlayed(n int) ([]Played, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.played)
	slices.Reverse(out)
	return out[:min(n, len(out))], nil
}

func (m *Mock) ClearPlayed(provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = slices.DeleteFunc(m.played, func(p Played) bool {
		return provider == "" || p.Provider == provider
	})
	return nil
}

func (m *Mock) AddPendingScrobble(s PendingScrobble) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.pending = append(m.pending, s)
	return nil
}

func (m *Mock) GetPendingScrobbles() ([]PendingScrobble, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.pending), nil
}

func (m *Mock) DeletePendingScrobble(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = slices.DeleteFunc(m.pending, func(s PendingScrobble) bool { return s.ID == id })
	return nil
}

func (m *Mock) UpdatePendingScrobbleAttempt(id int64, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.pending {
		if m.pending[i].ID == id {
			m.pending[i].Attempts++
			m.pending[i].LastError = errMsg
		}
	}
	return nil
}

func (m *Mock) DropExhaustedScrobbles(maxAttempts int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.pending)
	m.pending = slices.DeleteFunc(m.pending, func(s PendingScrobble) bool { return s.Attempts >= maxAttempts })
	return int64(before - len(m.pending)), nil
}

// Test helpers

// SetRecordError makes RecordPlayed fail with err.
func (m *Mock) SetRecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErr = err
}

// Verify Mock implements the stores at compile time.
var (
	_ PlayedStore   = (*Mock)(nil)
	_ ScrobbleStore = (*Mock)(nil)
)
