// internal/player/mock.go
package player

import (
	"slices"
	"sync"
	"time"
)

// Mock is a test double for Device. Each started track lasts a fixed
// number of chunks; a negative count never ends.
type Mock struct {
	mu         sync.Mutex
	chunks     int
	chunkDelay time.Duration
	startErr   map[string]error
	writeErr   error
	starts     []string
	written    int
	closed     bool
}

// NewMock creates a mock device whose tracks last three chunks.
func NewMock() *Mock {
	return &Mock{chunks: 3, startErr: make(map[string]error)}
}

func (m *Mock) Start(path string) (Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts = append(m.starts, path)
	if err := m.startErr[path]; err != nil {
		return nil, err
	}
	return &mockTrack{dev: m, left: m.chunks, endless: m.chunks < 0}, nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type mockTrack struct {
	dev     *Mock
	mu      sync.Mutex
	left    int
	endless bool
	pos     int
	closed  bool
}

func (t *mockTrack) WriteChunk() (bool, error) {
	t.dev.mu.Lock()
	delay, err := t.dev.chunkDelay, t.dev.writeErr
	t.dev.written++
	t.dev.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return true, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return true, nil
	}
	t.pos++
	if t.endless {
		return false, nil
	}
	t.left--
	return t.left <= 0, nil
}

func (t *mockTrack) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.pos) * time.Second
}

func (t *mockTrack) Duration() time.Duration { return 0 }

func (t *mockTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Test helpers

// SetChunks sets how many chunks new tracks last. Negative never ends.
func (m *Mock) SetChunks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = n
}

// SetChunkDelay makes every WriteChunk sleep for d.
func (m *Mock) SetChunkDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkDelay = d
}

// SetStartError makes Start fail for path.
func (m *Mock) SetStartError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr[path] = err
}

// SetWriteError makes every WriteChunk fail with err.
func (m *Mock) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// StartCalls returns the paths passed to Start, in order.
func (m *Mock) StartCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.starts)
}

// ChunksWritten returns the total number of WriteChunk calls.
func (m *Mock) ChunksWritten() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Verify Mock implements Device at compile time.
var _ Device = (*Mock)(nil)
