package player

import "time"

// bridge is the streamer handed to the speaker. Chunks are pushed into it
// by the playback loop; when none is ready it plays silence, which is
// what pausing sounds like.
type bridge struct {
	ch  chan [][2]float64
	cur [][2]float64 // owned by the speaker goroutine
}

func newBridge(depth int) *bridge {
	return &bridge{ch: make(chan [][2]float64, depth)}
}

// push queues a chunk, blocking while the bridge is full. It returns
// false if the speaker did not drain anything within timeout.
func (b *bridge) push(chunk [][2]float64, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b.ch <- chunk:
		return true
	case <-timer.C:
		return false
	}
}

// flush drops pending audio. Callers must hold the speaker lock.
func (b *bridge) flush() {
	b.cur = nil
	for {
		select {
		case <-b.ch:
		default:
			return
		}
	}
}

func (b *bridge) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(b.cur) == 0 {
			select {
			case c := <-b.ch:
				b.cur = c
			default:
				clear(samples[filled:])
				return len(samples), true
			}
		}
		n := copy(samples[filled:], b.cur)
		b.cur = b.cur[n:]
		filled += n
	}
	return len(samples), true
}

func (b *bridge) Err() error { return nil }
