package playback

import "sync"

const eventBufferSize = 16

// Subscription receives player events. Each channel is buffered; events
// that do not fit are dropped so a slow reader never stalls playback.
// Done is closed when the player closes.
type Subscription struct {
	StateChanged <-chan StateChange
	TrackChanged <-chan TrackChange
	QueueChanged <-chan QueueChange
	Error        <-chan ErrorEvent
	Done         <-chan struct{}

	state chan StateChange
	track chan TrackChange
	queue chan QueueChange
	err   chan ErrorEvent
	done  chan struct{}
	once  sync.Once
}

func newSubscription() *Subscription {
	s := &Subscription{
		state: make(chan StateChange, eventBufferSize),
		track: make(chan TrackChange, eventBufferSize),
		queue: make(chan QueueChange, eventBufferSize),
		err:   make(chan ErrorEvent, eventBufferSize),
		done:  make(chan struct{}),
	}
	s.StateChanged, s.TrackChanged, s.QueueChanged = s.state, s.track, s.queue
	s.Error, s.Done = s.err, s.done
	return s
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// offer sends e unless ch is full.
func offer[T any](ch chan<- T, e T) bool {
	select {
	case ch <- e:
		return true
	default:
		return false
	}
}

func (s *Subscription) sendState(e StateChange) { offer(s.state, e) }
func (s *Subscription) sendTrack(e TrackChange) { offer(s.track, e) }
func (s *Subscription) sendQueue(e QueueChange) { offer(s.queue, e) }
func (s *Subscription) sendError(e ErrorEvent) { offer(s.err, e) }
