package notify

const (
	eventBufferSize = 16
	sinkBufferSize  = 64
)

// Subscription delivers events over a buffered channel. Events are dropped
// when the subscriber falls behind.
type Subscription struct {
	Events <-chan Event
	Done   <-chan struct{}

	eventCh chan Event
	doneCh  chan struct{}
}

func newSubscription(size int) *Subscription {
	s := &Subscription{
		eventCh: make(chan Event, size),
		doneCh:  make(chan struct{}),
	}
	s.Events = s.eventCh
	s.Done = s.doneCh
	return s
}

// close signals subscribers to stop by closing doneCh.
func (s *Subscription) close() {
	close(s.doneCh)
}

// send delivers an event (non-blocking).
func (s *Subscription) send(e Event) bool {
	select {
	case s.eventCh <- e:
		return true
	default:
		return false
	}
}
