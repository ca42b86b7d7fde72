package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Hub is a Notifier that forwards every event to its sinks and
// subscriptions. Each sink runs on its own goroutine and sees events in
// order, so a slow sink never blocks the caller of Notify.
type Hub struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	subs   []*Subscription
	closed bool
	wg     conc.WaitGroup
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{logger: logger.With().Str("component", "notify").Logger()}
}

// Add registers a sink.
func (h *Hub) Add(n Notifier) {
	sub := h.subscribe(sinkBufferSize)
	if sub == nil {
		return
	}
	h.wg.Go(func() {
		for {
			select {
			case e := <-sub.Events:
				n.Notify(e)
			case <-sub.Done:
				// deliver what was queued before Close
				for {
					select {
					case e := <-sub.Events:
						n.Notify(e)
					default:
						return
					}
				}
			}
		}
	})
}

// Subscribe returns a channel subscription, typically for the UI.
func (h *Hub) Subscribe() *Subscription {
	return h.subscribe(eventBufferSize)
}

func (h *Hub) subscribe(size int) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := newSubscription(size)
	if h.closed {
		sub.close()
		return nil
	}
	h.subs = append(h.subs, sub)
	return sub
}

// Notify stamps the event and delivers it without blocking.
func (h *Hub) Notify(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.send(e) {
			h.logger.Warn().Stringer("event", e).Msg("subscriber full, event dropped")
		}
	}
}

// Close ends every subscription and waits for sinks to drain.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		sub.close()
	}
	h.subs = nil
	h.mu.Unlock()

	h.wg.Wait()
}

// Verify Hub implements Notifier at compile time.
var _ Notifier = (*Hub)(nil)
