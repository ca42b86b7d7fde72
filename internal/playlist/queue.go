// Package playlist holds the songs waiting to be played and the songs
// that were played recently.
package playlist

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/song"
)

var (
	// ErrIndexOutOfRange is returned for positions outside the queue.
	ErrIndexOutOfRange = errors.New("queue index out of range")
	// ErrEmpty is returned by Pop when nothing is queued and there is no
	// suggester to fall back to.
	ErrEmpty = errors.New("queue is empty")
	// ErrClosed is returned once the queue is closed.
	ErrClosed = errors.New("queue is closed")
)

const defaultRetryDelay = 5 * time.Second

// Option configures a Queue.
type Option func(*Queue)

// WithNotifier sets where queue events are sent.
func WithNotifier(n notify.Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(q *Queue) { q.logger = l.With().Str("component", "queue").Logger() }
}

// WithRetryDelay sets how long the prefetcher waits after a failure.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) { q.retryDelay = d }
}

// Queue is the ordered list of songs waiting to be played. Appended songs
// are materialized in the background. When the queue runs dry, Pop falls
// back to the suggester, whose next song is kept materialized ahead of
// time by a prefetch goroutine.
type Queue struct {
	suggester  song.Suggester
	notifier   notify.Notifier
	logger     zerolog.Logger
	retryDelay time.Duration

	mu     sync.Mutex
	songs  []*song.Song
	warm   *song.Song
	closed bool

	ctx          context.Context //nolint:containedctx // lifetime of background loads
	cancel       context.CancelFunc
	loads        conc.WaitGroup
	refill       chan struct{}
	changed      chan struct{}
	prefetchDone chan struct{}
	refills      atomic.Int32
}

// New creates a queue and starts prefetching from sg. sg may be nil, in
// which case Pop on an empty queue fails with ErrEmpty.
func New(sg song.Suggester, opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		suggester:    sg,
		notifier:     notify.Nop{},
		logger:       zerolog.Nop(),
		retryDelay:   defaultRetryDelay,
		ctx:          ctx,
		cancel:       cancel,
		refill:       make(chan struct{}, 1),
		changed:      make(chan struct{}, 1),
		prefetchDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if sg == nil {
		close(q.prefetchDone)
	} else {
		go q.prefetch()
	}
	return q
}

// Append adds s to the tail unless a song with the same key is already
// queued. It returns false for duplicates. The song is materialized in
// the background and announced once ready.
func (q *Queue) Append(s *song.Song) bool {
	return q.add(s, nil)
}

// AppendBy is Append that records requestedBy on s once it is accepted.
// A rejected duplicate keeps its requester.
func (q *Queue) AppendBy(s *song.Song, requestedBy string) bool {
	return q.add(s, func() { s.SetRequestedBy(requestedBy) })
}

func (q *Queue) add(s *song.Song, accepted func()) bool {
	q.mu.Lock()
	if q.closed || slices.ContainsFunc(q.songs, s.Equal) {
		q.mu.Unlock()
		return false
	}
	if accepted != nil {
		accepted()
	}
	q.songs = append(q.songs, s)
	// registered before unlocking so Close cannot start waiting first
	q.loads.Go(func() {
		if !q.load(s) {
			return
		}
		if q.suggester != nil {
			q.suggester.Remove(s)
		}
		q.notifier.Notify(notify.Event{Cause: notify.QueueAdd, Song: s})
	})
	q.mu.Unlock()

	q.signalChanged()
	return true
}

// Insert puts s at index, clamped to the queue bounds. Duplicates are
// not checked.
func (q *Queue) Insert(index int, s *song.Song) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	index = max(0, min(index, len(q.songs)))
	q.songs = slices.Insert(q.songs, index, s)
	q.loads.Go(func() { q.load(s) })
	q.mu.Unlock()

	q.signalChanged()
}

func (q *Queue) load(s *song.Song) bool {
	if _, err := s.Load(q.ctx); err != nil {
		if q.ctx.Err() == nil {
			q.logger.Warn().Err(err).Str("song", s.String()).Msg("background load failed")
			q.notifier.Notify(notify.Event{Cause: notify.LoadFailed, Song: s, Err: err})
		}
		return false
	}
	return true
}

// Pop removes and returns the song at index. Popping index 0 means the
// song is about to play, so its provider is told it was played. On an
// empty queue the next suggestion is returned instead and the prefetcher
// is asked to warm up a new one.
func (q *Queue) Pop(ctx context.Context, index int) (*song.Song, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if len(q.songs) > 0 {
		if index < 0 || index >= len(q.songs) {
			q.mu.Unlock()
			return nil, ErrIndexOutOfRange
		}
		s := q.songs[index]
		q.songs = slices.Delete(q.songs, index, index+1)
		q.mu.Unlock()
		if index == 0 {
			markPlayed(ctx, s)
		}
		return s, nil
	}
	q.mu.Unlock()

	if index != 0 {
		return nil, ErrIndexOutOfRange
	}
	if q.suggester == nil {
		return nil, ErrEmpty
	}
	s, err := q.suggester.Next(ctx)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	if q.warm != nil && q.warm.Equal(s) {
		q.warm = nil
	}
	q.mu.Unlock()
	q.requestRefill()
	markPlayed(ctx, s)
	return s, nil
}

func markPlayed(ctx context.Context, s *song.Song) {
	if sg, ok := s.Provider().Suggestions(); ok {
		sg.Played(ctx, s)
	}
}

// Take removes and returns the song at index without marking it played.
func (q *Queue) Take(index int) (*song.Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.songs) {
		return nil, ErrIndexOutOfRange
	}
	s := q.songs[index]
	q.songs = slices.Delete(q.songs, index, index+1)
	return s, nil
}

// Remove drops the queued song with the same key as s.
func (q *Queue) Remove(s *song.Song) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := slices.IndexFunc(q.songs, s.Equal)
	if i < 0 {
		return false
	}
	q.songs = slices.Delete(q.songs, i, i+1)
	return true
}

// Move relocates the song at from to position to.
func (q *Queue) Move(from, to int) error {
	s, err := q.Take(from)
	if err != nil {
		return err
	}
	q.Insert(to, s)
	return nil
}

// Peek returns the song at index without removing it.
func (q *Queue) Peek(index int) (*song.Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.songs) {
		return nil, false
	}
	return q.songs[index], true
}

// Songs returns a snapshot of the queued songs.
func (q *Queue) Songs() []*song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.songs)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.songs)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.songs = nil
	q.mu.Unlock()
}

// Warm returns the prefetched suggestion, if any.
func (q *Queue) Warm() *song.Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.warm
}

// Changed is signalled when songs are added. It carries at most one
// pending signal.
func (q *Queue) Changed() <-chan struct{} {
	return q.changed
}

func (q *Queue) signalChanged() {
	select {
	case q.changed <- struct{}{}:
	default:
	}
}

func (q *Queue) requestRefill() {
	q.refills.Add(1)
	select {
	case q.refill <- struct{}{}:
	default:
	}
}

// prefetch keeps the next suggestion materialized. It loads one song,
// then sleeps until Pop consumes a suggestion.
func (q *Queue) prefetch() {
	defer close(q.prefetchDone)
	for {
		err := q.warmUp()
		if q.ctx.Err() != nil {
			return
		}
		wait := (<-chan time.Time)(nil)
		if err != nil {
			q.logger.Warn().Err(err).Dur("retry_in", q.retryDelay).Msg("prefetch failed")
			wait = time.After(q.retryDelay)
		}
		select {
		case <-q.refill:
		case <-wait:
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) warmUp() error {
	next, err := q.suggester.Peek(q.ctx, 1)
	if err != nil {
		return err
	}
	if len(next) == 0 {
		return song.ErrNoSuggestions
	}
	s := next[0]
	if _, err := s.Load(q.ctx); err != nil {
		return err
	}
	q.mu.Lock()
	q.warm = s
	q.mu.Unlock()
	q.logger.Debug().Str("song", s.String()).Msg("suggestion ready")
	return nil
}

// Close stops prefetching and background loads and waits for them.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	<-q.prefetchDone
	q.loads.Wait()
}
