// Package playback drives audio output from the song queue. A single
// playback loop streams the current song chunk by chunk and performs the
// end-of-track transition; commands from other goroutines pause, skip and
// edit the queue.
package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/player"
	"github.com/llehouerou/wavebot/internal/playlist"
	"github.com/llehouerou/wavebot/internal/song"
)

var (
	// ErrRunning is returned by Run when the loop was already started.
	ErrRunning = errors.New("player already running")
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("player closed")
	// ErrNoDevice is returned by New without an output device.
	ErrNoDevice = errors.New("no output device")
)

const defaultIdleDelay = 2 * time.Second

// Options configures a Player.
type Options struct {
	// Suggester feeds the queue when it runs dry. Optional.
	Suggester song.Suggester
	Device    player.Device
	Notifier  notify.Notifier
	// HistorySize bounds LastPlayed. Defaults to playlist.DefaultHistorySize.
	HistorySize int
	// IdleDelay is how long the loop waits before retrying when there is
	// nothing to play.
	IdleDelay time.Duration
	// RetryDelay is how long the prefetcher waits after a failed suggestion.
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

// Player plays queued songs one after another.
type Player struct {
	queue     *playlist.Queue
	history   *playlist.History
	device    player.Device
	notifier  notify.Notifier
	logger    zerolog.Logger
	idleDelay time.Duration

	ctx    context.Context //nolint:containedctx // lifetime of the loop and commands
	cancel context.CancelFunc

	// transMu serializes end-of-track transitions.
	transMu sync.Mutex

	mu      sync.Mutex
	gen     uint64 // transition token, bumped once per transition
	current *song.Song
	track   player.Track
	paused  bool
	running bool
	closed  bool
	err     error

	skip atomic.Bool // written under mu, read by the loop between chunks
	wake chan struct{}
	done chan struct{}

	subsMu sync.RWMutex
	subs   []*Subscription
}

// New creates a stopped player. Call Run to start playing.
func New(opts Options) (*Player, error) {
	if opts.Device == nil {
		return nil, ErrNoDevice
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = defaultIdleDelay
	}

	qopts := []playlist.Option{
		playlist.WithNotifier(opts.Notifier),
		playlist.WithLogger(opts.Logger),
	}
	if opts.RetryDelay > 0 {
		qopts = append(qopts, playlist.WithRetryDelay(opts.RetryDelay))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		queue:     playlist.New(opts.Suggester, qopts...),
		history:   playlist.NewHistory(opts.HistorySize),
		device:    opts.Device,
		notifier:  opts.Notifier,
		logger:    opts.Logger.With().Str("component", "player").Logger(),
		idleDelay: opts.IdleDelay,
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Queue appends s on behalf of requestedBy. It returns false if the song
// is already queued.
func (p *Player) Queue(s *song.Song, requestedBy string) bool {
	if !p.queue.AppendBy(s, requestedBy) {
		return false
	}
	p.logger.Debug().Str("song", s.String()).Str("requested_by", requestedBy).Msg("queued")
	p.emitQueue()
	return true
}

// QueueSongs returns a snapshot of the queue.
func (p *Player) QueueSongs() []*song.Song {
	return p.queue.Songs()
}

// Move relocates a queued song.
func (p *Player) Move(from, to int) error {
	if err := p.queue.Move(from, to); err != nil {
		return err
	}
	p.emitQueue()
	return nil
}

// SkipSong removes a queued song. The playing song is not affected; use
// Next for that.
func (p *Player) SkipSong(s *song.Song) bool {
	if !p.queue.Remove(s) {
		return false
	}
	p.notifier.Notify(notify.Event{Cause: notify.QueueRemove, Song: s})
	p.emitQueue()
	return true
}

// ClearQueue drops every queued song.
func (p *Player) ClearQueue() {
	p.queue.Clear()
	p.emitQueue()
}

// Pause holds output before the next chunk.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.current == nil || p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.mu.Unlock()

	p.emitState(StatePlaying, StatePaused)
	p.notifier.Notify(notify.Event{Cause: notify.StateChanged, Paused: true})
}

// Resume continues a paused song.
func (p *Player) Resume() {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = false
	p.mu.Unlock()

	p.signal()
	p.emitState(StatePaused, StatePlaying)
	p.notifier.Notify(notify.Event{Cause: notify.StateChanged})
}

// Toggle switches between playing and paused.
func (p *Player) Toggle() {
	if p.IsPaused() {
		p.Resume()
	} else {
		p.Pause()
	}
}

// Next stops the current song and plays the next one. Calls racing each
// other or the natural end of the song result in a single transition.
func (p *Player) Next() {
	p.mu.Lock()
	token := p.gen
	p.skip.Store(true)
	p.mu.Unlock()
	p.signal()

	err := p.onTrackEnd(token)
	switch {
	case err == nil, p.ctx.Err() != nil:
	case errors.Is(err, player.ErrDevice):
		p.fail(err)
	default:
		p.logger.Info().Err(err).Msg("nothing to play next")
	}
}

// CurrentSong returns the song being output, nil when stopped.
func (p *Player) CurrentSong() *song.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// LastPlayed returns recently started songs, oldest first.
func (p *Player) LastPlayed() []*song.Song {
	return p.history.Songs()
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Player) stateLocked() State {
	switch {
	case p.current == nil:
		return StateStopped
	case p.paused:
		return StatePaused
	default:
		return StatePlaying
	}
}

func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Position returns how far into the current song output is.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return 0
	}
	return p.track.Position()
}

// Warm returns the prefetched suggestion, if any.
func (p *Player) Warm() *song.Song {
	return p.queue.Warm()
}

// Subscribe creates a new event subscription.
func (p *Player) Subscribe() *Subscription {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	sub := newSubscription()
	if p.isClosed() {
		sub.close()
		return sub
	}
	p.subs = append(p.subs, sub)
	return sub
}

// Run starts the playback loop and returns immediately. The loop stops
// when ctx is done, on Close, or on an output device error, which is
// then reported by Err.
func (p *Player) Run(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case p.running:
		p.mu.Unlock()
		return ErrRunning
	}
	p.running = true
	p.mu.Unlock()

	stop := context.AfterFunc(ctx, p.cancel)
	go func() {
		defer close(p.done)
		defer stop()
		if err := p.loop(); err != nil {
			p.fail(err)
		}
	}()
	return nil
}

// Done is closed when the playback loop exits.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that stopped the playback loop.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close stops playback, waits for the loop and the queue's background
// work, and releases the device. It returns the error that stopped the
// loop, if any.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.Err()
	}
	p.closed = true
	running := p.running
	p.mu.Unlock()

	p.cancel()
	if running {
		<-p.done
	}
	// wait for a Next still transitioning
	p.transMu.Lock()
	p.transMu.Unlock() //nolint:staticcheck // barrier

	p.queue.Close()

	p.mu.Lock()
	track := p.track
	p.current, p.track = nil, nil
	p.mu.Unlock()
	if track != nil {
		track.Close()
	}

	p.subsMu.Lock()
	for _, sub := range p.subs {
		sub.close()
	}
	p.subs = nil
	p.subsMu.Unlock()

	if err := p.device.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("closing device")
	}
	return p.Err()
}

func (p *Player) loop() error {
	idle := false
	for {
		token, track := p.snapshot()
		if track != nil {
			if err := p.stream(token, track); err != nil {
				return err
			}
		}
		if p.ctx.Err() != nil {
			return nil
		}

		err := p.onTrackEnd(token)
		switch {
		case err == nil:
			idle = false
		case p.ctx.Err() != nil:
			return nil
		case errors.Is(err, player.ErrDevice):
			return err
		default:
			if !idle {
				p.logger.Info().Err(err).Msg("nothing to play, waiting")
				idle = true
			}
			p.wait()
		}
	}
}

// stream outputs track until it ends, a skip is requested or another
// transition replaced it.
func (p *Player) stream(token uint64, track player.Track) error {
	for {
		if p.ctx.Err() != nil || p.skip.Load() || p.generation() != token {
			return nil
		}
		if p.IsPaused() {
			select {
			case <-p.wake:
			case <-p.ctx.Done():
			}
			continue
		}
		done, err := track.WriteChunk()
		if err != nil {
			if errors.Is(err, player.ErrDevice) {
				return err
			}
			s := p.CurrentSong()
			ev := p.logger.Warn().Err(err)
			if s != nil {
				ev = ev.Str("song", s.String())
			}
			ev.Msg("output failed, skipping")
			p.emitError(ErrorEvent{Stage: StageOutput, Song: s, Err: err})
			return nil
		}
		if done {
			return nil
		}
	}
}

// wait blocks until the queue changes, a command wakes the loop or the
// idle delay passes.
func (p *Player) wait() {
	timer := time.NewTimer(p.idleDelay)
	defer timer.Stop()
	select {
	case <-p.queue.Changed():
	case <-p.wake:
	case <-timer.C:
	case <-p.ctx.Done():
	}
}

// onTrackEnd moves output to the next song. token is the generation the
// caller observed; if another transition already consumed it, this is a
// no-op.
func (p *Player) onTrackEnd(token uint64) error {
	p.transMu.Lock()
	defer p.transMu.Unlock()

	p.mu.Lock()
	if token != p.gen {
		p.mu.Unlock()
		return nil
	}
	prev := p.current
	p.mu.Unlock()

	s, track, err := p.startNext()
	if err != nil {
		p.mu.Lock()
		p.skip.Store(false)
		p.mu.Unlock()
		if prev != nil {
			p.stopOutput(prev)
		}
		return err
	}

	p.mu.Lock()
	before := p.stateLocked()
	p.gen++
	p.skip.Store(false)
	old := p.track
	p.current, p.track, p.paused = s, track, false
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}

	p.history.Push(s)
	p.logger.Info().Str("song", s.String()).Str("key", s.Key()).Msg("now playing")
	p.notifier.Notify(notify.Event{Cause: notify.NowPlaying, Song: s})
	p.emitTrack(TrackChange{Previous: prev, Current: s})
	p.emitQueue()
	if before != StatePlaying {
		p.emitState(before, StatePlaying)
	}
	p.signal()
	return nil
}

// startNext pops songs until one loads and starts. Songs that fail to
// load or decode are dropped.
func (p *Player) startNext() (*song.Song, player.Track, error) {
	for {
		s, err := p.pick()
		if err != nil {
			return nil, nil, err
		}
		path, err := s.Load(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return nil, nil, p.ctx.Err()
			}
			p.dropped(StageLoad, s, err)
			continue
		}
		track, err := p.device.Start(path)
		if err != nil {
			if errors.Is(err, player.ErrDevice) {
				return nil, nil, err
			}
			p.dropped(StageStart, s, err)
			continue
		}
		return s, track, nil
	}
}

// pick pops the next song. When the head is still downloading but the
// song behind it is ready, the ready one goes first.
func (p *Player) pick() (*song.Song, error) {
	if head, ok := p.queue.Peek(0); ok && !head.Loaded() {
		if second, ok := p.queue.Peek(1); ok && second.Loaded() {
			if err := p.queue.Move(1, 0); err == nil {
				p.logger.Debug().
					Str("ready", second.String()).
					Str("pending", head.String()).
					Msg("playing ready song first")
			}
		}
	}
	return p.queue.Pop(p.ctx, 0)
}

func (p *Player) dropped(stage Stage, s *song.Song, err error) {
	p.logger.Warn().Err(err).Str("stage", string(stage)).Str("song", s.String()).Msg("skipping song")
	p.notifier.Notify(notify.Event{Cause: notify.LoadFailed, Song: s, Err: err})
	p.emitError(ErrorEvent{Stage: stage, Song: s, Err: err})
}

func (p *Player) stopOutput(prev *song.Song) {
	p.mu.Lock()
	before := p.stateLocked()
	track := p.track
	p.current, p.track, p.paused = nil, nil, false
	p.mu.Unlock()
	if track != nil {
		track.Close()
	}
	p.emitTrack(TrackChange{Previous: prev})
	if before != StateStopped {
		p.emitState(before, StateStopped)
	}
}

func (p *Player) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
	p.logger.Error().Err(err).Msg("playback stopped")
	p.emitError(ErrorEvent{Stage: StageOutput, Song: p.CurrentSong(), Err: err})
	p.cancel()
}

func (p *Player) snapshot() (uint64, player.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen, p.track
}

func (p *Player) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

func (p *Player) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) emitState(prev, cur State) {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	for _, sub := range p.subs {
		sub.sendState(StateChange{Previous: prev, Current: cur})
	}
}

func (p *Player) emitTrack(e TrackChange) {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	for _, sub := range p.subs {
		sub.sendTrack(e)
	}
}

func (p *Player) emitQueue() {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	if len(p.subs) == 0 {
		return
	}
	e := QueueChange{Songs: p.queue.Songs()}
	for _, sub := range p.subs {
		sub.sendQueue(e)
	}
}

func (p *Player) emitError(e ErrorEvent) {
	p.subsMu.RLock()
	defer p.subsMu.RUnlock()
	for _, sub := range p.subs {
		sub.sendError(e)
	}
}
