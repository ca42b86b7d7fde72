package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/player"
	"github.com/llehouerou/wavebot/internal/song"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(c notify.Cause) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Cause == c {
			n++
		}
	}
	return n
}

type fixture struct {
	player *Player
	fake   *song.Fake
	device *player.Mock
	events *recorder
}

func newFixture(t *testing.T, sg bool, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		fake:   song.NewFake("fake"),
		device: player.NewMock(),
		events: &recorder{},
	}
	opts := Options{
		Device:     f.device,
		Notifier:   f.events,
		IdleDelay:  time.Hour,
		RetryDelay: time.Hour,
	}
	if sg {
		opts.Suggester = f.fake
	}
	for _, m := range mutate {
		m(&opts)
	}
	p, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	f.player = p
	return f
}

func pathOf(s *song.Song) string {
	return "/fake/fake/" + s.ID() + ".wav"
}

func currentIs(p *Player, s *song.Song) func() bool {
	return func() bool { return p.CurrentSong() == s }
}

func TestNew_RequiresDevice(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestPlayer_PlaysQueueInOrder(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(2)
	a, b := fx.fake.Song("a", "A"), fx.fake.Song("b", "B")
	fx.fake.SetLoaded(a)
	fx.player.Queue(a, "alice")
	fx.player.Queue(b, "bob")

	require.NoError(t, fx.player.Run(context.Background()))

	assert.Eventually(t, func() bool { return fx.player.State() == StateStopped && len(fx.device.StartCalls()) == 2 },
		waitFor, tick)
	assert.Equal(t, []string{pathOf(a), pathOf(b)}, fx.device.StartCalls())
	assert.Equal(t, 2, fx.events.count(notify.NowPlaying))
	assert.Nil(t, fx.player.CurrentSong())

	last := fx.player.LastPlayed()
	require.Len(t, last, 2)
	assert.Same(t, a, last[0])
	assert.Same(t, b, last[1])
	assert.Equal(t, "alice", last[0].RequestedBy())
}

func TestPlayer_QueueIgnoresDuplicates(t *testing.T) {
	fx := newFixture(t, false)
	b := fx.fake.Song("b", "B")
	gate := make(chan struct{})
	fx.fake.SetLoadGate(gate)
	defer close(gate)

	assert.True(t, fx.player.Queue(b, "alice"))
	again, _ := song.New("b", fx.fake, song.Meta{Title: "B"})
	assert.False(t, fx.player.Queue(again, "bob"))
	assert.Len(t, fx.player.QueueSongs(), 1)
	assert.Equal(t, "", again.RequestedBy())
}

func TestPlayer_RejectedRequeueKeepsRequester(t *testing.T) {
	fx := newFixture(t, false)
	gate := make(chan struct{})
	fx.fake.SetLoadGate(gate)
	defer close(gate)
	b := fx.fake.Song("b", "B")

	require.True(t, fx.player.Queue(b, "alice"))
	assert.False(t, fx.player.Queue(b, "bob"))

	queued := fx.player.QueueSongs()
	require.Len(t, queued, 1)
	assert.Equal(t, "alice", queued[0].RequestedBy())
}

func TestPlayer_ConcurrentTransitionsConsumeOneToken(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(-1)
	songs := []*song.Song{fx.fake.Song("a", "A"), fx.fake.Song("b", "B"), fx.fake.Song("c", "C")}
	for _, s := range songs {
		fx.fake.SetLoaded(s)
		fx.player.Queue(s, "")
	}

	token := fx.player.generation()
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_ = fx.player.onTrackEnd(token)
		})
	}
	wg.Wait()

	assert.Equal(t, 1, fx.events.count(notify.NowPlaying))
	assert.Same(t, songs[0], fx.player.CurrentSong())
	assert.Len(t, fx.player.QueueSongs(), 2)
	assert.Equal(t, token+1, fx.player.generation())
}

func TestPlayer_ConcurrentNextIsSingleTransition(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(-1)
	fx.device.SetChunkDelay(time.Millisecond)
	a, b, c := fx.fake.Song("a", "A"), fx.fake.Song("b", "B"), fx.fake.Song("c", "C")
	fx.fake.SetLoaded(a)
	fx.player.Queue(a, "")
	require.NoError(t, fx.player.Run(context.Background()))
	require.Eventually(t, currentIs(fx.player, a), waitFor, tick)

	gate := make(chan struct{})
	fx.fake.SetLoadGate(gate)
	fx.player.Queue(b, "")
	fx.player.Queue(c, "")

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(fx.player.Next)
	}
	// every caller observes the same token before the transition can finish
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 2, fx.events.count(notify.NowPlaying))
	assert.Same(t, b, fx.player.CurrentSong())
	assert.Len(t, fx.player.QueueSongs(), 1)
}

func TestPlayer_EmptyQueueFallsBackToSuggestion(t *testing.T) {
	fx := newFixture(t, true)
	fx.device.SetChunks(-1)
	a := fx.fake.Song("a", "A")
	fx.fake.Suggest(a)

	require.NoError(t, fx.player.Run(context.Background()))
	require.Eventually(t, currentIs(fx.player, a), waitFor, tick)

	played := fx.fake.PlayedSongs()
	require.Len(t, played, 1)
	assert.Same(t, a, played[0])
	assert.Equal(t, 1, fx.fake.NextCalls())
	assert.Equal(t, "", a.RequestedBy())
}

func TestPlayer_PlaysReadySongBeforeUnreadyHead(t *testing.T) {
	fx := newFixture(t, false)
	gate := make(chan struct{})
	fx.fake.SetLoadGate(gate)
	defer close(gate)

	a, b := fx.fake.Song("a", "A"), fx.fake.Song("b", "B")
	fx.fake.SetLoaded(b)
	fx.player.Queue(a, "")
	fx.player.Queue(b, "")

	require.NoError(t, fx.player.onTrackEnd(fx.player.generation()))

	assert.Same(t, b, fx.player.CurrentSong())
	queued := fx.player.QueueSongs()
	require.Len(t, queued, 1)
	assert.Same(t, a, queued[0])
}

func TestPlayer_SkipsSongsThatFailToLoad(t *testing.T) {
	fx := newFixture(t, true)
	fx.device.SetChunks(-1)
	a, b := fx.fake.Song("a", "A"), fx.fake.Song("b", "B")
	fx.fake.SetLoadError(a, errors.New("gone"))
	fx.fake.Suggest(b)
	sub := fx.player.Subscribe()

	// a is the only queued song, so the player has to try it first
	fx.player.Queue(a, "")
	require.NoError(t, fx.player.Run(context.Background()))

	require.Eventually(t, currentIs(fx.player, b), waitFor, tick)
	assert.NotContains(t, fx.device.StartCalls(), pathOf(a))
	assert.GreaterOrEqual(t, fx.events.count(notify.LoadFailed), 1)
	assert.Equal(t, 1, fx.events.count(notify.NowPlaying))

	select {
	case e := <-sub.Error:
		assert.Equal(t, StageLoad, e.Stage)
		assert.Same(t, a, e.Song)
	case <-time.After(waitFor):
		t.Fatal("no error event")
	}
}

func TestPlayer_SkipsUndecodableSongs(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(-1)
	a, b := fx.fake.Song("a", "A"), fx.fake.Song("b", "B")
	fx.device.SetStartError(pathOf(a), player.ErrUnsupportedFormat)

	fx.player.Queue(a, "")
	fx.player.Queue(b, "")
	require.NoError(t, fx.player.Run(context.Background()))

	require.Eventually(t, currentIs(fx.player, b), waitFor, tick)
	assert.NoError(t, fx.player.Err())
}

func TestPlayer_DeviceErrorStopsLoop(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetWriteError(fmt.Errorf("%w: unplugged", player.ErrDevice))
	fx.player.Queue(fx.fake.Song("a", "A"), "")

	require.NoError(t, fx.player.Run(context.Background()))

	select {
	case <-fx.player.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not stop")
	}
	assert.ErrorIs(t, fx.player.Err(), player.ErrDevice)
	assert.ErrorIs(t, fx.player.Close(), player.ErrDevice)
}

func TestPlayer_PauseAndResume(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(-1)
	fx.device.SetChunkDelay(time.Millisecond)
	a := fx.fake.Song("a", "A")
	fx.player.Queue(a, "")

	fx.player.Pause()
	assert.False(t, fx.player.IsPaused(), "pause without a song is a no-op")

	require.NoError(t, fx.player.Run(context.Background()))
	require.Eventually(t, currentIs(fx.player, a), waitFor, tick)
	sub := fx.player.Subscribe()

	fx.player.Pause()
	assert.Equal(t, StatePaused, fx.player.State())
	time.Sleep(20 * time.Millisecond)
	written := fx.device.ChunksWritten()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, written, fx.device.ChunksWritten())

	fx.player.Toggle()
	assert.Equal(t, StatePlaying, fx.player.State())
	assert.Eventually(t, func() bool { return fx.device.ChunksWritten() > written }, waitFor, tick)

	e := <-sub.StateChanged
	assert.Equal(t, StateChange{Previous: StatePlaying, Current: StatePaused}, e)
	e = <-sub.StateChanged
	assert.Equal(t, StateChange{Previous: StatePaused, Current: StatePlaying}, e)
	assert.Equal(t, 2, fx.events.count(notify.StateChanged))
}

func TestPlayer_NextWhilePausedPlaysNextSong(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(-1)
	a, b := fx.fake.Song("a", "A"), fx.fake.Song("b", "B")
	fx.fake.SetLoaded(a)
	fx.player.Queue(a, "")
	fx.player.Queue(b, "")
	require.NoError(t, fx.player.Run(context.Background()))
	require.Eventually(t, currentIs(fx.player, a), waitFor, tick)

	fx.player.Pause()
	fx.player.Next()

	assert.Same(t, b, fx.player.CurrentSong())
	assert.Equal(t, StatePlaying, fx.player.State())
}

func TestPlayer_SkipSong(t *testing.T) {
	fx := newFixture(t, false)
	gate := make(chan struct{})
	fx.fake.SetLoadGate(gate)
	defer close(gate)
	a, b := fx.fake.Song("a", "A"), fx.fake.Song("b", "B")
	fx.player.Queue(a, "")

	assert.False(t, fx.player.SkipSong(b))
	assert.True(t, fx.player.SkipSong(a))
	assert.Empty(t, fx.player.QueueSongs())
	assert.Equal(t, 1, fx.events.count(notify.QueueRemove))
}

func TestPlayer_MoveAndClear(t *testing.T) {
	fx := newFixture(t, false)
	gate := make(chan struct{})
	fx.fake.SetLoadGate(gate)
	defer close(gate)
	a, b := fx.fake.Song("a", "A"), fx.fake.Song("b", "B")
	fx.player.Queue(a, "")
	fx.player.Queue(b, "")

	require.NoError(t, fx.player.Move(1, 0))
	queued := fx.player.QueueSongs()
	require.Len(t, queued, 2)
	assert.Same(t, b, queued[0])

	fx.player.ClearQueue()
	assert.Empty(t, fx.player.QueueSongs())
}

func TestPlayer_HistoryIsBounded(t *testing.T) {
	fx := newFixture(t, false, func(o *Options) { o.HistorySize = 2 })
	fx.device.SetChunks(1)
	a, b, c := fx.fake.Song("a", "A"), fx.fake.Song("b", "B"), fx.fake.Song("c", "C")
	for _, s := range []*song.Song{a, b, c} {
		fx.fake.SetLoaded(s)
		fx.player.Queue(s, "")
	}

	require.NoError(t, fx.player.Run(context.Background()))
	require.Eventually(t, func() bool { return fx.events.count(notify.NowPlaying) == 3 }, waitFor, tick)

	last := fx.player.LastPlayed()
	require.Len(t, last, 2)
	assert.Same(t, b, last[0])
	assert.Same(t, c, last[1])
}

func TestPlayer_IdleLoopWakesOnQueue(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(-1)
	require.NoError(t, fx.player.Run(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateStopped, fx.player.State())

	a := fx.fake.Song("a", "A")
	fx.player.Queue(a, "")
	assert.Eventually(t, currentIs(fx.player, a), waitFor, tick)
}

func TestPlayer_RunAndClose(t *testing.T) {
	fx := newFixture(t, false)
	fx.device.SetChunks(-1)
	fx.player.Queue(fx.fake.Song("a", "A"), "")

	require.NoError(t, fx.player.Run(context.Background()))
	assert.ErrorIs(t, fx.player.Run(context.Background()), ErrRunning)
	sub := fx.player.Subscribe()

	require.NoError(t, fx.player.Close())
	select {
	case <-fx.player.Done():
	default:
		t.Error("Close returned before the loop exited")
	}
	<-sub.Done
	assert.True(t, fx.device.Closed())
	assert.Equal(t, StateStopped, fx.player.State())
	assert.ErrorIs(t, fx.player.Run(context.Background()), ErrClosed)
}

func TestPlayer_RunContextStopsLoop(t *testing.T) {
	fx := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fx.player.Run(ctx))
	cancel()

	select {
	case <-fx.player.Done():
	case <-time.After(waitFor):
		t.Fatal("loop did not stop")
	}
	assert.NoError(t, fx.player.Err())
}
