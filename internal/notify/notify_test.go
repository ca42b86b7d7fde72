package notify

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/song"
)

func testSong(t *testing.T) *song.Song {
	t.Helper()
	s, err := song.New("1", song.NewFake("fake"), song.Meta{Title: "Song", Description: "Band"})
	require.NoError(t, err)
	return s
}

func TestEvent_String(t *testing.T) {
	s := testSong(t)
	tests := []struct {
		e    Event
		want string
	}{
		{Event{Cause: NowPlaying, Song: s}, "Now playing: Band - Song"},
		{Event{Cause: QueueAdd, Song: s}, "Added to queue: Band - Song"},
		{Event{Cause: QueueRemove, Song: s}, "Removed from queue: Band - Song"},
		{Event{Cause: StateChanged, Paused: true}, "Paused"},
		{Event{Cause: StateChanged}, "Playing"},
		{Event{Cause: LoadFailed}, "Failed to load"},
	}
	for _, tt := range tests {
		if got := tt.e.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestUrgencyValues(t *testing.T) {
	// freedesktop urgency levels
	assert.Equal(t, Urgency(0), UrgencyLow)
	assert.Equal(t, Urgency(1), UrgencyNormal)
	assert.Equal(t, Urgency(2), UrgencyCritical)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) causes() []Cause {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Cause, len(r.events))
	for i, e := range r.events {
		out[i] = e.Cause
	}
	return out
}

func TestHub_DeliversToSinksInOrder(t *testing.T) {
	h := NewHub(zerolog.Nop())
	a, b := &recorder{}, &recorder{}
	h.Add(a)
	h.Add(b)

	s := testSong(t)
	h.Notify(Event{Cause: QueueAdd, Song: s})
	h.Notify(Event{Cause: NowPlaying, Song: s})
	h.Notify(Event{Cause: QueueRemove, Song: s})
	h.Close()

	want := []Cause{QueueAdd, NowPlaying, QueueRemove}
	assert.Equal(t, want, a.causes())
	assert.Equal(t, want, b.causes())
}

func TestHub_StampsTime(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()
	h.Notify(Event{Cause: StateChanged})

	e := <-sub.Events
	assert.False(t, e.Time.IsZero())
	h.Close()
}

func TestHub_SlowSinkDoesNotBlockNotify(t *testing.T) {
	h := NewHub(zerolog.Nop())
	release := make(chan struct{})
	h.Add(Func(func(Event) { <-release }))

	done := make(chan struct{})
	go func() {
		for range 10 {
			h.Notify(Event{Cause: StateChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow sink")
	}
	close(release)
	h.Close()
}

func TestHub_SubscriptionDropsWhenFull(t *testing.T) {
	h := NewHub(zerolog.Nop())
	sub := h.Subscribe()

	for range eventBufferSize + 5 {
		h.Notify(Event{Cause: StateChanged})
	}
	assert.Len(t, sub.Events, eventBufferSize)

	h.Close()
	select {
	case <-sub.Done:
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestHub_CloseIsIdempotentAndStopsAdds(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.Close()
	h.Close()

	r := &recorder{}
	h.Add(r)
	h.Notify(Event{Cause: StateChanged})
	assert.Empty(t, r.causes())
}

type fakeSender struct {
	mu   sync.Mutex
	sent []Notification
	next uint32
	err  error
}

func (f *fakeSender) Send(n Notification) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.sent = append(f.sent, n)
	if n.ReplacesID != 0 {
		return n.ReplacesID, nil
	}
	f.next++
	return f.next, nil
}

func (f *fakeSender) Close(uint32) error { return nil }

func TestDesktop_NowPlayingReplacesPrevious(t *testing.T) {
	sender := &fakeSender{}
	d := NewDesktop(sender, nil, zerolog.Nop())
	s := testSong(t)
	s.SetRequestedBy("alice")

	d.Notify(Event{Cause: NowPlaying, Song: s})
	d.Notify(Event{Cause: QueueAdd, Song: s})
	d.Notify(Event{Cause: NowPlaying, Song: s})
	d.Notify(Event{Cause: StateChanged})

	require.Len(t, sender.sent, 3)
	assert.Equal(t, "Now playing", sender.sent[0].Title)
	assert.Contains(t, sender.sent[0].Body, "requested by alice")
	assert.Equal(t, uint32(0), sender.sent[0].ReplacesID)
	assert.Equal(t, "Added to queue", sender.sent[1].Title)
	assert.Equal(t, uint32(1), sender.sent[2].ReplacesID)
}

func TestDesktop_SendErrorIsSwallowed(t *testing.T) {
	d := NewDesktop(&fakeSender{err: errors.New("no bus")}, nil, zerolog.Nop())
	d.Notify(Event{Cause: NowPlaying, Song: testSong(t)})
}

func TestArtwork_Thumbnail(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 512, 256))
	for x := range 512 {
		img.Set(x, 10, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	a := NewArtwork(t.TempDir(), srv.Client())
	path, err := a.Thumbnail(context.Background(), srv.URL+"/cover.png")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, thumbnailSize, cfg.Width)
	assert.Equal(t, thumbnailSize/2, cfg.Height)

	again, err := a.Thumbnail(context.Background(), srv.URL+"/cover.png")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, 1, hits)
}

func TestArtwork_FileURL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	src := filepath.Join(t.TempDir(), "cover.png")
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	path, err := NewArtwork(t.TempDir(), nil).Thumbnail(context.Background(), "file://"+src)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestArtwork_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewArtwork(t.TempDir(), srv.Client()).Thumbnail(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestLog_WritesEventLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog(zerolog.New(&buf))

	l.Notify(Event{Cause: NowPlaying, Song: testSong(t)})

	assert.Contains(t, buf.String(), "Now playing: Band - Song")
	assert.Contains(t, buf.String(), `"key":"fake:1"`)
}
