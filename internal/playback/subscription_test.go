package playback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/song"
)

func TestSubscription_DeliversEachKind(t *testing.T) {
	sub := newSubscription()
	f := song.NewFake("fake")
	a := f.Song("a", "A")
	boom := errors.New("boom")

	sub.sendState(StateChange{Previous: StateStopped, Current: StatePlaying})
	sub.sendTrack(TrackChange{Current: a})
	sub.sendQueue(QueueChange{Songs: []*song.Song{a}})
	sub.sendError(ErrorEvent{Stage: StageLoad, Song: a, Err: boom})

	assert.Equal(t, StateChange{Previous: StateStopped, Current: StatePlaying}, <-sub.StateChanged)

	tr := <-sub.TrackChanged
	assert.Nil(t, tr.Previous)
	assert.Same(t, a, tr.Current)

	q := <-sub.QueueChanged
	require.Len(t, q.Songs, 1)
	assert.Equal(t, "fake:a", q.Songs[0].Key())

	e := <-sub.Error
	assert.Equal(t, StageLoad, e.Stage)
	assert.ErrorIs(t, e.Err, boom)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	sub := newSubscription()
	sub.close()
	sub.close()

	select {
	case <-sub.Done:
	default:
		t.Fatal("Done not closed")
	}
}

func TestSubscription_DropsWhenFull(t *testing.T) {
	sub := newSubscription()
	for i := range eventBufferSize + 5 {
		sub.sendQueue(QueueChange{Songs: make([]*song.Song, i)})
	}

	var got []int
	for len(sub.QueueChanged) > 0 {
		got = append(got, len((<-sub.QueueChanged).Songs))
	}
	require.Len(t, got, eventBufferSize)
	// the oldest events are kept
	assert.Equal(t, 0, got[0])
	assert.Equal(t, eventBufferSize-1, got[len(got)-1])
}

func TestOffer(t *testing.T) {
	ch := make(chan int, 1)
	assert.True(t, offer(ch, 1))
	assert.False(t, offer(ch, 2))
	assert.Equal(t, 1, <-ch)
}
