// Package notify fans playback and queue events out to observers: desktop
// notifications, scrobblers, logs and the UI.
package notify

import (
	"time"

	"github.com/llehouerou/wavebot/internal/song"
)

// Cause identifies what happened.
type Cause int

const (
	NowPlaying Cause = iota
	QueueAdd
	QueueRemove
	StateChanged
	LoadFailed
)

// String returns the message prefix for the cause.
func (c Cause) String() string {
	switch c {
	case NowPlaying:
		return "Now playing"
	case QueueAdd:
		return "Added to queue"
	case QueueRemove:
		return "Removed from queue"
	case StateChanged:
		return "State changed"
	case LoadFailed:
		return "Failed to load"
	default:
		return "Unknown"
	}
}

// Event is a single notification.
type Event struct {
	Cause  Cause
	Song   *song.Song // nil for StateChanged
	Paused bool       // StateChanged only
	Err    error      // LoadFailed only
	Time   time.Time
}

func (e Event) String() string {
	switch {
	case e.Cause == StateChanged && e.Paused:
		return "Paused"
	case e.Cause == StateChanged:
		return "Playing"
	case e.Song == nil:
		return e.Cause.String()
	default:
		return e.Cause.String() + ": " + e.Song.String()
	}
}

// Notifier observes events. Notify must not block for long.
type Notifier interface {
	Notify(e Event)
}

// Func adapts a function to Notifier.
type Func func(Event)

func (f Func) Notify(e Event) { f(e) }

// Nop discards events.
type Nop struct{}

func (Nop) Notify(Event) {}
