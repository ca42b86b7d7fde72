package playback

import "github.com/llehouerou/wavebot/internal/song"

// Stage names the step at which a song failed.
type Stage string

const (
	StageLoad   Stage = "load"   // download or conversion
	StageStart  Stage = "start"  // decoding the file
	StageOutput Stage = "output" // writing to the device
)

// StateChange reports a move between stopped, playing and paused.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange reports that output moved to another song. Current is nil
// when nothing was left to play. Only the end-of-track transition emits
// it, so one transition yields one event however many callers raced.
type TrackChange struct {
	Previous *song.Song
	Current  *song.Song
}

// QueueChange carries the queue as it is after an edit.
type QueueChange struct {
	Songs []*song.Song
}

// ErrorEvent reports a song that could not be played. Song may be nil
// for device failures.
type ErrorEvent struct {
	Stage Stage
	Song  *song.Song
	Err   error
}
