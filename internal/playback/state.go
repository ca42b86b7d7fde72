package playback

// State is what the output is doing.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

var stateInfo = [...]struct {
	name   string
	symbol string
}{
	StateStopped: {"Stopped", "■"},
	StatePlaying: {"Playing", "▶"},
	StatePaused:  {"Paused", "⏸"},
}

func (s State) valid() bool {
	return s >= 0 && int(s) < len(stateInfo)
}

func (s State) String() string {
	if !s.valid() {
		return "Unknown"
	}
	return stateInfo[s].name
}

// Symbol is the glyph shown next to the current song.
func (s State) Symbol() string {
	if !s.valid() {
		return "?"
	}
	return stateInfo[s].symbol
}

// IsActive reports whether a song holds the output, playing or paused.
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}
