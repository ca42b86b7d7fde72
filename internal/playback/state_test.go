package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	tests := []struct {
		state  State
		name   string
		symbol string
		active bool
	}{
		{StateStopped, "Stopped", "■", false},
		{StatePlaying, "Playing", "▶", true},
		{StatePaused, "Paused", "⏸", true},
		{State(-1), "Unknown", "?", false},
		{State(99), "Unknown", "?", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.symbol, tt.state.Symbol())
			assert.Equal(t, tt.active, tt.state.IsActive())
		})
	}
}
