package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"
)

const (
	// bridgeDepth is how many chunks may wait in front of the speaker.
	bridgeDepth  = 2
	stallTimeout = 5 * time.Second
)

var errStalled = errors.New("output stalled")

// Speaker outputs through the system audio device. The speaker is
// initialized once at a fixed sample rate and tracks are resampled to it.
type Speaker struct {
	sampleRate beep.SampleRate
	chunk      time.Duration
	logger     zerolog.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool
	bridge      *bridge
	current     *speakerTrack
}

// NewSpeaker creates a speaker device. Nothing is opened until the first
// Start.
func NewSpeaker(sampleRate int, chunk time.Duration, logger zerolog.Logger) *Speaker {
	return &Speaker{
		sampleRate: beep.SampleRate(sampleRate),
		chunk:      chunk,
		logger:     logger.With().Str("component", "speaker").Logger(),
		bridge:     newBridge(bridgeDepth),
	}
}

// Start decodes path and makes it the track being output.
func (s *Speaker) Start(path string) (Track, error) {
	streamer, format, err := Decode(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		streamer.Close()
		return nil, fmt.Errorf("%w: closed", ErrDevice)
	}
	if !s.initialized {
		if err := speaker.Init(s.sampleRate, s.sampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return nil, fmt.Errorf("%w: %w", ErrDevice, err)
		}
		speaker.Play(s.bridge)
		s.initialized = true
		s.logger.Debug().Int("sample_rate", int(s.sampleRate)).Msg("speaker initialized")
	}

	if s.current != nil {
		s.current.Close()
	}
	speaker.Lock()
	s.bridge.flush()
	speaker.Unlock()

	var out beep.Streamer = streamer
	if format.SampleRate != s.sampleRate {
		out = beep.Resample(4, format.SampleRate, s.sampleRate, streamer)
	}

	t := &speakerTrack{
		source:  streamer,
		out:     out,
		format:  format,
		bridge:  s.bridge,
		samples: s.sampleRate.N(s.chunk),
	}
	s.current = t
	return t, nil
}

// Close stops output. The speaker package cannot be re-initialized
// cleanly, so a closed Speaker stays closed.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
	if s.initialized {
		speaker.Clear()
		speaker.Close()
	}
	return nil
}

type speakerTrack struct {
	mu      sync.Mutex
	source  beep.StreamSeekCloser
	out     beep.Streamer
	format  beep.Format
	bridge  *bridge
	samples int
	closed  bool
}

func (t *speakerTrack) WriteChunk() (bool, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return true, nil
	}
	buf := make([][2]float64, t.samples)
	n, ok := t.out.Stream(buf)
	err := t.source.Err()
	t.mu.Unlock()

	if err != nil {
		return true, fmt.Errorf("decode: %w", err)
	}
	if n > 0 {
		if !t.bridge.push(buf[:n], stallTimeout) {
			return true, fmt.Errorf("%w: %w", ErrDevice, errStalled)
		}
	}
	return !ok || n < len(buf), nil
}

func (t *speakerTrack) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	return t.format.SampleRate.D(t.source.Position())
}

func (t *speakerTrack) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	return t.format.SampleRate.D(t.source.Len())
}

func (t *speakerTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.source.Close()
}

// Verify Speaker implements Device at compile time.
var _ Device = (*Speaker)(nil)
