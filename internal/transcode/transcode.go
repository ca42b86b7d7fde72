// Package transcode converts downloaded audio into normalized, tagged WAV
// files ready for output.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/wav"

	"github.com/llehouerou/wavebot/internal/player"
	"github.com/llehouerou/wavebot/internal/tags"
)

// DefaultHeadroom is the peak level normalization aims for, in dBFS.
const DefaultHeadroom = -0.1

const scanChunk = 4096

// Transcoder decodes a native file and writes it as a 16-bit WAV file.
type Transcoder struct {
	// Normalize scales the track so its peak reaches Headroom.
	Normalize bool
	// Headroom in dBFS, zero means DefaultHeadroom.
	Headroom float64
}

// Convert writes src to dst as WAV, tagged with t. dst is overwritten.
func (c Transcoder) Convert(ctx context.Context, src, dst string, t *tags.Tag) error {
	stream, format, err := player.Decode(src)
	if err != nil {
		return err
	}
	defer stream.Close()

	var out beep.Streamer = stream
	if c.Normalize {
		gain, err := c.gain(ctx, stream)
		if err != nil {
			return err
		}
		if gain != 1 {
			out = &effects.Gain{Streamer: stream, Gain: gain - 1}
		}
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	cs := &ctxStreamer{ctx: ctx, s: out}
	outFormat := beep.Format{SampleRate: format.SampleRate, NumChannels: 2, Precision: 2}
	err = wav.Encode(f, cs, outFormat)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = cs.err
	}
	if err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}

	if t != nil {
		if err := tags.WriteWAV(dst, t); err != nil {
			return fmt.Errorf("tag: %w", err)
		}
	}
	return nil
}

// gain scans the whole stream for its peak, rewinds it and returns the
// multiplier that brings the peak to the headroom level.
func (c Transcoder) gain(ctx context.Context, s beep.StreamSeeker) (float64, error) {
	buf := make([][2]float64, scanChunk)
	peak := 0.0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			peak = max(peak, math.Abs(frame[0]), math.Abs(frame[1]))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("scan peak: %w", err)
	}
	if err := s.Seek(0); err != nil {
		return 0, fmt.Errorf("rewind: %w", err)
	}
	return gainFor(peak, c.headroom()), nil
}

func (c Transcoder) headroom() float64 {
	if c.Headroom == 0 {
		return DefaultHeadroom
	}
	return c.Headroom
}

// gainFor returns the multiplier taking peak to target dBFS. Silent tracks
// are left alone.
func gainFor(peak, targetDB float64) float64 {
	if peak <= 0 {
		return 1
	}
	return math.Pow(10, targetDB/20) / peak
}

// ctxStreamer ends the stream when ctx is cancelled.
type ctxStreamer struct {
	ctx context.Context //nolint:containedctx // bounded by a single Convert call
	s   beep.Streamer
	err error
}

func (c *ctxStreamer) Stream(samples [][2]float64) (int, bool) {
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return 0, false
	}
	return c.s.Stream(samples)
}

func (c *ctxStreamer) Err() error {
	return errors.Join(c.err, c.s.Err())
}
