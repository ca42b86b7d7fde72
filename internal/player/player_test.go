package player

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_SilenceWhenEmpty(t *testing.T) {
	b := newBridge(2)
	buf := [][2]float64{{1, 1}, {1, 1}, {1, 1}}

	n, ok := b.Stream(buf)

	assert.Equal(t, 3, n)
	assert.True(t, ok)
	for i, s := range buf {
		assert.Equal(t, [2]float64{}, s, "sample %d should be silent", i)
	}
}

func TestBridge_PlaysPushedChunksAcrossBoundaries(t *testing.T) {
	b := newBridge(2)
	require.True(t, b.push([][2]float64{{1, 1}, {2, 2}}, time.Second))
	require.True(t, b.push([][2]float64{{3, 3}}, time.Second))

	buf := make([][2]float64, 4)
	n, _ := b.Stream(buf)

	assert.Equal(t, 4, n)
	assert.Equal(t, 1.0, buf[0][0])
	assert.Equal(t, 2.0, buf[1][0])
	assert.Equal(t, 3.0, buf[2][0])
	assert.Equal(t, 0.0, buf[3][0], "starved tail should be silent")
}

func TestBridge_PushTimesOutWhenFull(t *testing.T) {
	b := newBridge(1)
	require.True(t, b.push([][2]float64{{1, 1}}, time.Second))

	if b.push([][2]float64{{2, 2}}, 10*time.Millisecond) {
		t.Error("push into a full bridge should time out")
	}
}

func TestBridge_Flush(t *testing.T) {
	b := newBridge(2)
	b.push([][2]float64{{1, 1}, {1, 1}}, time.Second)
	buf := make([][2]float64, 1)
	b.Stream(buf)

	b.flush()

	buf = [][2]float64{{9, 9}}
	b.Stream(buf)
	assert.Equal(t, [2]float64{}, buf[0])
}

func TestDecode_UnsupportedFormat(t *testing.T) {
	_, _, err := Decode("/music/song.m4a")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Decode() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestDecode_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 4410)

	s, format, err := Decode(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 44100, int(format.SampleRate))
	assert.Equal(t, 4410, s.Len())
	assert.Equal(t, 100*time.Millisecond, format.SampleRate.D(s.Len()))
}

func TestMock_TrackLastsConfiguredChunks(t *testing.T) {
	m := NewMock()
	m.SetChunks(2)

	tr, err := m.Start("/a.wav")
	require.NoError(t, err)

	done, err := tr.WriteChunk()
	require.NoError(t, err)
	assert.False(t, done)
	done, err = tr.WriteChunk()
	require.NoError(t, err)
	assert.True(t, done)

	assert.Equal(t, []string{"/a.wav"}, m.StartCalls())
	assert.Equal(t, 2, m.ChunksWritten())
}

func TestMock_Errors(t *testing.T) {
	m := NewMock()
	m.SetStartError("/bad.wav", ErrUnsupportedFormat)

	_, err := m.Start("/bad.wav")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	tr, err := m.Start("/good.wav")
	require.NoError(t, err)
	m.SetWriteError(ErrDevice)
	_, err = tr.WriteChunk()
	assert.ErrorIs(t, err, ErrDevice)
}

// writeWAV writes a 16-bit stereo PCM file with n silent frames.
func writeWAV(t *testing.T, path string, n int) {
	t.Helper()
	const channels, rate, bits = 2, 44100, 16
	block := channels * bits / 8
	data := make([]byte, n*block)

	var buf []byte
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+len(data)))
	buf = append(buf, "WAVEfmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1)
	buf = binary.LittleEndian.AppendUint16(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, rate)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(rate*block))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(block))
	buf = binary.LittleEndian.AppendUint16(buf, bits)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}
