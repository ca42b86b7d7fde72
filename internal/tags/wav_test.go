package tags

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestWAV writes a tiny 16-bit mono PCM file with n samples.
func writeTestWAV(t *testing.T, n int) string {
	t.Helper()
	data := make([]byte, n*2)
	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:], 1)     // PCM
	binary.LittleEndian.PutUint16(fmtChunk[2:], 1)     // channels
	binary.LittleEndian.PutUint32(fmtChunk[4:], 44100) // sample rate
	binary.LittleEndian.PutUint32(fmtChunk[8:], 88200) // byte rate
	binary.LittleEndian.PutUint16(fmtChunk[12:], 2)    // block align
	binary.LittleEndian.PutUint16(fmtChunk[14:], 16)   // bits per sample

	var buf []byte
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(4+8+len(fmtChunk)+8+len(data)))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(fmtChunk)))
	buf = append(buf, fmtChunk...)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)

	path := filepath.Join(t.TempDir(), "song.wav")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestWriteWAV_RoundTrip(t *testing.T) {
	path := writeTestWAV(t, 11)

	want := &Tag{
		Title:      "Teardrop",
		Artist:     "Massive Attack",
		Album:      "Mezzanine",
		ArtworkURL: "https://example.com/cover.jpg",
		Source:     "subsonic",
		SourceID:   "tr-1",
	}
	require.NoError(t, WriteWAV(path, want))

	got, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Artist, got.Artist)
	assert.Equal(t, want.Album, got.Album)
	assert.Equal(t, want.ArtworkURL, got.ArtworkURL)
	assert.Equal(t, want.Source, got.Source)
	assert.Equal(t, want.SourceID, got.SourceID)
	assert.Equal(t, path, got.Path)
}

func TestWriteWAV_UpdatesRIFFSize(t *testing.T) {
	path := writeTestWAV(t, 7)
	require.NoError(t, WriteWAV(path, &Tag{Title: "x", Artist: "y"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	riffSize := binary.LittleEndian.Uint32(data[4:8])
	if int(riffSize) != len(data)-8 {
		t.Errorf("RIFF size = %d, want %d", riffSize, len(data)-8)
	}
	if len(data)%2 != 0 {
		t.Errorf("file length %d is not word aligned", len(data))
	}
}

func TestReadWAV_NoTagChunk(t *testing.T) {
	path := writeTestWAV(t, 4)

	got, err := ReadWAV(path)
	require.NoError(t, err)
	if got.Title != "song" {
		t.Errorf("Title = %q, want file name fallback %q", got.Title, "song")
	}
	if got.Artist != "" {
		t.Errorf("Artist = %q, want empty", got.Artist)
	}
}

func TestWriteWAV_RejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, []byte("ID3 this is not riff"), 0o644))

	err := WriteWAV(path, &Tag{Title: "x"})
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("WriteWAV() error = %v, want ErrNotWAV", err)
	}
}

func TestIsMusicFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/music/a.mp3", true},
		{"/music/a.FLAC", true},
		{"/music/a.ogg", true},
		{"/music/a.wav", true},
		{"/music/a.m4a", false},
		{"/music/cover.jpg", false},
		{"/music/noext", false},
	}
	for _, tt := range tests {
		if got := IsMusicFile(tt.path); got != tt.want {
			t.Errorf("IsMusicFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.mp3"))
	if err == nil {
		t.Error("Read() on missing file should fail")
	}
}
