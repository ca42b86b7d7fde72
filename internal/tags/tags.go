// Package tags reads metadata from library files and stores song metadata
// inside the cached WAV files.
package tags

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// File extensions understood by the decoders.
const (
	ExtMP3  = ".mp3"
	ExtFLAC = ".flac"
	ExtOGG  = ".ogg"
	ExtWAV  = ".wav"
)

// Tag is the metadata carried by a song file.
type Tag struct {
	Path        string
	Title       string
	Artist      string
	AlbumArtist string
	Album       string
	TrackNumber int

	// Set on cached files only
	ArtworkURL string
	Source     string // provider name
	SourceID   string // provider-scoped id
}

// IsMusicFile returns true if the path has a decodable extension.
func IsMusicFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtMP3, ExtFLAC, ExtOGG, ExtWAV:
		return true
	}
	return false
}

// Read reads tags from an mp3, flac or ogg file. Missing titles fall back
// to the file name.
func Read(path string) (*Tag, error) {
	if strings.EqualFold(filepath.Ext(path), ExtWAV) {
		return ReadWAV(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags %s: %w", filepath.Base(path), err)
	}

	t := &Tag{
		Path:        path,
		Title:       m.Title(),
		Artist:      m.Artist(),
		AlbumArtist: m.AlbumArtist(),
		Album:       m.Album(),
	}
	t.TrackNumber, _ = m.Track()
	if t.Title == "" {
		t.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if t.Artist == "" {
		t.Artist = t.AlbumArtist
	}
	return t, nil
}
