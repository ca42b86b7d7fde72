package lastfm

import (
	"time"

	"github.com/llehouerou/wavebot/internal/song"
)

// Track contains track metadata for scrobbling.
type Track struct {
	Artist    string
	Track     string
	Album     string
	Duration  time.Duration
	Timestamp time.Time // When playback started
}

// TrackFromSong builds the scrobble metadata of s started at t.
func TrackFromSong(s *song.Song, t time.Time) Track {
	return Track{
		Artist:    s.Description(),
		Track:     s.Title(),
		Album:     s.Album(),
		Duration:  s.Duration(),
		Timestamp: t,
	}
}

// SimilarArtist represents a similar artist from Last.fm.
type SimilarArtist struct {
	Name       string
	MatchScore float64 // 0.0-1.0 similarity score
}
