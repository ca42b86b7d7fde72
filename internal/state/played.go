package state

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/wavebot/internal/db"
	"github.com/llehouerou/wavebot/internal/notify"
	"github.com/llehouerou/wavebot/internal/song"
)

// maxPlayedRows bounds the play history table.
const maxPlayedRows = 5000

// Played is one row of the play history.
type Played struct {
	ID          int64
	Provider    string
	SongID      string
	Title       string
	Artist      string
	Album       string
	RequestedBy string
	PlayedAt    time.Time
}

// Key returns the song key the row refers to.
func (p Played) Key() string { return song.Key(p.Provider, p.SongID) }

// PlayedFromSong builds a history row for s started at t.
func PlayedFromSong(s *song.Song, t time.Time) Played {
	return Played{
		Provider:    s.Provider().Name(),
		SongID:      s.ID(),
		Title:       s.Title(),
		Artist:      s.Description(),
		Album:       s.Album(),
		RequestedBy: s.RequestedBy(),
		PlayedAt:    t,
	}
}

// RecordPlayed appends to the play history, trimming the oldest rows.
func (m *Manager) RecordPlayed(p Played) error {
	return db.WithTx(m.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO played (provider, song_id, title, artist, album, requested_by, played_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, p.Provider, p.SongID, p.Title, p.Artist, p.Album, p.RequestedBy, p.PlayedAt.Unix())
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			DELETE FROM played WHERE id NOT IN (
				SELECT id FROM played ORDER BY played_at DESC, id DESC LIMIT ?
			)
		`, maxPlayedRows)
		return err
	})
}

// RecentlyPlayed returns up to n history rows, most recent first.
func (m *Manager) RecentlyPlayed(n int) ([]Played, error) {
	rows, err := m.db.Query(`
		SELECT id, provider, song_id, title, artist, album, requested_by, played_at
		FROM played
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Played
	for rows.Next() {
		var p Played
		var playedAt int64
		if err := rows.Scan(
			&p.ID, &p.Provider, &p.SongID, &p.Title, &p.Artist, &p.Album, &p.RequestedBy, &playedAt,
		); err != nil {
			return nil, err
		}
		p.PlayedAt = time.Unix(playedAt, 0)
		result = append(result, p)
	}
	return result, rows.Err()
}

// ClearPlayed forgets the play history of one provider, or of all
// providers when provider is empty.
func (m *Manager) ClearPlayed(provider string) error {
	if provider == "" {
		_, err := m.db.Exec(`DELETE FROM played`)
		return err
	}
	_, err := m.db.Exec(`DELETE FROM played WHERE provider = ?`, provider)
	return err
}

// Recorder is a notify sink writing every started song to the history.
type Recorder struct {
	store  PlayedStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewRecorder creates a history sink.
func NewRecorder(store PlayedStore, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "history").Logger(),
		now:    time.Now,
	}
}

func (r *Recorder) Notify(e notify.Event) {
	if e.Cause != notify.NowPlaying || e.Song == nil {
		return
	}
	if err := r.store.RecordPlayed(PlayedFromSong(e.Song, r.now())); err != nil {
		r.logger.Warn().Err(err).Str("key", e.Song.Key()).Msg("recording play failed")
	}
}
