package radio

import (
	"database/sql"
	"strings"
	"time"

	"github.com/llehouerou/wavebot/internal/db"
	"github.com/llehouerou/wavebot/internal/lastfm"
)

// noSimilar is stored for artists Last.fm knows nothing similar to, so
// they are not asked for again until the entry expires.
const noSimilar = ""

// Cache keeps Last.fm similar artists in SQLite for a number of days.
// Artist names are matched case-insensitively.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewCache creates a cache over the state database.
func NewCache(conn *sql.DB, ttlDays int) *Cache {
	return &Cache{
		db:  conn,
		ttl: time.Duration(ttlDays) * 24 * time.Hour,
		now: time.Now,
	}
}

func cacheKey(artist string) string {
	return strings.ToLower(strings.TrimSpace(artist))
}

func (c *Cache) expiry() int64 {
	return c.now().Add(-c.ttl).Unix()
}

// Lookup returns the cached similar artists of artist, best match first.
// ok is false when nothing fresh is cached; an artist cached with no
// similar artists yields an empty slice and ok.
func (c *Cache) Lookup(artist string) (similar []lastfm.SimilarArtist, ok bool, err error) {
	rows, err := c.db.Query(`
		SELECT similar_artist, match_score
		FROM lastfm_similar_artists
		WHERE artist = ? AND fetched_at >= ?
		ORDER BY match_score DESC
	`, cacheKey(artist), c.expiry())
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	similar = []lastfm.SimilarArtist{}
	for rows.Next() {
		var sa lastfm.SimilarArtist
		if err := rows.Scan(&sa.Name, &sa.MatchScore); err != nil {
			return nil, false, err
		}
		ok = true
		if sa.Name != noSimilar {
			similar = append(similar, sa)
		}
	}
	if err := rows.Err(); err != nil || !ok {
		return nil, false, err
	}
	return similar, true, nil
}

// Store replaces the cached similar artists of artist.
func (c *Cache) Store(artist string, similar []lastfm.SimilarArtist) error {
	key := cacheKey(artist)
	now := c.now().Unix()
	if len(similar) == 0 {
		similar = []lastfm.SimilarArtist{{Name: noSimilar}}
	}
	return db.WithTx(c.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM lastfm_similar_artists WHERE artist = ?`, key); err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT INTO lastfm_similar_artists (artist, similar_artist, match_score, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(artist, similar_artist) DO UPDATE SET match_score = excluded.match_score
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sa := range similar {
			if _, err := stmt.Exec(key, sa.Name, sa.MatchScore, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// CleanExpired removes all expired entries.
func (c *Cache) CleanExpired() error {
	_, err := c.db.Exec(`DELETE FROM lastfm_similar_artists WHERE fetched_at < ?`, c.expiry())
	return err
}
