package state

import (
	"database/sql"
	"fmt"

	"github.com/llehouerou/wavebot/internal/db"
)

// migrations[i] moves the schema from version i to i+1.
var migrations = []string{
	`
	CREATE TABLE played (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		song_id TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		requested_by TEXT NOT NULL DEFAULT '',
		played_at INTEGER NOT NULL
	);
	CREATE INDEX idx_played_played_at ON played(played_at);
	CREATE INDEX idx_played_song ON played(provider, song_id);

	CREATE TABLE lastfm_session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		username TEXT NOT NULL,
		session_key TEXT NOT NULL,
		linked_at INTEGER NOT NULL
	);

	CREATE TABLE lastfm_pending_scrobbles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		artist TEXT NOT NULL,
		track TEXT NOT NULL,
		album TEXT,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE lastfm_similar_artists (
		artist TEXT NOT NULL,
		similar_artist TEXT NOT NULL,
		match_score REAL NOT NULL,
		fetched_at INTEGER NOT NULL,
		PRIMARY KEY (artist, similar_artist)
	);
	`,
}

var currentSchemaVersion = len(migrations)

// initSchema applies the migrations the database has not seen yet.
func initSchema(conn *sql.DB) error {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var version int
	if err := conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema v%d is newer than this build (v%d)", version, len(migrations))
	}
	for v := version; v < len(migrations); v++ {
		err := db.WithTx(conn, func(tx *sql.Tx) error {
			if _, err := tx.Exec(migrations[v]); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, v+1)
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}
