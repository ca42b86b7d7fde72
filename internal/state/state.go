// Package state persists what outlives a session: the play history and
// the Last.fm session with its pending scrobbles.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName    = "wavebot"
	dbFileName = "wavebot.db"

	// the Last.fm login runs as a second process next to the bot
	filePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
)

// Manager owns the state database.
type Manager struct {
	db   *sql.DB
	path string
}

// Open opens the database in the XDG data directory.
func Open() (*Manager, error) {
	path, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("locate state db: %w", err)
	}
	return OpenPath(path)
}

// OpenPath opens the database at path, ":memory:" included, and creates
// the schema.
func OpenPath(path string) (*Manager, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		dsn += filePragmas
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	conn.SetMaxOpenConns(1)

	if err := initSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Manager{db: conn, path: path}, nil
}

// Path returns where the database lives.
func (m *Manager) Path() string { return m.path }

func (m *Manager) Close() error {
	return m.db.Close()
}

// DB exposes the connection to stores sharing the file, such as the
// similar artists cache.
func (m *Manager) DB() *sql.DB {
	return m.db
}
