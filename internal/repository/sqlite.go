package repository

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/listsync/server/internal/observability"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// RecreateSQLiteDB destroys and recreates the store file. Last-resort
// recovery for a store corrupted beyond reading: this LOSES DATA and is
// logged accordingly so it can never be mistaken for a routine open.
func RecreateSQLiteDB(dbPath string) (*sql.DB, error) {
	observability.Errorf("DATA LOSS: recreating corrupt store at %s; all local records are being discarded", dbPath)

	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove corrupt store: %w", err)
		}
	}

	return NewSQLiteDB(dbPath)
}

func createTables(db *sql.DB) error {
	schema := `
	-- Lists. The logical id is deliberately NOT unique: two replicas can
	-- race and double-create the same record, and the repair pass needs to
	-- observe both rows. seq is the deterministic tie-break.
	CREATE TABLE IF NOT EXISTS lists (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		order_number INTEGER NOT NULL DEFAULT 0,
		is_archived INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lists_id ON lists(id);
	CREATE INDEX IF NOT EXISTS idx_lists_order ON lists(order_number);

	-- Items reference their list by logical id only (lookup, never
	-- traversal-based deletion ordering), so deleting a duplicate list row
	-- by seq leaves its items attached to the surviving row.
	CREATE TABLE IF NOT EXISTS items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		list_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		quantity INTEGER NOT NULL DEFAULT 1,
		order_number INTEGER NOT NULL DEFAULT 0,
		is_crossed_out INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_id ON items(id);
	CREATE INDEX IF NOT EXISTS idx_items_list_order ON items(list_id, order_number);

	CREATE TABLE IF NOT EXISTS item_images (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		data BLOB NOT NULL,
		order_number INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_images_id ON item_images(id);
	CREATE INDEX IF NOT EXISTS idx_images_item_order ON item_images(item_id, order_number);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		sort_mode TEXT NOT NULL DEFAULT 'manual',
		hide_crossed_out INTEGER NOT NULL DEFAULT 0,
		show_archived INTEGER NOT NULL DEFAULT 0,
		last_sync_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}
