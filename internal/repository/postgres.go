package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lists (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		order_number INTEGER NOT NULL DEFAULT 0,
		is_archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		modified_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lists_id ON lists(id);
	CREATE INDEX IF NOT EXISTS idx_lists_order ON lists(order_number);

	CREATE TABLE IF NOT EXISTS items (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL,
		list_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		quantity INTEGER NOT NULL DEFAULT 1,
		order_number INTEGER NOT NULL DEFAULT 0,
		is_crossed_out BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		modified_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_id ON items(id);
	CREATE INDEX IF NOT EXISTS idx_items_list_order ON items(list_id, order_number);

	CREATE TABLE IF NOT EXISTS item_images (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		data BYTEA NOT NULL,
		order_number INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_images_id ON item_images(id);
	CREATE INDEX IF NOT EXISTS idx_images_item_order ON item_images(item_id, order_number);

	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		sort_mode TEXT NOT NULL DEFAULT 'manual',
		hide_crossed_out BOOLEAN NOT NULL DEFAULT FALSE,
		show_archived BOOLEAN NOT NULL DEFAULT FALSE,
		last_sync_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	`

	_, err := db.Exec(schema)
	return err
}
