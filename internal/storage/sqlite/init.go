package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const DefaultDBFile = "artifacts.db"

// InitDB opens the SQLite database at path and creates the artifacts table if it
// doesn't exist. ":memory:" is accepted for tests.
func InitDB(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultDBFile
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// resolutions finish concurrently; one writer avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		path TEXT,
		url TEXT,
		source TEXT,
		checksum TEXT,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		bytes INTEGER DEFAULT 0,
		checksum_mismatch INTEGER DEFAULT 0,
		run_id TEXT,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create artifacts table: %w", err)
	}

	return db, nil
}
