package db

import (
	"database/sql"
	"fmt"
	"os"
)

const resultsTableDDL = `
CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY,
    entry_type INTEGER NOT NULL,
    name TEXT NOT NULL,
    size INTEGER NOT NULL,
    size_formatted TEXT NOT NULL,
    mtime INTEGER NOT NULL,
    ctime INTEGER NOT NULL,
    full_path TEXT NOT NULL,
    keyword TEXT NOT NULL,
    source INTEGER NOT NULL
);
`

const skippedTableDDL = `
CREATE TABLE IF NOT EXISTS skipped_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    reason TEXT NOT NULL
);
`

const searchMetaTableDDL = `
CREATE TABLE IF NOT EXISTS search_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    search_id TEXT NOT NULL,
    root_path TEXT NOT NULL,
    keywords TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    state TEXT NOT NULL DEFAULT '',
    file_count INTEGER DEFAULT 0,
    dir_count INTEGER DEFAULT 0,
    bytes_read INTEGER DEFAULT 0,
    result_count INTEGER DEFAULT 0,
    skip_count INTEGER DEFAULT 0,
    error_count INTEGER DEFAULT 0
);
`

const searchErrorsTableDDL = `
CREATE TABLE IF NOT EXISTS search_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    message TEXT NOT NULL
);
`

const matchDirsTableDDL = `
CREATE TABLE IF NOT EXISTS match_dirs (
    path TEXT PRIMARY KEY,
    depth INTEGER NOT NULL,
    matches INTEGER NOT NULL,
    content_matches INTEGER NOT NULL,
    total_size INTEGER NOT NULL
);
`

const resultsNameIndexDDL = `CREATE INDEX IF NOT EXISTS idx_results_name ON results(entry_type, name);`
const resultsSizeIndexDDL = `CREATE INDEX IF NOT EXISTS idx_results_size ON results(size DESC);`
const resultsMtimeIndexDDL = `CREATE INDEX IF NOT EXISTS idx_results_mtime ON results(mtime DESC);`
const resultsPathIndexDDL = `CREATE INDEX IF NOT EXISTS idx_results_path ON results(full_path);`

// InitSchema creates all tables in the database.
func InitSchema(db *sql.DB) error {
	ddls := []string{
		resultsTableDDL,
		skippedTableDDL,
		searchMetaTableDDL,
		searchErrorsTableDDL,
		matchDirsTableDDL,
	}

	for _, ddl := range ddls {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}

// ApplyWritePragmas configures SQLite for fast ingestion.
func ApplyWritePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// ApplyReadPragmas configures SQLite for browsing a finished snapshot.
func ApplyReadPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA cache_size = -16000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA query_only = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

// ApplyIndexPragmas picks where SQLite keeps temp data during index builds.
// When diskTemp is true, temp files go to tmpDir (or the default) instead
// of RAM.
func ApplyIndexPragmas(db *sql.DB, diskTemp bool, tmpDir string) error {
	if tmpDir != "" {
		if err := os.MkdirAll(tmpDir, 0755); err != nil {
			return fmt.Errorf("failed to create sqlite temp dir: %w", err)
		}
		if err := os.Setenv("SQLITE_TMPDIR", tmpDir); err != nil {
			return fmt.Errorf("failed to set SQLITE_TMPDIR: %w", err)
		}
	}

	pragma := "PRAGMA temp_store = MEMORY"
	if diskTemp {
		pragma = "PRAGMA temp_store = FILE"
	}
	if _, err := db.Exec(pragma); err != nil {
		return fmt.Errorf("failed to set temp_store: %w", err)
	}

	return nil
}

// BuildIndexes creates the sort indexes once results are loaded.
func BuildIndexes(db *sql.DB) error {
	indexes := []string{
		resultsNameIndexDDL,
		resultsSizeIndexDDL,
		resultsMtimeIndexDDL,
		resultsPathIndexDDL,
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// Finalize prepares the database for read-only access.
func Finalize(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize: %w", err)
	}

	// DELETE journal keeps the snapshot a single portable file
	if _, err := db.Exec("PRAGMA journal_mode = DELETE"); err != nil {
		return fmt.Errorf("failed to set journal mode: %w", err)
	}

	return nil
}
