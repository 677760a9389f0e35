// Package rollup aggregates stored search results per directory so the
// folders where matches concentrate can be listed.
package rollup

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/pathutil"
)

// DirRollup summarises the results at or below one directory.
type DirRollup struct {
	Path           string
	Depth          int
	Matches        int64
	ContentMatches int64
	TotalSize      int64
}

// Builder computes directory rollups from the results table.
type Builder struct {
	db       *sql.DB
	cache    map[string]*DirRollup
	progress ProgressFunc
}

// ProgressFunc reports rollup progress.
type ProgressFunc func(done, total int64)

// NewBuilder creates a new rollup builder.
func NewBuilder(db *sql.DB) *Builder {
	return &Builder{
		db:    db,
		cache: make(map[string]*DirRollup),
	}
}

// SetProgressFunc sets a callback for rollup progress updates.
func (b *Builder) SetProgressFunc(f ProgressFunc) {
	b.progress = f
}

// Build credits every result to each directory from its parent up to root
// and stores one row per directory, deepest first.
func (b *Builder) Build(ctx context.Context, root string) error {
	root = filepath.Clean(root)

	rows, err := b.db.QueryContext(ctx, `SELECT full_path, size, source FROM results`)
	if err != nil {
		return fmt.Errorf("failed to query results: %w", err)
	}
	for rows.Next() {
		var path string
		var size int64
		var source entry.MatchSource
		if err := rows.Scan(&path, &size, &source); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan result: %w", err)
		}
		b.credit(root, path, size, source)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	dirs := make([]*DirRollup, 0, len(b.cache))
	for _, r := range b.cache {
		dirs = append(dirs, r)
	}
	sort.Slice(dirs, func(i, j int) bool {
		if dirs[i].Depth != dirs[j].Depth {
			return dirs[i].Depth > dirs[j].Depth
		}
		return dirs[i].Path < dirs[j].Path
	})

	// Start transaction for all rollup writes
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO match_dirs (path, depth, matches, content_matches, total_size)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insertStmt.Close()

	total := int64(len(dirs))
	lastUpdate := time.Now()
	for i, r := range dirs {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if _, err := insertStmt.Exec(r.Path, r.Depth, r.Matches, r.ContentMatches, r.TotalSize); err != nil {
			return fmt.Errorf("failed to insert rollup for %s: %w", r.Path, err)
		}

		done := int64(i + 1)
		if b.progress != nil && (done == total || time.Since(lastUpdate) > 200*time.Millisecond) {
			b.progress(done, total)
			lastUpdate = time.Now()
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollups: %w", err)
	}

	return nil
}

func (b *Builder) credit(root, path string, size int64, source entry.MatchSource) {
	dir := filepath.Dir(filepath.Clean(path))
	if !within(dir, root) {
		return
	}
	for {
		r := b.cache[dir]
		if r == nil {
			r = &DirRollup{Path: dir, Depth: depthBelow(root, dir)}
			b.cache[dir] = r
		}
		r.Matches++
		r.TotalSize += size
		if source == entry.MatchedContent {
			r.ContentMatches++
		}

		if len(dir) <= len(root) {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func within(dir, root string) bool {
	if len(dir) == len(root) {
		return strings.EqualFold(dir, root)
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return pathutil.HasPrefixFold(dir, prefix)
}

func depthBelow(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// Top returns the directories with the most matches, skipping the root.
// limit <= 0 returns all of them.
func Top(db *sql.DB, limit int) ([]DirRollup, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT path, depth, matches, content_matches, total_size
		FROM match_dirs
		WHERE depth > 0
		ORDER BY matches DESC, depth DESC, path ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []DirRollup
	for rows.Next() {
		var r DirRollup
		if err := rows.Scan(&r.Path, &r.Depth, &r.Matches, &r.ContentMatches, &r.TotalSize); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the rollup of one directory, or nil if nothing matched below it.
func Get(db *sql.DB, path string) (*DirRollup, error) {
	r := &DirRollup{}
	err := db.QueryRow(`
		SELECT path, depth, matches, content_matches, total_size
		FROM match_dirs WHERE path = ?
	`, path).Scan(&r.Path, &r.Depth, &r.Matches, &r.ContentMatches, &r.TotalSize)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
