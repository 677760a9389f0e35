package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/michaelscutari/seek/internal/entry"
)

// LoadResults returns stored results ordered by sortBy (name, size, mtime
// or path). A non-empty filter keeps rows whose name or path contains it,
// ignoring case.
func LoadResults(db *sql.DB, sortBy, filter string, limit int) ([]entry.MatchResult, error) {
	orderClause := "entry_type ASC, name ASC, full_path ASC"
	switch sortBy {
	case "size":
		orderClause = "size DESC, name ASC"
	case "mtime", "modified":
		orderClause = "mtime DESC, name ASC"
	case "path":
		orderClause = "full_path ASC"
	}
	if limit <= 0 {
		limit = -1
	}

	cache := getQueryCache(db)
	key := fmt.Sprintf("%s|%s|%d", orderClause, filter, limit)
	if cache != nil {
		if cached, ok := cache.Get(key); ok {
			return cached, nil
		}
	}

	query := fmt.Sprintf(`
		SELECT entry_type, name, size, size_formatted, mtime, ctime, full_path, keyword, source
		FROM results
		WHERE ? = '' OR lower(name) LIKE ? ESCAPE '\' OR lower(full_path) LIKE ? ESCAPE '\'
		ORDER BY %s
		LIMIT ?
	`, orderClause)

	pattern := "%" + escapeLike(strings.ToLower(filter)) + "%"
	rows, err := db.Query(query, filter, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []entry.MatchResult
	for rows.Next() {
		var r entry.MatchResult
		var mtime, ctime int64
		if err := rows.Scan(&r.EntryType, &r.Name, &r.Size, &r.SizeFormatted, &mtime, &ctime, &r.FullPath, &r.Keyword, &r.Source); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		r.ModTime = time.Unix(mtime, 0)
		if ctime > 0 {
			r.CreateTime = time.Unix(ctime, 0)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if cache != nil {
		cache.Set(key, results)
	}
	return results, nil
}

// LoadSkipped returns the skipped-file log in insertion order.
func LoadSkipped(db *sql.DB, limit int) ([]entry.SkippedFile, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT path, reason FROM skipped_files ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []entry.SkippedFile
	for rows.Next() {
		var s entry.SkippedFile
		if err := rows.Scan(&s.Path, &s.Reason); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadErrors returns the sampled error log in insertion order.
func LoadErrors(db *sql.DB, limit int) ([]entry.ScanError, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT path, message FROM search_errors ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []entry.ScanError
	for rows.Next() {
		var e entry.ScanError
		if err := rows.Scan(&e.Path, &e.Message); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetSearchMeta retrieves search metadata.
func GetSearchMeta(db *sql.DB) (*entry.SearchMeta, error) {
	var m entry.SearchMeta
	var startTime, endTime int64

	err := db.QueryRow(`
		SELECT search_id, root_path, keywords, start_time, COALESCE(end_time, 0), state,
		       file_count, dir_count, bytes_read, result_count, skip_count, error_count
		FROM search_meta WHERE id = 1
	`).Scan(&m.ID, &m.RootPath, &m.Keywords, &startTime, &endTime, &m.State,
		&m.FileCount, &m.DirCount, &m.BytesRead, &m.ResultCount, &m.SkipCount, &m.ErrorCount)
	if err != nil {
		return nil, err
	}

	m.StartTime = time.Unix(startTime, 0)
	if endTime > 0 {
		m.EndTime = time.Unix(endTime, 0)
	}

	return &m, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
