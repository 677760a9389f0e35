package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelscutari/seek/internal/entry"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// :memory: databases are per connection
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	if err := InitSchema(database); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return database
}

func insertResult(t *testing.T, database *sql.DB, kind entry.Kind, path string, size int64, mtime int64) {
	t.Helper()
	r := entry.MatchResult{
		EntryType:     kind,
		Name:          filepath.Base(path),
		Size:          size,
		SizeFormatted: "x",
		ModTime:       time.Unix(mtime, 0),
		FullPath:      path,
		Keyword:       "k",
	}
	_, err := database.Exec(insertResultSQL, r.EntryType, r.Name, r.Size, r.SizeFormatted, mtime, 0, r.FullPath, r.Keyword, r.Source)
	if err != nil {
		t.Fatalf("insert %s: %v", path, err)
	}
}

func TestLoadResultsSortsAndFilters(t *testing.T) {
	database := openTestDB(t)
	insertResult(t, database, entry.KindDir, "/data/invoices", 0, 300)
	insertResult(t, database, entry.KindFile, "/data/b_report.txt", 200, 100)
	insertResult(t, database, entry.KindFile, "/data/a_notes.txt", 50, 200)

	byName, err := LoadResults(database, "name", "", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(byName) != 3 || byName[0].Name != "a_notes.txt" || byName[2].EntryType != entry.KindDir {
		t.Fatalf("unexpected name order: %+v", byName)
	}

	bySize, err := LoadResults(database, "size", "", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if bySize[0].Name != "b_report.txt" {
		t.Fatalf("expected largest first, got %s", bySize[0].Name)
	}

	byTime, err := LoadResults(database, "mtime", "", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if byTime[0].Name != "invoices" || !byTime[0].ModTime.Equal(time.Unix(300, 0)) {
		t.Fatalf("expected newest first, got %+v", byTime[0])
	}

	filtered, err := LoadResults(database, "name", "REPORT", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "b_report.txt" {
		t.Fatalf("filter mismatch: %+v", filtered)
	}

	// underscore is literal, not a LIKE wildcard
	literal, err := LoadResults(database, "name", "a_n", 10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(literal) != 1 {
		t.Fatalf("expected one literal match, got %d", len(literal))
	}

	limited, err := LoadResults(database, "name", "", 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d rows", len(limited))
	}
}

func TestLoadResultsUsesQueryCache(t *testing.T) {
	database := openTestDB(t)
	insertResult(t, database, entry.KindFile, "/data/one.txt", 1, 1)

	EnableQueryCache(database)
	defer DropQueryCache(database)

	first, err := LoadResults(database, "name", "", 0)
	if err != nil || len(first) != 1 {
		t.Fatalf("first load: %v, %d rows", err, len(first))
	}

	insertResult(t, database, entry.KindFile, "/data/two.txt", 1, 1)
	second, err := LoadResults(database, "name", "", 0)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected cached page, got %d rows", len(second))
	}
}

func TestSearchMetaRoundTrip(t *testing.T) {
	database := openTestDB(t)
	start := time.Unix(1700000000, 0)
	want := entry.SearchMeta{
		ID:          "abc",
		RootPath:    "/data",
		Keywords:    "invoice, receipt",
		StartTime:   start,
		EndTime:     start.Add(time.Minute),
		State:       "completed",
		FileCount:   10,
		DirCount:    3,
		ResultCount: 2,
		SkipCount:   1,
	}
	if err := WriteSearchMeta(database, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := GetSearchMeta(database)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != want.ID || got.State != want.State || !got.EndTime.Equal(want.EndTime) || got.FileCount != 10 {
		t.Fatalf("meta mismatch: %+v", got)
	}
}
