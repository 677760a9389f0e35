package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/entry"
)

const insertResultSQL = `INSERT INTO results (entry_type, name, size, size_formatted, mtime, ctime, full_path, keyword, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
const insertSkippedSQL = `INSERT INTO skipped_files (path, reason) VALUES (?, ?)`
const insertErrorSQL = `INSERT INTO search_errors (path, message) VALUES (?, ?)`

const maxErrorsSampled = 1000

// Ingester batches search output and writes it to the database.
type Ingester struct {
	db              *sql.DB
	resultCh        <-chan entry.MatchResult
	skipCh          <-chan entry.SkippedFile
	errorCh         <-chan entry.ScanError
	batchSize       int
	flushIntervalMs int

	resultBatch []entry.MatchResult
	skipBatch   []entry.SkippedFile
	errorBatch  []entry.ScanError
	errorCapped bool

	resultCount atomic.Int64
	skipCount   atomic.Int64
	errorCount  atomic.Int64

	resultStmt *sql.Stmt
	skipStmt   *sql.Stmt
	errorStmt  *sql.Stmt
}

// Progress holds the number of rows received so far.
type Progress struct {
	Results int64
	Skipped int64
	Errors  int64
}

// NewIngester creates an ingester. Any channel may be nil.
func NewIngester(db *sql.DB, resultCh <-chan entry.MatchResult, skipCh <-chan entry.SkippedFile, errorCh <-chan entry.ScanError, batchSize, flushIntervalMs int) *Ingester {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 1000
	}
	return &Ingester{
		db:              db,
		resultCh:        resultCh,
		skipCh:          skipCh,
		errorCh:         errorCh,
		batchSize:       batchSize,
		flushIntervalMs: flushIntervalMs,
		resultBatch:     make([]entry.MatchResult, 0, batchSize),
		skipBatch:       make([]entry.SkippedFile, 0, batchSize),
		errorBatch:      make([]entry.ScanError, 0, 100),
	}
}

// Run consumes the channels until all are closed, flushing in batches.
func (ing *Ingester) Run(ctx context.Context) error {
	var err error
	ing.resultStmt, err = ing.db.Prepare(insertResultSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare result statement: %w", err)
	}
	defer ing.resultStmt.Close()

	ing.skipStmt, err = ing.db.Prepare(insertSkippedSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare skipped statement: %w", err)
	}
	defer ing.skipStmt.Close()

	ing.errorStmt, err = ing.db.Prepare(insertErrorSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare error statement: %w", err)
	}
	defer ing.errorStmt.Close()

	ticker := time.NewTicker(time.Duration(ing.flushIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	resultCh := ing.resultCh
	skipCh := ing.skipCh
	errorCh := ing.errorCh

	for resultCh != nil || skipCh != nil || errorCh != nil {
		select {
		case <-ctx.Done():
			return ing.flush()

		case r, ok := <-resultCh:
			if !ok {
				resultCh = nil
				continue
			}
			ing.resultCount.Add(1)
			ing.resultBatch = append(ing.resultBatch, r)
			if len(ing.resultBatch) >= ing.batchSize {
				if err := ing.flushResults(); err != nil {
					return err
				}
			}

		case s, ok := <-skipCh:
			if !ok {
				skipCh = nil
				continue
			}
			ing.skipCount.Add(1)
			ing.skipBatch = append(ing.skipBatch, s)
			if len(ing.skipBatch) >= ing.batchSize {
				if err := ing.flushSkipped(); err != nil {
					return err
				}
			}

		case e, ok := <-errorCh:
			if !ok {
				errorCh = nil
				continue
			}
			ing.errorCount.Add(1)
			// Only sample first N errors to bound memory
			if !ing.errorCapped {
				ing.errorBatch = append(ing.errorBatch, e)
				if len(ing.errorBatch) >= maxErrorsSampled {
					ing.errorCapped = true
					logrus.WithField("sampled", maxErrorsSampled).Warn("error log full, further errors are counted only")
					if err := ing.flushErrors(); err != nil {
						return err
					}
				}
			}

		case <-ticker.C:
			if err := ing.flush(); err != nil {
				return err
			}
		}
	}

	return ing.flush()
}

func (ing *Ingester) flush() error {
	if err := ing.flushResults(); err != nil {
		return err
	}
	if err := ing.flushSkipped(); err != nil {
		return err
	}
	return ing.flushErrors()
}

func (ing *Ingester) flushResults() error {
	if len(ing.resultBatch) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := ing.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.Stmt(ing.resultStmt)
	for _, r := range ing.resultBatch {
		_, err := stmt.Exec(r.EntryType, r.Name, r.Size, r.SizeFormatted, r.ModTime.Unix(), unixOrZero(r.CreateTime), r.FullPath, r.Keyword, r.Source)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert result %q: %w", r.FullPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{"rows": len(ing.resultBatch), "took": time.Since(start)}).Debug("flushed results")
	ing.resultBatch = ing.resultBatch[:0]
	return nil
}

func (ing *Ingester) flushSkipped() error {
	if len(ing.skipBatch) == 0 {
		return nil
	}

	tx, err := ing.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin skipped transaction: %w", err)
	}

	stmt := tx.Stmt(ing.skipStmt)
	for _, s := range ing.skipBatch {
		if _, err := stmt.Exec(s.Path, s.Reason); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert skipped %q: %w", s.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit skipped transaction: %w", err)
	}

	ing.skipBatch = ing.skipBatch[:0]
	return nil
}

func (ing *Ingester) flushErrors() error {
	if len(ing.errorBatch) == 0 {
		return nil
	}

	tx, err := ing.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin error transaction: %w", err)
	}

	stmt := tx.Stmt(ing.errorStmt)
	for _, e := range ing.errorBatch {
		_, err := stmt.Exec(e.Path, e.Message)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert error for %q: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit error transaction: %w", err)
	}

	ing.errorBatch = ing.errorBatch[:0]
	return nil
}

// ErrorCount returns the total number of errors received.
func (ing *Ingester) ErrorCount() int64 {
	return ing.errorCount.Load()
}

// Progress returns current counts (safe for concurrent access).
func (ing *Ingester) Progress() Progress {
	return Progress{
		Results: ing.resultCount.Load(),
		Skipped: ing.skipCount.Load(),
		Errors:  ing.errorCount.Load(),
	}
}

// WriteSearchMeta stores the single search_meta row, replacing any
// previous one.
func WriteSearchMeta(db *sql.DB, m entry.SearchMeta) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO search_meta
		    (id, search_id, root_path, keywords, start_time, end_time, state,
		     file_count, dir_count, bytes_read, result_count, skip_count, error_count)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.RootPath, m.Keywords, m.StartTime.Unix(), unixOrZero(m.EndTime), m.State,
		m.FileCount, m.DirCount, m.BytesRead, m.ResultCount, m.SkipCount, m.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to write search meta: %w", err)
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
