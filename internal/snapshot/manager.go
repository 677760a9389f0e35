package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/db"
	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/extract"
	"github.com/michaelscutari/seek/internal/rollup"
	"github.com/michaelscutari/seek/internal/scan"
	"github.com/michaelscutari/seek/internal/session"

	_ "modernc.org/sqlite"
)

// ErrLocked means another search holds the output directory.
var ErrLocked = errors.New("another search is in progress")

const (
	snapshotPrefix = "seek-"
	lockName       = ".seek.lock"
	latestName     = "latest.db"
)

// ProgressFunc is called for every search event with the current counters.
type ProgressFunc func(ev scan.Event, c entry.CounterSnapshot)

// StageFunc is called when the workflow stage changes.
type StageFunc func(stage string)

// Report describes a persisted search.
type Report struct {
	Path string
	Meta entry.SearchMeta
}

// Manager handles the search lifecycle including locking and retention.
type Manager struct {
	outputDir    string
	retention    int
	lockFile     *os.File
	progressFunc ProgressFunc
	stageFunc    StageFunc
	indexMode    string
	sqliteTmpDir string
	batchSize    int
	now          func() time.Time
}

// NewManager creates a new snapshot manager.
func NewManager(outputDir string, retention int) *Manager {
	return &Manager{
		outputDir: outputDir,
		retention: retention,
		batchSize: 1000,
		now:       time.Now,
	}
}

// SetProgressFunc sets a callback for search events.
func (m *Manager) SetProgressFunc(f ProgressFunc) {
	m.progressFunc = f
}

// SetStageFunc sets a callback for stage updates.
func (m *Manager) SetStageFunc(f StageFunc) {
	m.stageFunc = f
}

// SetIndexMode sets the index build mode: memory|disk|skip.
func (m *Manager) SetIndexMode(mode string) {
	m.indexMode = mode
}

// SetSQLiteTmpDir sets the temp directory for SQLite during index build.
func (m *Manager) SetSQLiteTmpDir(dir string) {
	m.sqliteTmpDir = dir
}

func (m *Manager) stage(s string) {
	logrus.WithField("stage", s).Debug("snapshot stage")
	if m.stageFunc != nil {
		m.stageFunc(s)
	}
}

// RunSearch runs a search and stores its results, skipped files, errors and
// metadata in a new snapshot database. Configuration errors are returned
// before anything is written. A stopped, timed-out or errored search is
// still persisted with its partial results.
func (m *Manager) RunSearch(ctx context.Context, opts *scan.Options, extractor extract.ContentExtractor) (*Report, error) {
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := m.acquireLock(); err != nil {
		return nil, err
	}
	defer m.releaseLock()

	tempPath := filepath.Join(m.outputDir, fmt.Sprintf(".seek-temp-%d.db", time.Now().UnixNano()))
	database, err := sql.Open("sqlite", tempPath)
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	fail := func(format string, err error) (*Report, error) {
		database.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf(format, err)
	}

	if err := db.InitSchema(database); err != nil {
		return fail("failed to initialize schema: %w", err)
	}
	if err := db.ApplyWritePragmas(database); err != nil {
		return fail("failed to apply pragmas: %w", err)
	}

	resultCh := make(chan entry.MatchResult, m.batchSize)
	skipCh := make(chan entry.SkippedFile, 4*m.batchSize)
	errorCh := make(chan entry.ScanError, m.batchSize)
	ing := db.NewIngester(database, resultCh, skipCh, errorCh, m.batchSize, 1000)
	ingCtx, cancelIng := context.WithCancel(context.Background())
	defer cancelIng()
	ingDone := make(chan error, 1)
	ingExited := make(chan struct{})
	go func() {
		ingDone <- ing.Run(ingCtx)
		close(ingExited)
	}()
	closeAll := func() {
		close(resultCh)
		close(skipCh)
		close(errorCh)
	}

	hooks := scan.Hooks{
		OnSkip: func(s entry.SkippedFile) {
			select {
			case skipCh <- s:
			case <-ingExited:
			}
		},
		OnError: func(e entry.ScanError) {
			// Non-blocking send - errors are sampled anyway
			select {
			case errorCh <- e:
			default:
			}
		},
	}

	sess, err := session.Start(ctx, opts, extractor, hooks)
	if err != nil {
		closeAll()
		<-ingDone
		return fail("%w", err)
	}
	defer sess.Close()

	m.stage("search")
	for ev := range sess.Events() {
		if m.progressFunc != nil {
			m.progressFunc(ev, sess.Counters())
		}
	}
	st, _ := sess.Wait(context.Background())

	m.stage("store")
	results, err := sess.Results()
	if err != nil {
		closeAll()
		<-ingDone
		return fail("failed to collect results: %w", err)
	}
store:
	for _, r := range results {
		select {
		case resultCh <- r:
		case <-ingExited:
			break store
		}
	}
	closeAll()
	if err := <-ingDone; err != nil {
		return fail("ingester error: %w", err)
	}

	meta := sess.Meta()
	if err := db.WriteSearchMeta(database, meta); err != nil {
		return fail("%w", err)
	}

	m.stage("rollups")
	if err := rollup.NewBuilder(database).Build(context.Background(), meta.RootPath); err != nil {
		return fail("failed to build rollups: %w", err)
	}

	if m.indexMode == "" {
		m.indexMode = "memory"
	}
	if m.indexMode != "skip" {
		m.stage("indexes")
		if err := db.ApplyIndexPragmas(database, m.indexMode == "disk", m.sqliteTmpDir); err != nil {
			return fail("failed to apply index pragmas: %w", err)
		}
		if err := db.BuildIndexes(database); err != nil {
			return fail("failed to build indexes: %w", err)
		}
	}

	m.stage("finalize")
	if err := db.Finalize(database); err != nil {
		return fail("failed to finalize database: %w", err)
	}
	database.Close()

	finalName, err := m.nextSnapshotName()
	if err != nil {
		os.Remove(tempPath)
		return nil, err
	}
	finalPath := filepath.Join(m.outputDir, finalName)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to rename database: %w", err)
	}

	m.updateLatest(finalName)

	if err := m.pruneOldSnapshots(); err != nil {
		logrus.WithError(err).Warn("failed to prune old snapshots")
	}

	logrus.WithFields(logrus.Fields{
		"path":    finalPath,
		"state":   st,
		"results": meta.ResultCount,
	}).Info("snapshot written")
	return &Report{Path: finalPath, Meta: meta}, nil
}

// nextSnapshotName returns a timestamped name that no existing file uses.
// Runs within the same second get a _NN suffix, which sorts after the
// bare name.
func (m *Manager) nextSnapshotName() (string, error) {
	stamp := m.now().Format("20060102-150405")
	name := fmt.Sprintf("%s%s.db", snapshotPrefix, stamp)
	for i := 1; i < 100; i++ {
		if _, err := os.Lstat(filepath.Join(m.outputDir, name)); errors.Is(err, os.ErrNotExist) {
			return name, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to check snapshot name: %w", err)
		}
		name = fmt.Sprintf("%s%s_%02d.db", snapshotPrefix, stamp, i)
	}
	return "", fmt.Errorf("too many snapshots for %s", stamp)
}

// updateLatest points latest.db at name via temp symlink + rename.
func (m *Manager) updateLatest(name string) {
	latestPath := filepath.Join(m.outputDir, latestName)
	tempLink := filepath.Join(m.outputDir, ".latest.db.tmp")
	os.Remove(tempLink)
	if err := os.Symlink(name, tempLink); err != nil {
		logrus.WithError(err).Warn("failed to create latest.db symlink")
		return
	}
	if err := os.Rename(tempLink, latestPath); err != nil {
		os.Remove(tempLink)
		logrus.WithError(err).Warn("failed to update latest.db symlink")
	}
}

func (m *Manager) acquireLock() error {
	lockPath := filepath.Join(m.outputDir, lockName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return ErrLocked
	}

	m.lockFile = f
	return nil
}

func (m *Manager) releaseLock() {
	if m.lockFile != nil {
		unlockFile(m.lockFile)
		m.lockFile.Close()
		m.lockFile = nil
	}
}

func (m *Manager) snapshotNames() ([]string, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return nil, err
	}

	var snapshots []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), snapshotPrefix) && strings.HasSuffix(e.Name(), ".db") {
			snapshots = append(snapshots, e.Name())
		}
	}

	// names embed the timestamp, so this is chronological
	sort.Strings(snapshots)
	return snapshots, nil
}

func (m *Manager) pruneOldSnapshots() error {
	if m.retention <= 0 {
		return nil
	}

	snapshots, err := m.snapshotNames()
	if err != nil {
		return err
	}

	for len(snapshots) > m.retention {
		oldPath := filepath.Join(m.outputDir, snapshots[0])
		if err := os.Remove(oldPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", snapshots[0], err)
		}
		snapshots = snapshots[1:]
	}

	return nil
}

// GetLatest returns the path to the latest snapshot.
func (m *Manager) GetLatest() (string, error) {
	latestPath := filepath.Join(m.outputDir, latestName)
	resolved, err := filepath.EvalSymlinks(latestPath)
	if err != nil {
		return "", fmt.Errorf("no latest snapshot found: %w", err)
	}
	return resolved, nil
}

// ListSnapshots returns all available snapshots sorted by date.
func (m *Manager) ListSnapshots() ([]string, error) {
	names, err := m.snapshotNames()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(m.outputDir, n)
	}
	return paths, nil
}

// Open opens a finished snapshot for reading with the query cache enabled.
// Close it with Close.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	if err := db.ApplyReadPragmas(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	db.EnableQueryCache(database)
	return database, nil
}

// Close releases a database returned by Open.
func Close(database *sql.DB) error {
	db.DropQueryCache(database)
	return database.Close()
}
