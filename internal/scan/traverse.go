package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/michaelscutari/seek/internal/classify"
	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/pathutil"
	"github.com/michaelscutari/seek/internal/queue"
)

var errStopped = errors.New("search stopped")

type listing struct {
	entries []os.DirEntry
	err     error
}

// seed expands the root. Its files go straight to the pool and its
// subdirectories become the first blocks.
func (e *Engine) seed(ctx context.Context) {
	root := entry.Block{Path: e.opts.Root, Priority: queue.PriorityHigh}
	key := pathutil.Canonical(root.Path)
	e.queue.Visited().Add(key)
	e.processed[key] = struct{}{}

	l := e.list(ctx, root)
	if l.err != nil {
		e.listFailed(root, l.err)
		return
	}
	e.counters.DirectoriesChecked.Add(1)
	e.expandBlock(ctx, root, l.entries)
	e.blocksDone++
}

// drain pops blocks in priority order until the queue is empty or the
// search is interrupted.
func (e *Engine) drain(ctx context.Context) State {
	for {
		e.harvest()
		if st, ok := e.interrupted(ctx); ok {
			return st
		}

		batch := e.popBatch()
		if len(batch) == 0 {
			return StateCompleted
		}

		listings := e.listBlocks(ctx, batch)
		for i, b := range batch {
			if st, ok := e.interrupted(ctx); ok {
				return st
			}
			e.blocksDone++
			if err := listings[i].err; err != nil {
				e.listFailed(b, err)
				continue
			}
			e.counters.DirectoriesChecked.Add(1)
			e.expandBlock(ctx, b, listings[i].entries)
		}
		e.maybeReport()
	}
}

// popBatch takes up to MaxParallelBlocks blocks that have not been
// processed yet.
func (e *Engine) popBatch() []entry.Block {
	var batch []entry.Block
	for len(batch) < e.opts.MaxParallelBlocks {
		b, ok := e.queue.PopLowest()
		if !ok {
			break
		}
		key := pathutil.Canonical(b.Path)
		if _, done := e.processed[key]; done {
			continue
		}
		e.processed[key] = struct{}{}
		batch = append(batch, b)
	}
	return batch
}

// listBlocks reads the batch concurrently. Results are indexed like batch
// so children are handled in pop order.
func (e *Engine) listBlocks(ctx context.Context, batch []entry.Block) []listing {
	out := make([]listing, len(batch))
	if len(batch) == 1 {
		out[0] = e.list(ctx, batch[0])
		return out
	}
	var g errgroup.Group
	g.SetLimit(e.opts.MaxParallelBlocks)
	for i, b := range batch {
		g.Go(func() error {
			out[i] = e.list(ctx, b)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) list(ctx context.Context, b entry.Block) listing {
	if e.shouldStop(ctx) {
		return listing{err: errStopped}
	}
	entries, err := os.ReadDir(b.Path)
	return listing{entries: entries, err: err}
}

// expandBlock handles the children of one listed block. A panic here
// abandons the block and the walk carries on.
func (e *Engine) expandBlock(ctx context.Context, b entry.Block, entries []os.DirEntry) {
	defer func() {
		if v := recover(); v != nil {
			logrus.WithFields(logrus.Fields{"block": b.Path, "panic": v}).Error("abandoning block")
			e.recordError(b.Path, fmt.Errorf("block abandoned: %v", v))
		}
	}()

	var files []string
	for _, de := range entries {
		if e.shouldStop(ctx) {
			return
		}
		name := de.Name()
		child := filepath.Join(b.Path, name)
		if e.opts.IgnoreHidden && classify.IsHidden(child) {
			continue
		}
		if e.classifier.IsExcluded(child) {
			continue
		}

		isDir := de.IsDir()
		if de.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(child)
			if err != nil {
				// dangling link
				continue
			}
			isDir = info.IsDir()
		}

		if isDir {
			e.discoverDir(b, child, name)
			continue
		}
		if e.opts.SearchFiles || e.opts.SearchContent {
			files = append(files, child)
		}
	}
	e.dispatchFiles(ctx, files)
}

// discoverDir dedupes a subdirectory, matches its name and enqueues it
// when within the depth limit.
func (e *Engine) discoverDir(parent entry.Block, path, name string) {
	if !e.queue.Visited().Add(pathutil.Canonical(path)) {
		return
	}

	if e.opts.SearchFolders {
		if ok, kw := e.matcher.MatchesAny(name); ok {
			if info, err := os.Stat(path); err == nil {
				e.addResult(entry.NewMatchResult(entry.KindDir, path, info, kw, entry.MatchedName))
			}
		}
	}

	depth := parent.Depth + 1
	if e.opts.MaxDepth > 0 && depth > e.opts.MaxDepth {
		return
	}
	e.queue.Push(entry.Block{
		Path:     path,
		Priority: queue.PriorityFor(name, e.opts.Prioritize),
		Depth:    depth,
	})
}

func (e *Engine) listFailed(b entry.Block, err error) {
	if errors.Is(err, errStopped) {
		return
	}
	fields := logrus.Fields{"block": b.Path}
	switch ClassifyError(err) {
	case ErrorPermissionDenied:
		e.recordError(b.Path, err)
		if e.opts.SkipPermissionErrors {
			logrus.WithFields(fields).Debug("permission denied, skipping block")
			return
		}
		logrus.WithFields(fields).Warn("permission denied")
		e.sink.Emit(statusEvent("Permission denied: " + b.Path))
	case ErrorFileVanished:
	default:
		logrus.WithFields(fields).WithError(err).Error("cannot list block, abandoning it")
		e.recordError(b.Path, err)
	}
}

// maybeReport emits a status line and a draining percentage at most once
// per ProgressInterval.
func (e *Engine) maybeReport() {
	now := time.Now()
	if now.Sub(e.lastReport) < e.opts.ProgressInterval {
		return
	}
	e.lastReport = now

	c := e.counters.Snapshot()
	queued := e.queue.Len()
	elapsed := now.Sub(e.start).Round(time.Second)
	e.sink.Emit(statusEvent(fmt.Sprintf("Searched %s folders and %s files, %s queued (%s)",
		humanize.Comma(c.DirectoriesChecked), humanize.Comma(c.FilesChecked),
		humanize.Comma(int64(queued)), elapsed)))
	e.sink.Emit(progressEvent(drainPercent(e.blocksDone, queued)))

	logrus.WithFields(logrus.Fields{
		"blocks":  e.blocksDone,
		"queued":  queued,
		"files":   c.FilesChecked,
		"pending": e.outstanding,
		"results": e.resultCount(),
	}).Debug("search stats")
}

// drainPercent maps block progress onto 0..90.
func drainPercent(done int64, queued int) int {
	total := done + int64(queued)
	if total <= 0 {
		return 0
	}
	p := int(90 * done / total)
	if p > 90 {
		p = 90
	}
	return p
}

// finalPercent maps resolved futures onto 90..100.
func finalPercent(resolved, total int) int {
	if total <= 0 {
		return 100
	}
	return 90 + 10*resolved/total
}
