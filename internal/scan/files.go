package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/pool"
)

// dispatchFiles submits the files of one block in chunks of
// MaxFilesPerBlock, re-checking limits between chunks.
func (e *Engine) dispatchFiles(ctx context.Context, files []string) {
	for i, path := range files {
		if i > 0 && i%e.opts.MaxFilesPerBlock == 0 {
			e.harvest()
			e.maybeReport()
		}
		if e.shouldStop(ctx) {
			return
		}
		if skip, reason := e.classifier.ShouldSkipFile(path); skip {
			e.recordSkip(path, reason)
			continue
		}

		n := e.counters.FilesChecked.Add(1)
		if max := e.opts.MaxFilesToCheck; max > 0 && n > max {
			e.limit(fmt.Sprintf("file limit of %d reached", max))
			return
		}
		if n%e.opts.MemoryCheckEvery == 0 {
			e.checkMemory()
		}
		e.submit(ctx, path)
	}
}

// submit hands one file to the pool, or matches it inline when the pool
// is missing or refuses work.
func (e *Engine) submit(ctx context.Context, path string) {
	task := entry.MatchTask{
		Path:          path,
		Keywords:      e.matcher.Keywords(),
		SearchName:    e.opts.SearchFiles,
		SearchContent: e.opts.SearchContent,
	}
	job := pool.Job{
		Path:    path,
		Timeout: e.opts.FileTimeoutFor(path),
		Run: func(ctx context.Context) (*entry.MatchResult, error) {
			return e.matchFile(ctx, task)
		},
	}

	if p := e.pool.Load(); p != nil {
		_, err := p.Submit(job)
		if err == nil {
			e.outstanding++
			return
		}
		if e.stopRequested(ctx) {
			return
		}
		logrus.WithError(err).WithField("file", path).Debug("pool refused task, matching inline")
	}
	r, err := pool.RunInline(job)
	e.collect(path, r, err)
}

// matchFile runs on a pool worker. A name match wins over content.
func (e *Engine) matchFile(ctx context.Context, task entry.MatchTask) (*entry.MatchResult, error) {
	info, err := os.Stat(task.Path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	if task.SearchName {
		if ok, kw := e.matcher.MatchesAny(info.Name()); ok {
			r := entry.NewMatchResult(entry.KindFile, task.Path, info, kw, entry.MatchedName)
			return &r, nil
		}
	}

	if !task.SearchContent || e.extractor == nil {
		return nil, nil
	}
	if !e.classifier.ShouldSearchContent(task.Path, info.Size(), e.opts.MaxFileSizeBytes) {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, ok := e.extractor.Extract(ctx, task.Path, e.opts.Profile)
	e.counters.BytesScanned.Add(info.Size())
	if !ok {
		return nil, nil
	}
	if matched, kw := e.matcher.MatchesAny(text); matched {
		r := entry.NewMatchResult(entry.KindFile, task.Path, info, kw, entry.MatchedContent)
		return &r, nil
	}
	return nil, nil
}

// collect records the outcome of one file task.
func (e *Engine) collect(path string, r *entry.MatchResult, err error) {
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrTaskCancelled), errors.Is(err, context.Canceled):
			return
		case errors.Is(err, pool.ErrTaskTimeout), errors.Is(err, context.DeadlineExceeded):
			e.recordError(path, err)
			return
		}
		switch ClassifyError(err) {
		case ErrorFileVanished:
		case ErrorPermissionDenied:
			logrus.WithField("file", path).Debug("permission denied")
			e.recordError(path, err)
		default:
			logrus.WithError(err).WithField("file", path).Warn("file match failed")
			e.recordError(path, err)
		}
		return
	}
	if r != nil {
		e.addResult(*r)
	}
}

// harvest collects every future resolved since the last call.
func (e *Engine) harvest() {
	p := e.pool.Load()
	if p == nil {
		return
	}
	for _, f := range p.Completed() {
		e.outstanding--
		r, err := f.Result()
		e.collect(f.Path, r, err)
	}
}

// finalize waits for the outstanding futures. On an interrupted run the
// pending ones are cancelled first.
func (e *Engine) finalize(ctx context.Context, outcome State) State {
	if p := e.pool.Load(); p != nil {
		cancelled := outcome != StateCompleted
		p.Shutdown(cancelled)

		total := e.outstanding
		ticker := time.NewTicker(e.opts.ProgressInterval)
		defer ticker.Stop()

		e.harvest()
		for e.outstanding > 0 {
			if !cancelled {
				if st, ok := e.interrupted(ctx); ok {
					outcome = st
					cancelled = true
					p.Shutdown(true)
				}
			}
			select {
			case <-p.Ready():
				e.harvest()
			case <-ticker.C:
				e.sink.Emit(progressEvent(finalPercent(total-e.outstanding, total)))
			}
		}
	}

	// a cap hit by the last futures still ends the run as Stopped
	if outcome == StateCompleted && e.limited.Load() {
		outcome = StateStopped
	}
	e.sortResults()
	e.sink.Emit(progressEvent(100))
	return outcome
}

func (e *Engine) checkMemory() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.Sys < e.opts.MemoryThresholdBytes {
		return
	}
	logrus.WithFields(logrus.Fields{
		"sys":       humanize.Bytes(ms.Sys),
		"threshold": humanize.Bytes(e.opts.MemoryThresholdBytes),
	}).Debug("memory above threshold, returning it to the OS")
	debug.FreeOSMemory()
}
