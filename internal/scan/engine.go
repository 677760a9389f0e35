// Package scan implements the block traversal engine: a priority-ordered
// directory walk that hands per-file matching to a worker pool.
package scan

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/classify"
	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/extract"
	"github.com/michaelscutari/seek/internal/match"
	"github.com/michaelscutari/seek/internal/pool"
	"github.com/michaelscutari/seek/internal/queue"
)

// Hooks receive per-item records the engine does not keep. They are called
// from the engine goroutine.
type Hooks struct {
	OnSkip  func(entry.SkippedFile)
	OnError func(entry.ScanError)
}

// Engine runs one search. Create it with NewEngine, call Run once.
type Engine struct {
	opts       *Options
	extractor  extract.ContentExtractor
	sink       Sink
	hooks      Hooks
	classifier *classify.Classifier
	matcher    *match.Matcher

	queue     *queue.BlockQueue
	processed map[string]struct{}
	counters  entry.Counters

	pool        atomic.Pointer[pool.Pool]
	outstanding int

	state    atomic.Uint32
	stopped  atomic.Bool
	limited  atomic.Bool
	reasonMu sync.Mutex
	reason   string

	resultsMu sync.Mutex
	results   []entry.MatchResult

	skipCount  atomic.Int64
	errorCount atomic.Int64

	start      time.Time
	blocksDone int64
	lastReport time.Time
}

// newPool builds the worker pool for a run.
var newPool = pool.New

// NewEngine creates an engine for validated opts. A nil extractor disables
// content matching; a nil sink discards events.
func NewEngine(opts *Options, extractor extract.ContentExtractor, sink Sink) *Engine {
	eff := opts.Effective()
	if sink == nil {
		sink = Discard
	}
	return &Engine{
		opts:       eff,
		extractor:  extractor,
		sink:       sink,
		classifier: classify.New(eff.Profile, eff.ExcludeSystemFiles, eff.ExcludedPrefixes, eff.CustomExtensions),
		matcher:    match.NewMatcher(eff.Keywords, eff.WholeWord),
		queue:      queue.New(queue.NewVisitedSet()),
		processed:  make(map[string]struct{}),
	}
}

// SetHooks installs hooks. It must be called before Run.
func (e *Engine) SetHooks(h Hooks) {
	e.hooks = h
}

// Options returns the effective options after whole-disk widening.
func (e *Engine) Options() *Options {
	return e.opts
}

// Run executes the search and returns its terminal state. Cancelling ctx
// has the same effect as Stop.
func (e *Engine) Run(ctx context.Context) (final State) {
	e.start = time.Now()
	e.lastReport = e.start

	defer func() {
		if v := recover(); v != nil {
			final = StateErrored
			e.fail(v, debug.Stack())
		}
		if p := e.pool.Load(); p != nil {
			p.Release()
		}
	}()

	e.setState(StateSeeding)
	logrus.WithFields(logrus.Fields{
		"root":     e.opts.Root,
		"keywords": e.opts.Keywords,
		"workers":  e.opts.Workers,
		"profile":  e.opts.Profile,
	}).Info("search started")

	if p, err := newPool(e.opts.Workers); err != nil {
		logrus.WithError(err).Warn("worker pool unavailable, matching files inline")
	} else {
		e.pool.Store(p)
	}
	if e.stopped.Load() {
		if p := e.pool.Load(); p != nil {
			p.Shutdown(true)
		}
	}

	e.seed(ctx)

	e.setState(StateDraining)
	outcome := e.drain(ctx)

	e.setState(StateFinalizing)
	outcome = e.finalize(ctx, outcome)

	e.finish(outcome)
	return outcome
}

// Stop requests cooperative cancellation. Pending file tasks are dropped;
// running ones finish or hit their deadline.
func (e *Engine) Stop() {
	if e.stopped.CompareAndSwap(false, true) && !e.State().Terminal() {
		e.setReason("stopped by request")
	}
	if p := e.pool.Load(); p != nil {
		p.Shutdown(true)
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// StopReason explains a Stopped run.
func (e *Engine) StopReason() string {
	if st := e.State(); st.Terminal() && st != StateStopped {
		return ""
	}
	e.reasonMu.Lock()
	defer e.reasonMu.Unlock()
	return e.reason
}

// Counters returns a snapshot of the shared counters.
func (e *Engine) Counters() entry.CounterSnapshot {
	return e.counters.Snapshot()
}

// SkipCount returns how many files the classifier refused.
func (e *Engine) SkipCount() int64 {
	return e.skipCount.Load()
}

// ErrorCount returns how many per-item errors were recorded.
func (e *Engine) ErrorCount() int64 {
	return e.errorCount.Load()
}

// Results returns a copy of the results collected so far. After Run
// returns they are sorted.
func (e *Engine) Results() []entry.MatchResult {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	out := make([]entry.MatchResult, len(e.results))
	copy(out, e.results)
	return out
}

// ResultCount returns how many results have been collected so far.
func (e *Engine) ResultCount() int {
	return e.resultCount()
}

func (e *Engine) setState(s State) {
	e.state.Store(uint32(s))
	logrus.WithField("state", s).Debug("search state")
}

// setReason keeps the first reason given.
func (e *Engine) setReason(reason string) {
	e.reasonMu.Lock()
	defer e.reasonMu.Unlock()
	if e.reason == "" {
		e.reason = reason
	}
}

func (e *Engine) limit(reason string) {
	if e.limited.CompareAndSwap(false, true) {
		e.setReason(reason)
		logrus.WithField("reason", reason).Info("search limit reached")
	}
}

func (e *Engine) timeoutExceeded() bool {
	d := e.opts.Timeout()
	return d > 0 && time.Since(e.start) >= d
}

func (e *Engine) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		e.setReason("stopped by request")
		return true
	}
	return e.stopped.Load()
}

// shouldStop is the cooperative cancellation check. It is safe to call
// from listing goroutines.
func (e *Engine) shouldStop(ctx context.Context) bool {
	return e.stopRequested(ctx) || e.limited.Load() || e.timeoutExceeded()
}

// interrupted maps a pending stop onto the terminal state it leads to.
func (e *Engine) interrupted(ctx context.Context) (State, bool) {
	switch {
	case e.stopRequested(ctx), e.limited.Load():
		return StateStopped, true
	case e.timeoutExceeded():
		return StateTimedOut, true
	}
	return StateIdle, false
}

func (e *Engine) addResult(r entry.MatchResult) {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	max := e.opts.MaxResults
	if max > 0 && len(e.results) >= max {
		return
	}
	e.results = append(e.results, r)
	if max > 0 && len(e.results) >= max {
		e.limit(fmt.Sprintf("result limit of %d reached", max))
	}
}

func (e *Engine) sortResults() {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	sort.SliceStable(e.results, func(i, j int) bool {
		a, b := e.results[i], e.results[j]
		if a.EntryType != b.EntryType {
			return a.EntryType < b.EntryType
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.FullPath < b.FullPath
	})
}

func (e *Engine) resultCount() int {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	return len(e.results)
}

func (e *Engine) recordError(path string, err error) {
	e.errorCount.Add(1)
	if e.hooks.OnError != nil {
		e.hooks.OnError(entry.ScanError{Path: path, Message: err.Error()})
	}
}

func (e *Engine) recordSkip(path, reason string) {
	e.skipCount.Add(1)
	logrus.WithFields(logrus.Fields{"file": path, "reason": reason}).Debug("skipping file")
	if e.hooks.OnSkip != nil {
		e.hooks.OnSkip(entry.SkippedFile{Path: path, Reason: reason})
	}
}

// finish publishes the terminal state, then the closing events.
func (e *Engine) finish(st State) {
	c := e.counters.Snapshot()
	n := e.resultCount()
	elapsed := time.Since(e.start).Round(time.Millisecond)
	e.setState(st)

	e.sink.Emit(Event{Kind: EventDirectorySize, Bytes: c.BytesScanned, Time: time.Now()})
	switch st {
	case StateCompleted:
		e.sink.Emit(statusEvent(fmt.Sprintf("Search completed: %d results in %s", n, elapsed)))
		e.sink.Emit(Event{Kind: EventCompleted, Time: time.Now()})
	case StateStopped:
		reason := e.StopReason()
		e.sink.Emit(statusEvent(fmt.Sprintf("Search stopped (%s): %d results in %s", reason, n, elapsed)))
		e.sink.Emit(Event{Kind: EventCompleted, Text: reason, Time: time.Now()})
	case StateTimedOut:
		e.sink.Emit(statusEvent(fmt.Sprintf("Search timed out after %s: %d results", elapsed, n)))
		e.sink.Emit(Event{Kind: EventTimedOut, Time: time.Now()})
	}

	logrus.WithFields(logrus.Fields{
		"state":   st,
		"results": n,
		"files":   c.FilesChecked,
		"dirs":    c.DirectoriesChecked,
		"bytes":   c.BytesScanned,
		"elapsed": elapsed,
	}).Info("search finished")
}

func (e *Engine) fail(v any, stack []byte) {
	if p := e.pool.Load(); p != nil {
		p.Shutdown(true)
	}
	msg := fmt.Sprintf("search failed: %v\n%s", v, stack)
	logrus.WithField("panic", v).Error("search pipeline panicked")
	e.setState(StateErrored)
	e.sink.Emit(Event{Kind: EventDirectorySize, Bytes: e.counters.BytesScanned.Load(), Time: time.Now()})
	e.sink.Emit(Event{Kind: EventError, Text: msg, Time: time.Now()})
}
