package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/michaelscutari/seek/internal/classify"
	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/extract"
	"github.com/michaelscutari/seek/internal/pool"
)

type recordingExtractor struct {
	inner extract.ContentExtractor

	mu   sync.Mutex
	seen []string
}

func (r *recordingExtractor) Extract(ctx context.Context, path string, profile classify.Profile) (string, bool) {
	r.mu.Lock()
	r.seen = append(r.seen, path)
	r.mu.Unlock()
	return r.inner.Extract(ctx, path, profile)
}

func (r *recordingExtractor) saw(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.seen {
		if p == path {
			return true
		}
	}
	return false
}

// blockingExtractor parks until its deadline, after announcing itself.
type blockingExtractor struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingExtractor) Extract(ctx context.Context, path string, _ classify.Profile) (string, bool) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return "", false
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Emit(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func testOptions(root string, keywords ...string) *Options {
	return DefaultOptions().
		WithRoot(root).
		WithKeywords(keywords...).
		WithProgressInterval(10 * time.Millisecond).
		WithWorkers(4)
}

func runEngine(t *testing.T, opts *Options, ext extract.ContentExtractor, sink Sink) (*Engine, State) {
	t.Helper()
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	eng := NewEngine(opts, ext, sink)
	st := eng.Run(context.Background())
	return eng, st
}

func resultNames(results []entry.MatchResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

func skipIfNoPermissions(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("mode bits are not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("root bypasses mode bits")
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "docs", "report.txt"), "invoice #4521")
	writeFile(t, filepath.Join(root, "docs", "readme.md"), "nothing to see")
	writeFile(t, filepath.Join(root, ".hidden", "secret.txt"), "invoice")
	writeFile(t, filepath.Join(root, "bin", "tool.exe"), "invoice")

	rec := &recordingExtractor{inner: extract.NewRegistry()}
	opts := testOptions(root, "invoice").WithTargets(true, true, true)
	eng, st := runEngine(t, opts, rec, nil)

	if st != StateCompleted {
		t.Fatalf("state = %v, want completed", st)
	}
	results := eng.Results()
	if len(results) != 1 {
		t.Fatalf("got %d results (%v), want 1", len(results), resultNames(results))
	}
	r := results[0]
	if r.Name != "report.txt" || r.Source != entry.MatchedContent || r.Keyword != "invoice" {
		t.Errorf("unexpected result: %+v", r)
	}
	if rec.saw(filepath.Join(root, ".hidden", "secret.txt")) {
		t.Error("hidden subtree was searched")
	}
	if rec.saw(filepath.Join(root, "bin", "tool.exe")) {
		t.Error("system file was content-searched")
	}
	if !rec.saw(filepath.Join(root, "docs", "readme.md")) {
		t.Error("readme.md should have been content-searched")
	}

	c := eng.Counters()
	if c.DirectoriesChecked != 3 {
		t.Errorf("DirectoriesChecked = %d, want 3 (root, docs, bin)", c.DirectoriesChecked)
	}
	// tool.exe is skipped, not checked
	if c.FilesChecked != 2 {
		t.Errorf("FilesChecked = %d, want 2", c.FilesChecked)
	}
	if eng.SkipCount() != 1 {
		t.Errorf("SkipCount = %d, want 1", eng.SkipCount())
	}
	if c.BytesScanned == 0 {
		t.Error("BytesScanned should count extracted files")
	}
}

func TestEngine_NameMatchWinsOverContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "invoice.txt"), "invoice")
	writeFile(t, filepath.Join(root, "invoices", "other.txt"), "nothing")

	rec := &recordingExtractor{inner: extract.NewRegistry()}
	opts := testOptions(root, "invoice").WithTargets(true, true, true)
	eng, st := runEngine(t, opts, rec, nil)
	if st != StateCompleted {
		t.Fatalf("state = %v", st)
	}

	results := eng.Results()
	if len(results) != 2 {
		t.Fatalf("got %v, want invoice.txt and invoices", resultNames(results))
	}
	// files sort before directories
	if results[0].EntryType != entry.KindFile || results[0].Name != "invoice.txt" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[0].Source != entry.MatchedName {
		t.Errorf("invoice.txt matched by %v, want name", results[0].Source)
	}
	if results[1].EntryType != entry.KindDir || results[1].Name != "invoices" || results[1].SizeFormatted != "-" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if rec.saw(filepath.Join(root, "invoice.txt")) {
		t.Error("name match should skip content extraction")
	}
}

func TestEngine_PriorityOrder(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"aaa_windows", "bbb", "zzz_home"} {
		writeFile(t, filepath.Join(root, dir, "marker.exe"), "")
	}

	order := func(prioritize bool) []string {
		var seen []string
		opts := testOptions(root, "nomatch").WithPrioritize(prioritize).WithBlockLimits(500, 1)
		if err := opts.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		eng := NewEngine(opts, nil, nil)
		eng.SetHooks(Hooks{OnSkip: func(s entry.SkippedFile) {
			seen = append(seen, filepath.Base(filepath.Dir(s.Path)))
		}})
		eng.Run(context.Background())
		return seen
	}

	if got, want := strings.Join(order(true), ","), "zzz_home,bbb,aaa_windows"; got != want {
		t.Errorf("prioritized order = %s, want %s", got, want)
	}
	if got, want := strings.Join(order(false), ","), "aaa_windows,bbb,zzz_home"; got != want {
		t.Errorf("fifo order = %s, want %s", got, want)
	}
}

func TestEngine_SymlinkCycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", "target.txt"), "")
	if err := os.Symlink(root, filepath.Join(root, "a", "b", "loop")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "c")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	opts := testOptions(root, "target").WithTargets(true, false, false)
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	eng := NewEngine(opts, nil, nil)
	done := make(chan State, 1)
	go func() { done <- eng.Run(context.Background()) }()

	var st State
	select {
	case st = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("traversal did not terminate")
	}

	if st != StateCompleted {
		t.Fatalf("state = %v", st)
	}
	if got := eng.Counters().DirectoriesChecked; got != 3 {
		t.Errorf("DirectoriesChecked = %d, want 3", got)
	}
	if got := resultNames(eng.Results()); len(got) != 1 {
		t.Errorf("results = %v, want one target.txt", got)
	}
}

func TestEngine_MaxDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "target0.txt"), "")
	writeFile(t, filepath.Join(root, "l1", "target1.txt"), "")
	writeFile(t, filepath.Join(root, "l1", "l2", "target2.txt"), "")
	writeFile(t, filepath.Join(root, "l1", "l2", "l3", "target3.txt"), "")

	tests := []struct {
		depth int
		want  string
		dirs  int64
	}{
		{0, "target0.txt,target1.txt,target2.txt,target3.txt", 4},
		{1, "target0.txt,target1.txt", 2},
		{2, "target0.txt,target1.txt,target2.txt", 3},
	}
	for _, tt := range tests {
		opts := testOptions(root, "target").WithTargets(true, false, false).WithMaxDepth(tt.depth)
		eng, st := runEngine(t, opts, nil, nil)
		if st != StateCompleted {
			t.Fatalf("depth %d: state = %v", tt.depth, st)
		}
		if got := strings.Join(resultNames(eng.Results()), ","); got != tt.want {
			t.Errorf("depth %d: results = %s, want %s", tt.depth, got, tt.want)
		}
		if got := eng.Counters().DirectoriesChecked; got != tt.dirs {
			t.Errorf("depth %d: DirectoriesChecked = %d, want %d", tt.depth, got, tt.dirs)
		}
	}
}

func TestEngine_FileCap(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, "f"+string(rune('a'+i))+".txt"), "")
	}

	opts := testOptions(root, "nomatch").WithMaxFiles(5)
	eng, st := runEngine(t, opts, nil, nil)
	if st != StateStopped {
		t.Fatalf("state = %v, want stopped", st)
	}
	if got := eng.Counters().FilesChecked; got > 6 {
		t.Errorf("FilesChecked = %d, want at most 6", got)
	}
	if !strings.Contains(eng.StopReason(), "file limit") {
		t.Errorf("StopReason = %q", eng.StopReason())
	}
}

func TestEngine_MaxResults(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, "hit"+string(rune('a'+i))+".txt"), "")
	}

	opts := testOptions(root, "hit").WithTargets(true, false, false).WithMaxResults(3)
	eng, st := runEngine(t, opts, nil, nil)
	if st != StateStopped {
		t.Fatalf("state = %v, want stopped", st)
	}
	if got := len(eng.Results()); got != 3 {
		t.Errorf("got %d results, want 3", got)
	}
	if !strings.Contains(eng.StopReason(), "result limit") {
		t.Errorf("StopReason = %q", eng.StopReason())
	}
}

func TestEngine_PermissionIsolation(t *testing.T) {
	skipIfNoPermissions(t)

	root := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, filepath.Join(root, "dir"+string(rune('a'+i)), "hit.txt"), "")
	}
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hit.txt"), "")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	for _, skip := range []bool{true, false} {
		var errs []entry.ScanError
		log := &eventLog{}
		opts := testOptions(root, "hit").WithTargets(true, false, false).WithSkipPermissionErrors(skip)
		if err := opts.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		eng := NewEngine(opts, nil, log)
		eng.SetHooks(Hooks{OnError: func(e entry.ScanError) { errs = append(errs, e) }})
		st := eng.Run(context.Background())

		if st != StateCompleted {
			t.Fatalf("skip=%v: state = %v, want completed", skip, st)
		}
		if got := len(eng.Results()); got != 10 {
			t.Errorf("skip=%v: got %d results, want 10", skip, got)
		}
		if len(errs) != 1 || errs[0].Path != locked {
			t.Errorf("skip=%v: errors = %+v", skip, errs)
		}

		reported := false
		for _, ev := range log.all() {
			if ev.Kind == EventStatus && strings.HasPrefix(ev.Text, "Permission denied") {
				reported = true
			}
		}
		if reported == skip {
			t.Errorf("skip=%v: permission status reported = %v", skip, reported)
		}
	}
}

func TestEngine_IdempotentRerun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "match-1.txt"), "")
	writeFile(t, filepath.Join(root, "b", "match-2.txt"), "")
	writeFile(t, filepath.Join(root, "b", "c", "note.txt"), "match inside")
	writeFile(t, filepath.Join(root, "match-dir", "x.txt"), "")

	run := func() []string {
		opts := testOptions(root, "match").WithTargets(true, true, true)
		eng, st := runEngine(t, opts, extract.NewRegistry(), nil)
		if st != StateCompleted {
			t.Fatalf("state = %v", st)
		}
		var paths []string
		for _, r := range eng.Results() {
			paths = append(paths, r.FullPath)
		}
		return paths
	}

	first, second := run(), run()
	if len(first) != 4 {
		t.Fatalf("first run = %v, want 4 results", first)
	}
	if strings.Join(first, "|") != strings.Join(second, "|") {
		t.Errorf("runs differ:\n%v\n%v", first, second)
	}
}

func TestEngine_Events(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "hit.txt"), "")

	log := &eventLog{}
	_, st := runEngine(t, testOptions(root, "hit"), nil, log)
	if st != StateCompleted {
		t.Fatalf("state = %v", st)
	}

	events := log.all()
	if len(events) < 3 {
		t.Fatalf("too few events: %+v", events)
	}
	last := events[len(events)-1]
	if last.Kind != EventCompleted || !last.Terminal() {
		t.Errorf("last event = %v, want completed", last.Kind)
	}

	sawSize, sawFull := false, false
	for _, ev := range events[:len(events)-1] {
		switch ev.Kind {
		case EventDirectorySize:
			sawSize = true
		case EventProgress:
			if ev.Percent > 100 {
				t.Errorf("progress %d > 100", ev.Percent)
			}
			if ev.Percent == 100 {
				sawFull = true
			}
		}
		if ev.Terminal() {
			t.Errorf("terminal event %v before the end", ev.Kind)
		}
	}
	if !sawSize || !sawFull {
		t.Errorf("sawSize=%v sawFull=%v", sawSize, sawFull)
	}
}

func TestEngine_TimedOut(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "slow.txt"), "content")

	ext := &blockingExtractor{started: make(chan struct{})}
	log := &eventLog{}
	opts := testOptions(root, "nomatch").
		WithTargets(false, false, true).
		WithTimeout(1).
		WithFileTimeouts(1500*time.Millisecond, 1500*time.Millisecond)

	eng, st := runEngine(t, opts, ext, log)
	if st != StateTimedOut {
		t.Fatalf("state = %v, want timed_out", st)
	}
	if eng.State() != StateTimedOut {
		t.Errorf("State() = %v", eng.State())
	}
	events := log.all()
	if last := events[len(events)-1]; last.Kind != EventTimedOut {
		t.Errorf("last event = %v, want timed_out", last.Kind)
	}
}

func TestEngine_Stop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "slow.txt"), "content")

	ext := &blockingExtractor{started: make(chan struct{})}
	opts := testOptions(root, "nomatch").
		WithTargets(false, false, true).
		WithFileTimeouts(2*time.Second, 2*time.Second)
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	eng := NewEngine(opts, ext, nil)

	done := make(chan State, 1)
	go func() { done <- eng.Run(context.Background()) }()

	select {
	case <-ext.started:
	case <-time.After(5 * time.Second):
		t.Fatal("extractor never started")
	}
	eng.Stop()

	select {
	case st := <-done:
		if st != StateStopped {
			t.Errorf("state = %v, want stopped", st)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if eng.StopReason() != "stopped by request" {
		t.Errorf("StopReason = %q", eng.StopReason())
	}
}

func TestEngine_ContextCancel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "hit.txt"), "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := testOptions(root, "hit")
	if err := opts.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	eng := NewEngine(opts, nil, nil)
	if st := eng.Run(ctx); st != StateStopped {
		t.Errorf("state = %v, want stopped", st)
	}
}

func TestEngine_PanicBecomesErrored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hit.txt"), "")

	log := &eventLog{}
	sink := SinkFunc(func(ev Event) {
		if ev.Kind == EventProgress && ev.Percent == 100 {
			panic("sink exploded")
		}
		log.Emit(ev)
	})

	eng, st := runEngine(t, testOptions(root, "hit"), nil, sink)
	if st != StateErrored || eng.State() != StateErrored {
		t.Fatalf("state = %v, want errored", st)
	}
	events := log.all()
	last := events[len(events)-1]
	if last.Kind != EventError || !strings.Contains(last.Text, "sink exploded") {
		t.Errorf("last event = %+v", last)
	}
	if !strings.Contains(last.Text, "goroutine") {
		t.Error("error event should carry a stack trace")
	}
	if len(eng.Results()) != 1 {
		t.Errorf("partial results lost: %v", resultNames(eng.Results()))
	}
}

func TestEngine_IgnoreHiddenOff(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".cache", "hit.txt"), "")

	opts := testOptions(root, "hit").WithIgnoreHidden(false)
	eng, _ := runEngine(t, opts, nil, nil)
	if got := len(eng.Results()); got != 1 {
		t.Errorf("got %d results, want the hidden file", got)
	}
}

func TestEngine_ExcludedPrefix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep", "hit.txt"), "")
	writeFile(t, filepath.Join(root, "Skip", "hit.txt"), "")

	opts := testOptions(root, "hit")
	if err := opts.AddExcludePrefix(filepath.Join(root, "skip")); err != nil {
		t.Fatalf("AddExcludePrefix: %v", err)
	}
	eng, _ := runEngine(t, opts, nil, nil)
	results := eng.Results()
	if len(results) != 1 || !strings.Contains(results[0].FullPath, "keep") {
		t.Errorf("results = %+v", results)
	}
}

func TestEngine_InlineFallback(t *testing.T) {
	tests := []struct {
		name    string
		newPool func(int) (*pool.Pool, error)
	}{
		{"pool unavailable", func(int) (*pool.Pool, error) {
			return nil, errors.New("no goroutines left")
		}},
		{"pool refuses work", func(n int) (*pool.Pool, error) {
			p, err := pool.New(n)
			if err != nil {
				return nil, err
			}
			p.Shutdown(false)
			return p, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := newPool
			newPool = tt.newPool
			defer func() { newPool = orig }()

			root := t.TempDir()
			writeFile(t, filepath.Join(root, "needle.txt"), "hay")
			writeFile(t, filepath.Join(root, "sub", "doc.txt"), "a needle in here")
			writeFile(t, filepath.Join(root, "sub", "other.txt"), "hay")

			opts := testOptions(root, "needle").WithTargets(true, true, true)
			eng, st := runEngine(t, opts, extract.NewRegistry(), nil)
			if st != StateCompleted {
				t.Fatalf("state = %v", st)
			}
			if got := strings.Join(resultNames(eng.Results()), ","); got != "doc.txt,needle.txt" {
				t.Errorf("results = %s", got)
			}
			if c := eng.Counters(); c.FilesChecked != 3 {
				t.Errorf("FilesChecked = %d", c.FilesChecked)
			}
		})
	}
}

func TestEngine_StopAfterFinishKeepsNoReason(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "needle.txt"), "x")

	eng, st := runEngine(t, testOptions(root, "needle"), nil, nil)
	if st != StateCompleted {
		t.Fatalf("state = %v", st)
	}
	eng.Stop()
	if eng.State() != StateCompleted {
		t.Errorf("state after Stop = %v", eng.State())
	}
	if r := eng.StopReason(); r != "" {
		t.Errorf("StopReason = %q", r)
	}
	if eng.ResultCount() != 1 {
		t.Errorf("ResultCount = %d", eng.ResultCount())
	}
}
