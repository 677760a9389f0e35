package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if !o.SearchFiles || !o.SearchFolders || o.SearchContent {
		t.Errorf("targets = %v/%v/%v", o.SearchFiles, o.SearchFolders, o.SearchContent)
	}
	if o.MaxFilesToCheck != 100000 || o.MaxResults != 10000 {
		t.Errorf("limits = %d/%d", o.MaxFilesToCheck, o.MaxResults)
	}
	if o.FileTimeoutFor("a.pdf") != 10*time.Second || o.FileTimeoutFor("a.txt") != 15*time.Second {
		t.Errorf("file timeouts = %v/%v", o.FileTimeoutFor("a.pdf"), o.FileTimeoutFor("a.txt"))
	}
}

func TestOptions_Validate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mutate func(o *Options)
		ok     bool
	}{
		{"valid", func(o *Options) {}, true},
		{"empty root", func(o *Options) { o.Root = " " }, false},
		{"missing root", func(o *Options) { o.Root = filepath.Join(dir, "nope") }, false},
		{"root is file", func(o *Options) { o.Root = file }, false},
		{"blank keywords", func(o *Options) { o.Keywords = []string{" ", ""} }, false},
		{"no targets", func(o *Options) { o.WithTargets(false, false, false) }, false},
		{"content only", func(o *Options) { o.WithTargets(false, false, true) }, true},
		{"negative files", func(o *Options) { o.MaxFilesToCheck = -1 }, false},
		{"negative depth", func(o *Options) { o.MaxDepth = -2 }, false},
		{"negative timeout", func(o *Options) { o.TimeoutSeconds = -1 }, false},
		{"bad profile", func(o *Options) { o.Profile = 9 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions().WithRoot(dir).WithKeywords("x")
			tt.mutate(o)
			err := o.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected an error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("error %v does not wrap ErrInvalidConfig", err)
				}
			}
		})
	}
}

func TestOptions_ValidateTrimsKeywords(t *testing.T) {
	o := DefaultOptions().WithRoot(t.TempDir()).WithKeywords(" a ", "", "b")
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(o.Keywords) != 2 || o.Keywords[0] != "a" || o.Keywords[1] != "b" {
		t.Errorf("Keywords = %q", o.Keywords)
	}
}

func TestOptions_ValidateNormalizesExcludes(t *testing.T) {
	root := t.TempDir()
	o := DefaultOptions().WithRoot(root).WithKeywords("a")
	o.ExcludedPrefixes = []string{"  ", filepath.Join(root, "skip") + string(filepath.Separator), "rel"}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(o.ExcludedPrefixes) != 2 {
		t.Fatalf("ExcludedPrefixes = %q", o.ExcludedPrefixes)
	}
	if o.ExcludedPrefixes[0] != filepath.Join(root, "skip") {
		t.Errorf("prefix = %q", o.ExcludedPrefixes[0])
	}
	if !filepath.IsAbs(o.ExcludedPrefixes[1]) {
		t.Errorf("relative prefix kept: %q", o.ExcludedPrefixes[1])
	}
}

func TestOptions_EffectiveWholeDisk(t *testing.T) {
	o := DefaultOptions().WithRoot("/").WithWorkers(4).WithTimeout(30).WithPrioritize(false)
	e := o.Effective()
	if e.MaxFilesToCheck != 1000000 {
		t.Errorf("MaxFilesToCheck = %d", e.MaxFilesToCheck)
	}
	if e.Workers != 16 {
		t.Errorf("Workers = %d", e.Workers)
	}
	if e.TimeoutSeconds != 90 {
		t.Errorf("TimeoutSeconds = %d", e.TimeoutSeconds)
	}
	if !e.Prioritize {
		t.Error("whole-disk search should prioritise")
	}
	if o.Workers != 4 {
		t.Error("Effective must not modify the receiver")
	}

	unlimited := DefaultOptions().WithRoot("/").WithMaxFiles(0).WithWorkers(64).Effective()
	if unlimited.MaxFilesToCheck != 1000000 || unlimited.Workers != 32 {
		t.Errorf("unlimited = %d files, %d workers", unlimited.MaxFilesToCheck, unlimited.Workers)
	}
}

func TestOptions_EffectiveDefaults(t *testing.T) {
	o := &Options{Root: t.TempDir(), Workers: 100}
	e := o.Effective()
	if e.Workers != 32 || e.MaxFilesPerBlock != 500 || e.MaxParallelBlocks != 4 {
		t.Errorf("got workers=%d perBlock=%d parallel=%d", e.Workers, e.MaxFilesPerBlock, e.MaxParallelBlocks)
	}
	if e.ProgressInterval != 500*time.Millisecond || e.MemoryCheckEvery != 1000 {
		t.Errorf("got interval=%v memEvery=%d", e.ProgressInterval, e.MemoryCheckEvery)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ErrorNone},
		{&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, ErrorPermissionDenied},
		{fmt.Errorf("wrap: %w", fs.ErrNotExist), ErrorFileVanished},
		{errors.New("disk on fire"), ErrorUnexpectedIO},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	if got := drainPercent(0, 0); got != 0 {
		t.Errorf("drainPercent(0,0) = %d", got)
	}
	if got := drainPercent(5, 5); got != 45 {
		t.Errorf("drainPercent(5,5) = %d", got)
	}
	if got := drainPercent(10, 0); got != 90 {
		t.Errorf("drainPercent(10,0) = %d", got)
	}
	if got := finalPercent(5, 10); got != 95 {
		t.Errorf("finalPercent(5,10) = %d", got)
	}
	if got := finalPercent(0, 0); got != 100 {
		t.Errorf("finalPercent(0,0) = %d", got)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateSeeding, StateDraining, StateFinalizing} {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
	for _, s := range []State{StateCompleted, StateTimedOut, StateStopped, StateErrored} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}

func TestStateAndEventJSONRoundTrip(t *testing.T) {
	for st := StateIdle; st <= StateErrored; st++ {
		b, err := json.Marshal(st)
		if err != nil {
			t.Fatalf("marshal %v: %v", st, err)
		}
		var got State
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != st {
			t.Errorf("round trip %v = %v", st, got)
		}
	}

	ev := Event{Kind: EventTimedOut, Text: "deadline", Time: time.Unix(1700000000, 0).UTC()}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	var got Event
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal event %s: %v", b, err)
	}
	if got.Kind != EventTimedOut || got.Text != "deadline" || !got.Time.Equal(ev.Time) {
		t.Errorf("event = %+v", got)
	}

	var bad State
	if err := json.Unmarshal([]byte(`"sleeping"`), &bad); err == nil {
		t.Error("expected an error for an unknown state")
	}
}
