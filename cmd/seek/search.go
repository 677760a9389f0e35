package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/seek/internal/classify"
	"github.com/michaelscutari/seek/internal/entry"
	"github.com/michaelscutari/seek/internal/extract"
	"github.com/michaelscutari/seek/internal/pathutil"
	"github.com/michaelscutari/seek/internal/scan"
	"github.com/michaelscutari/seek/internal/session"
	"github.com/michaelscutari/seek/internal/snapshot"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var searchCmd = &cobra.Command{
	Use:   "search KEYWORD...",
	Short: "Search a directory tree for keywords",
	Long: `Search file names, folder names and (with --content) file contents for
any of the given keywords. Results are printed as a table, or stored in a
snapshot database when --out is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchRoot          string
	searchOut           string
	searchRetention     int
	searchFiles         bool
	searchFolders       bool
	searchContent       bool
	searchWholeWord     bool
	searchHidden        bool
	searchStrictPerms   bool
	searchSystemFiles   bool
	searchNoPriority    bool
	searchMaxFiles      int64
	searchMaxResults    int
	searchMaxFileSize   int64
	searchTimeout       int
	searchMaxDepth      int
	searchWorkers       int
	searchFilesPerBlock int
	searchParallel      int
	searchExclude       []string
	searchExtensions    []string
	searchProfile       string
	searchFileTimeout   time.Duration
	searchSlowTimeout   time.Duration
	searchProgress      time.Duration
	searchIndexMode     string
	searchSQLiteTmp     string
)

func init() {
	defaults := scan.DefaultOptions()
	f := searchCmd.Flags()
	f.StringVarP(&searchRoot, "root", "r", ".", "Root directory to search")
	f.StringVarP(&searchOut, "out", "o", "", "Store results in a snapshot database in this directory")
	f.IntVar(&searchRetention, "retention", 5, "Number of snapshots to retain (0 = unlimited)")
	f.BoolVar(&searchFiles, "files", defaults.SearchFiles, "Match file names")
	f.BoolVar(&searchFolders, "folders", defaults.SearchFolders, "Match folder names")
	f.BoolVarP(&searchContent, "content", "c", defaults.SearchContent, "Search file contents")
	f.BoolVarP(&searchWholeWord, "whole-word", "w", defaults.WholeWord, "Match single-word keywords on word boundaries")
	f.BoolVar(&searchHidden, "hidden", !defaults.IgnoreHidden, "Descend into hidden files and folders")
	f.BoolVar(&searchStrictPerms, "report-permission-errors", !defaults.SkipPermissionErrors, "Report unreadable folders as status messages")
	f.BoolVar(&searchSystemFiles, "system-files", !defaults.ExcludeSystemFiles, "Include system-reserved file types")
	f.BoolVar(&searchNoPriority, "no-priority", !defaults.Prioritize, "Expand folders in discovery order")
	f.Int64Var(&searchMaxFiles, "max-files", defaults.MaxFilesToCheck, "Stop after checking this many files (0 = unlimited)")
	f.IntVar(&searchMaxResults, "max-results", defaults.MaxResults, "Stop after this many results (0 = unlimited)")
	f.Int64Var(&searchMaxFileSize, "max-file-size", defaults.MaxFileSizeBytes, "Skip content of files larger than this many bytes (0 = no cap)")
	f.IntVarP(&searchTimeout, "timeout", "t", defaults.TimeoutSeconds, "Overall timeout in seconds (0 = none)")
	f.IntVarP(&searchMaxDepth, "max-depth", "d", defaults.MaxDepth, "Maximum folder depth below the root (0 = unlimited)")
	f.IntVarP(&searchWorkers, "workers", "j", defaults.Workers, "Number of content workers")
	f.IntVar(&searchFilesPerBlock, "files-per-block", defaults.MaxFilesPerBlock, "Files dispatched per chunk of one folder")
	f.IntVar(&searchParallel, "parallel-blocks", defaults.MaxParallelBlocks, "Folders listed concurrently")
	f.StringSliceVarP(&searchExclude, "exclude", "e", nil, "Path prefixes to skip (can be repeated)")
	f.StringSliceVar(&searchExtensions, "ext", nil, "Extra extensions whose content is always searched")
	f.StringVarP(&searchProfile, "profile", "p", defaults.Profile.String(), "Content depth: base, advanced, deep")
	f.DurationVar(&searchFileTimeout, "file-timeout", defaults.FileTimeout, "Per-file content timeout")
	f.DurationVar(&searchSlowTimeout, "slow-file-timeout", defaults.SlowFileTimeout, "Per-file timeout for documents and archives")
	f.DurationVar(&searchProgress, "progress-interval", 30*time.Second, "Emit progress lines to stderr at this interval when not a TTY (0 to disable)")
	f.StringVar(&searchIndexMode, "index-mode", "memory", "Snapshot index build mode: memory|disk|skip")
	f.StringVar(&searchSQLiteTmp, "sqlite-tmp-dir", "", "Directory for SQLite temp files during index build")
}

func buildOptions(keywords []string) (*scan.Options, error) {
	root, err := filepath.Abs(searchRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	profile, err := classify.ParseProfile(searchProfile)
	if err != nil {
		return nil, err
	}

	opts := scan.DefaultOptions().
		WithRoot(pathutil.Normalize(root)).
		WithKeywords(keywords...).
		WithTargets(searchFiles, searchFolders, searchContent).
		WithWholeWord(searchWholeWord).
		WithIgnoreHidden(!searchHidden).
		WithSkipPermissionErrors(!searchStrictPerms).
		WithExcludeSystemFiles(!searchSystemFiles).
		WithPrioritize(!searchNoPriority).
		WithMaxFiles(searchMaxFiles).
		WithMaxResults(searchMaxResults).
		WithMaxFileSize(searchMaxFileSize).
		WithTimeout(searchTimeout).
		WithMaxDepth(searchMaxDepth).
		WithWorkers(searchWorkers).
		WithBlockLimits(searchFilesPerBlock, searchParallel).
		WithProfile(profile).
		WithCustomExtensions(searchExtensions...).
		WithFileTimeouts(searchFileTimeout, searchSlowTimeout)

	for _, prefix := range searchExclude {
		if err := opts.AddExcludePrefix(prefix); err != nil {
			return nil, fmt.Errorf("invalid exclude prefix %q: %w", prefix, err)
		}
	}
	return opts, nil
}

type progressView struct {
	stage    string
	percent  int
	message  string
	counters entry.CounterSnapshot
	failure  string
}

// progressState is written from event callbacks and read by the spinner.
type progressState struct {
	mu sync.Mutex
	progressView
}

func (p *progressState) observe(ev scan.Event, c entry.CounterSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters = c
	switch ev.Kind {
	case scan.EventProgress:
		p.percent = ev.Percent
	case scan.EventStatus:
		p.message = ev.Text
	case scan.EventError:
		p.failure = ev.Text
	}
}

func (p *progressState) setStage(s string) {
	p.mu.Lock()
	p.stage = s
	p.mu.Unlock()
}

func (p *progressState) snapshot() progressView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressView
}

// showProgress draws a spinner on a TTY, or periodic PROGRESS lines
// otherwise, until done is closed.
func showProgress(p *progressState, startTime time.Time, done <-chan struct{}) {
	isTTY := isTerminal()
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	lastNonTTY := time.Now()
	spinnerIdx := 0

	for {
		select {
		case <-done:
			if isTTY {
				fmt.Fprintf(os.Stderr, "\r\033[K")
			}
			return
		case <-ticker.C:
			s := p.snapshot()
			elapsed := time.Since(startTime).Round(time.Millisecond)
			rate := float64(0)
			if elapsed.Seconds() > 0 {
				rate = float64(s.counters.FilesChecked) / elapsed.Seconds()
			}

			if isTTY {
				spinner := spinnerFrames[spinnerIdx%len(spinnerFrames)]
				spinnerIdx++
				if s.stage != "" && s.stage != "search" {
					fmt.Fprintf(os.Stderr, "\r\033[K%s %s... | %s", spinner, s.stage, elapsed)
				} else {
					fmt.Fprintf(os.Stderr, "\r\033[K%s Searching... %3d%% | %s files | %s dirs | %s read | %.0f/sec | %s",
						spinner, s.percent,
						humanize.Comma(s.counters.FilesChecked),
						humanize.Comma(s.counters.DirectoriesChecked),
						humanize.Bytes(uint64(s.counters.BytesScanned)),
						rate, elapsed)
				}
			} else if searchProgress > 0 && time.Since(lastNonTTY) >= searchProgress {
				if s.stage != "" && s.stage != "search" {
					fmt.Fprintf(os.Stderr, "PROGRESS stage=%s elapsed=%s\n", s.stage, elapsed)
				} else {
					fmt.Fprintf(os.Stderr, "PROGRESS percent=%d files=%d dirs=%d bytes=%s rate=%.0f/sec elapsed=%s status=%q\n",
						s.percent, s.counters.FilesChecked, s.counters.DirectoriesChecked,
						humanize.Bytes(uint64(s.counters.BytesScanned)), rate, elapsed, s.message)
				}
				lastNonTTY = time.Now()
			}
		}
	}
}

// interruptContext cancels on the first Ctrl+C and exits on the second.
func interruptContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, "\nStopping... (press Ctrl+C again to force)")
		cancel()
		<-sigCh
		os.Exit(130)
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts, err := buildOptions(args)
	if err != nil {
		return err
	}

	switch searchIndexMode {
	case "memory", "disk", "skip":
	default:
		return fmt.Errorf("invalid index mode %q (expected memory|disk|skip)", searchIndexMode)
	}

	var extractor extract.ContentExtractor
	if opts.SearchContent {
		extractor = extract.NewRegistry().WithMaxBytes(opts.MaxFileSizeBytes)
	}

	ctx, stop := interruptContext()
	defer stop()

	fmt.Fprintf(os.Stderr, "Searching %s for %q...\n", opts.Root, opts.Keywords)
	startTime := time.Now()
	progress := &progressState{progressView: progressView{stage: "search"}}
	progressDone := make(chan struct{})
	progressExited := make(chan struct{})
	go func() {
		defer close(progressExited)
		showProgress(progress, startTime, progressDone)
	}()
	finishProgress := func() {
		close(progressDone)
		<-progressExited
	}

	if searchOut != "" {
		return searchToSnapshot(ctx, opts, extractor, progress, startTime, finishProgress)
	}

	sess, err := session.Start(ctx, opts, extractor, scan.Hooks{})
	if err != nil {
		finishProgress()
		return err
	}
	defer sess.Close()

	for ev := range sess.Events() {
		progress.observe(ev, sess.Counters())
	}
	st, _ := sess.Wait(context.Background())
	finishProgress()

	results, err := sess.Results()
	if err != nil {
		return err
	}
	printResults(os.Stdout, results)
	meta := sess.Meta()
	printSummary(os.Stdout, meta, sess.StopReason(), time.Since(startTime))

	if st == scan.StateErrored {
		return fmt.Errorf("search failed: %s", firstLine(progress.snapshot().failure))
	}
	return nil
}

func searchToSnapshot(ctx context.Context, opts *scan.Options, extractor extract.ContentExtractor, progress *progressState, startTime time.Time, finishProgress func()) error {
	outDir, err := filepath.Abs(searchOut)
	if err != nil {
		finishProgress()
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	mgr := snapshot.NewManager(outDir, searchRetention)
	mgr.SetIndexMode(searchIndexMode)
	if searchSQLiteTmp != "" {
		mgr.SetSQLiteTmpDir(searchSQLiteTmp)
	}
	mgr.SetProgressFunc(progress.observe)
	mgr.SetStageFunc(progress.setStage)

	report, err := mgr.RunSearch(ctx, opts, extractor)
	finishProgress()
	if err != nil {
		if errors.Is(err, snapshot.ErrLocked) {
			return fmt.Errorf("%w in %s", err, outDir)
		}
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Database: %s\n", report.Path)
	printSummary(os.Stdout, report.Meta, "", time.Since(startTime))
	if report.Meta.State == scan.StateErrored.String() {
		return fmt.Errorf("search failed: %s", firstLine(progress.snapshot().failure))
	}
	return nil
}

func printResults(w io.Writer, results []entry.MatchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tSIZE\tMODIFIED\tMATCH\tPATH\n")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.EntryType,
			r.SizeFormatted,
			r.ModTime.Format("2006-01-02 15:04"),
			r.Source,
			r.FullPath,
		)
	}
	tw.Flush()
}

func printSummary(w io.Writer, m entry.SearchMeta, reason string, took time.Duration) {
	fmt.Fprintf(w, "\nSearch %s in %s\n", m.State, took.Round(time.Millisecond))
	if reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", reason)
	}
	fmt.Fprintf(w, "  Results: %s\n", humanize.Comma(m.ResultCount))
	fmt.Fprintf(w, "  Files checked: %s\n", humanize.Comma(m.FileCount))
	fmt.Fprintf(w, "  Directories: %s\n", humanize.Comma(m.DirCount))
	if m.BytesRead > 0 {
		fmt.Fprintf(w, "  Content read: %s\n", humanize.Bytes(uint64(m.BytesRead)))
	}
	if m.SkipCount > 0 {
		fmt.Fprintf(w, "  Skipped: %s\n", humanize.Comma(m.SkipCount))
	}
	if m.ErrorCount > 0 {
		fmt.Fprintf(w, "  Errors: %s\n", humanize.Comma(m.ErrorCount))
	}
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

func isTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
