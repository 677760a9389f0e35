package entry

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Kind represents the type of filesystem entry.
type Kind uint8

const (
	KindFile    Kind = 0
	KindDir     Kind = 1
	KindSymlink Kind = 2
	KindOther   Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// KindFromMode derives the Kind from an os.FileMode.
func KindFromMode(mode os.FileMode) Kind {
	switch {
	case mode.IsRegular():
		return KindFile
	case mode.IsDir():
		return KindDir
	case mode&os.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindOther
	}
}

// Block is one directory scheduled for expansion. Lower Priority is expanded sooner.
type Block struct {
	Path     string
	Priority int
	Depth    int
}

// MatchTask is the unit of per-file work handed to the worker pool.
type MatchTask struct {
	Path          string
	Keywords      []string
	SearchName    bool
	SearchContent bool
}

// MatchSource records which check produced a match.
type MatchSource uint8

const (
	MatchedName MatchSource = iota
	MatchedContent
)

func (s MatchSource) String() string {
	if s == MatchedContent {
		return "content"
	}
	return "name"
}

// MatchResult is a single search hit.
type MatchResult struct {
	EntryType     Kind
	Name          string
	Size          int64
	SizeFormatted string
	ModTime       time.Time
	CreateTime    time.Time
	FullPath      string
	Keyword       string
	Source        MatchSource
}

// NewMatchResult builds a result from a stat of fullPath.
func NewMatchResult(kind Kind, fullPath string, info os.FileInfo, keyword string, source MatchSource) MatchResult {
	r := MatchResult{
		EntryType: kind,
		Name:      filepath.Base(fullPath),
		FullPath:  fullPath,
		Keyword:   keyword,
		Source:    source,
	}
	if info != nil {
		r.ModTime = info.ModTime()
		r.CreateTime = CreatedTime(info)
		if kind != KindDir {
			r.Size = info.Size()
		}
	}
	if kind == KindDir {
		r.SizeFormatted = "-"
	} else {
		r.SizeFormatted = humanize.Bytes(uint64(r.Size))
	}
	return r
}

// Counters are shared across the traversal loop and pool workers.
type Counters struct {
	FilesChecked       atomic.Int64
	DirectoriesChecked atomic.Int64
	BytesScanned       atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	FilesChecked       int64 `json:"files_checked"`
	DirectoriesChecked int64 `json:"directories_checked"`
	BytesScanned       int64 `json:"bytes_scanned"`
}

// Snapshot returns a consistent-enough copy for reporting.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		FilesChecked:       c.FilesChecked.Load(),
		DirectoriesChecked: c.DirectoriesChecked.Load(),
		BytesScanned:       c.BytesScanned.Load(),
	}
}

// ScanError represents an error encountered during a search.
type ScanError struct {
	Path    string
	Message string
}

// SkippedFile records a file the classifier refused.
type SkippedFile struct {
	Path   string
	Reason string
}

// SearchMeta holds metadata about a finished search.
type SearchMeta struct {
	ID          string
	RootPath    string
	Keywords    string
	StartTime   time.Time
	EndTime     time.Time
	State       string
	FileCount   int64
	DirCount    int64
	BytesRead   int64
	ResultCount int64
	SkipCount   int64
	ErrorCount  int64
}
