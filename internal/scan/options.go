package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/michaelscutari/seek/internal/classify"
	"github.com/michaelscutari/seek/internal/pathutil"
	"github.com/michaelscutari/seek/internal/pool"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid search configuration")

// Options configures one search. It is read-only once a search starts.
type Options struct {
	Root     string   `json:"root"`
	Keywords []string `json:"keywords"`

	SearchFiles          bool `json:"search_files"`
	SearchFolders        bool `json:"search_folders"`
	SearchContent        bool `json:"search_content"`
	WholeWord            bool `json:"whole_word"`
	IgnoreHidden         bool `json:"ignore_hidden"`
	SkipPermissionErrors bool `json:"skip_permission_errors"`
	ExcludeSystemFiles   bool `json:"exclude_system_files"`

	// Prioritize orders blocks by folder name. When false the queue is FIFO.
	Prioritize bool `json:"prioritize"`

	// MaxFilesToCheck stops the search once exceeded. Zero means unlimited.
	MaxFilesToCheck int64 `json:"max_files_to_check"`

	// MaxResults stops the search once reached. Zero means unlimited.
	MaxResults int `json:"max_results"`

	// MaxFileSizeBytes bounds content extraction. Zero disables the cap.
	MaxFileSizeBytes int64 `json:"max_file_size_bytes"`

	// TimeoutSeconds is the wall-clock budget. Zero disables it.
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxDepth limits block expansion below the root. Zero means unlimited.
	MaxDepth int `json:"max_depth"`

	Workers           int `json:"workers"`
	MaxFilesPerBlock  int `json:"max_files_per_block"`
	MaxParallelBlocks int `json:"max_parallel_blocks"`

	ExcludedPrefixes []string         `json:"excluded_prefixes,omitempty"`
	CustomExtensions []string         `json:"custom_extensions,omitempty"`
	Profile          classify.Profile `json:"profile"`

	// FileTimeout applies to ordinary files, SlowFileTimeout to formats
	// that go through a slow converter.
	FileTimeout     time.Duration `json:"-"`
	SlowFileTimeout time.Duration `json:"-"`

	ProgressInterval     time.Duration `json:"-"`
	MemoryCheckEvery     int64         `json:"-"`
	MemoryThresholdBytes uint64        `json:"-"`
}

// DefaultOptions returns sensible defaults for searching.
func DefaultOptions() *Options {
	return &Options{
		SearchFiles:          true,
		SearchFolders:        true,
		IgnoreHidden:         true,
		SkipPermissionErrors: true,
		ExcludeSystemFiles:   true,
		Prioritize:           true,
		MaxFilesToCheck:      100000,
		MaxResults:           10000,
		MaxFileSizeBytes:     50 << 20,
		Workers:              8,
		MaxFilesPerBlock:     500,
		MaxParallelBlocks:    4,
		Profile:              classify.ProfileBase,
		FileTimeout:          15 * time.Second,
		SlowFileTimeout:      10 * time.Second,
		ProgressInterval:     500 * time.Millisecond,
		MemoryCheckEvery:     1000,
		MemoryThresholdBytes: 500 << 20,
	}
}

// WithRoot sets the directory to search.
func (o *Options) WithRoot(root string) *Options {
	o.Root = root
	return o
}

// WithKeywords sets the keywords, in match order.
func (o *Options) WithKeywords(keywords ...string) *Options {
	o.Keywords = keywords
	return o
}

// WithTargets selects which checks run.
func (o *Options) WithTargets(files, folders, content bool) *Options {
	o.SearchFiles = files
	o.SearchFolders = folders
	o.SearchContent = content
	return o
}

// WithWholeWord toggles whole-word matching.
func (o *Options) WithWholeWord(v bool) *Options {
	o.WholeWord = v
	return o
}

// WithIgnoreHidden toggles skipping hidden entries.
func (o *Options) WithIgnoreHidden(v bool) *Options {
	o.IgnoreHidden = v
	return o
}

// WithSkipPermissionErrors toggles silent handling of unreadable folders.
func (o *Options) WithSkipPermissionErrors(v bool) *Options {
	o.SkipPermissionErrors = v
	return o
}

// WithExcludeSystemFiles toggles skipping system-reserved extensions.
func (o *Options) WithExcludeSystemFiles(v bool) *Options {
	o.ExcludeSystemFiles = v
	return o
}

// WithPrioritize toggles folder-name prioritisation.
func (o *Options) WithPrioritize(v bool) *Options {
	o.Prioritize = v
	return o
}

// WithMaxFiles sets the file cap.
func (o *Options) WithMaxFiles(n int64) *Options {
	o.MaxFilesToCheck = n
	return o
}

// WithMaxResults sets the result cap.
func (o *Options) WithMaxResults(n int) *Options {
	o.MaxResults = n
	return o
}

// WithMaxFileSize sets the content extraction size cap.
func (o *Options) WithMaxFileSize(n int64) *Options {
	o.MaxFileSizeBytes = n
	return o
}

// WithTimeout sets the wall-clock budget in seconds.
func (o *Options) WithTimeout(seconds int) *Options {
	o.TimeoutSeconds = seconds
	return o
}

// WithMaxDepth sets the depth limit.
func (o *Options) WithMaxDepth(n int) *Options {
	o.MaxDepth = n
	return o
}

// WithWorkers sets the number of file workers.
func (o *Options) WithWorkers(n int) *Options {
	o.Workers = n
	return o
}

// WithBlockLimits sets the per-block file chunk and parallel listing width.
func (o *Options) WithBlockLimits(filesPerBlock, parallelBlocks int) *Options {
	o.MaxFilesPerBlock = filesPerBlock
	o.MaxParallelBlocks = parallelBlocks
	return o
}

// WithProfile sets the search depth profile.
func (o *Options) WithProfile(p classify.Profile) *Options {
	o.Profile = p
	return o
}

// WithCustomExtensions sets extensions that are always content-searched.
func (o *Options) WithCustomExtensions(exts ...string) *Options {
	o.CustomExtensions = exts
	return o
}

// WithFileTimeouts sets the per-file deadlines.
func (o *Options) WithFileTimeouts(normal, slow time.Duration) *Options {
	o.FileTimeout = normal
	o.SlowFileTimeout = slow
	return o
}

// WithProgressInterval sets how often progress events are emitted.
func (o *Options) WithProgressInterval(d time.Duration) *Options {
	o.ProgressInterval = d
	return o
}

// AddExcludePrefix adds a path prefix to skip. Relative prefixes are made
// absolute.
func (o *Options) AddExcludePrefix(prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return fmt.Errorf("%w: empty exclude prefix", ErrInvalidConfig)
	}
	abs, err := filepath.Abs(prefix)
	if err != nil {
		return fmt.Errorf("%w: exclude prefix %q: %v", ErrInvalidConfig, prefix, err)
	}
	o.ExcludedPrefixes = append(o.ExcludedPrefixes, abs)
	return nil
}

// Validate checks the options and normalizes the root and exclude
// prefixes to absolute paths.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Root) == "" {
		return fmt.Errorf("%w: root path is required", ErrInvalidConfig)
	}
	root, err := filepath.Abs(o.Root)
	if err != nil {
		return fmt.Errorf("%w: root path %q: %v", ErrInvalidConfig, o.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: root path %q does not exist", ErrInvalidConfig, o.Root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root path %q is not a directory", ErrInvalidConfig, o.Root)
	}
	o.Root = root

	keywords := o.Keywords[:0:0]
	for _, k := range o.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return fmt.Errorf("%w: at least one keyword is required", ErrInvalidConfig)
	}
	o.Keywords = keywords

	prefixes := o.ExcludedPrefixes[:0:0]
	for _, p := range o.ExcludedPrefixes {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("%w: exclude prefix %q: %v", ErrInvalidConfig, p, err)
		}
		prefixes = append(prefixes, abs)
	}
	o.ExcludedPrefixes = prefixes

	if !o.SearchFiles && !o.SearchFolders && !o.SearchContent {
		return fmt.Errorf("%w: nothing to search, enable files, folders or content", ErrInvalidConfig)
	}

	switch {
	case o.MaxFilesToCheck < 0:
		return fmt.Errorf("%w: max files must not be negative", ErrInvalidConfig)
	case o.MaxResults < 0:
		return fmt.Errorf("%w: max results must not be negative", ErrInvalidConfig)
	case o.MaxFileSizeBytes < 0:
		return fmt.Errorf("%w: max file size must not be negative", ErrInvalidConfig)
	case o.TimeoutSeconds < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	case o.MaxDepth < 0:
		return fmt.Errorf("%w: max depth must not be negative", ErrInvalidConfig)
	case o.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	case o.MaxFilesPerBlock < 0 || o.MaxParallelBlocks < 0:
		return fmt.Errorf("%w: block limits must not be negative", ErrInvalidConfig)
	}
	if o.Profile > classify.ProfileDeep {
		return fmt.Errorf("%w: unknown profile %d", ErrInvalidConfig, o.Profile)
	}
	return nil
}

// Effective returns a copy with whole-disk widening and zero-value
// defaults applied. Call it after Validate.
func (o *Options) Effective() *Options {
	e := *o
	e.Keywords = append([]string(nil), o.Keywords...)
	e.ExcludedPrefixes = append([]string(nil), o.ExcludedPrefixes...)
	e.CustomExtensions = append([]string(nil), o.CustomExtensions...)

	def := DefaultOptions()
	if e.Workers == 0 {
		e.Workers = def.Workers
	}
	if e.MaxFilesPerBlock == 0 {
		e.MaxFilesPerBlock = def.MaxFilesPerBlock
	}
	if e.MaxParallelBlocks == 0 {
		e.MaxParallelBlocks = def.MaxParallelBlocks
	}
	if e.FileTimeout <= 0 {
		e.FileTimeout = def.FileTimeout
	}
	if e.SlowFileTimeout <= 0 {
		e.SlowFileTimeout = def.SlowFileTimeout
	}
	if e.ProgressInterval <= 0 {
		e.ProgressInterval = def.ProgressInterval
	}
	if e.MemoryCheckEvery <= 0 {
		e.MemoryCheckEvery = def.MemoryCheckEvery
	}
	if e.MemoryThresholdBytes == 0 {
		e.MemoryThresholdBytes = def.MemoryThresholdBytes
	}

	if pathutil.IsWholeDiskRoot(e.Root) {
		if e.MaxFilesToCheck == 0 {
			e.MaxFilesToCheck = 1000000
		} else {
			e.MaxFilesToCheck *= 10
		}
		if e.Workers < 16 {
			e.Workers = 16
		}
		e.TimeoutSeconds *= 3
		e.Prioritize = true
	}
	e.Workers = pool.ClampWorkers(e.Workers)
	return &e
}

// Timeout returns the wall-clock budget, or zero when disabled.
func (o *Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// FileTimeoutFor picks the per-file deadline for path.
func (o *Options) FileTimeoutFor(path string) time.Duration {
	if classify.IsSlowExtension(strings.ToLower(filepath.Ext(path))) {
		return o.SlowFileTimeout
	}
	return o.FileTimeout
}
