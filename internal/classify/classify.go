package classify

import (
	"path/filepath"
	"strings"

	"github.com/michaelscutari/seek/internal/pathutil"
)

// problemMarkers are substrings whose presence makes a file unsafe to hand
// to a parser: Office owner files and rights-managed wrappers.
var problemMarkers = []string{"~$", ".pfile"}

// compoundExtensions hang parsers when the inner extension is trusted.
var compoundExtensions = []string{".docx.tmp", ".xlsx.tmp", ".pdf.part", ".tar.gz.part"}

// Classifier decides which paths the engine may touch. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	ExcludeSystemFiles bool
	Profile            Profile
	ExcludedPrefixes   []string
	customExtensions   map[string]struct{}
}

// New creates a classifier. Custom extensions may be given with or without
// a leading dot.
func New(profile Profile, excludeSystem bool, excluded []string, custom []string) *Classifier {
	c := &Classifier{
		ExcludeSystemFiles: excludeSystem,
		Profile:            profile,
		ExcludedPrefixes:   excluded,
		customExtensions:   make(map[string]struct{}, len(custom)),
	}
	for _, ext := range custom {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.customExtensions[ext] = struct{}{}
	}
	return c
}

// IsHidden reports whether the leaf starts with a dot or, on Windows, carries
// the hidden attribute. A path that cannot be stat'ed is not hidden.
func IsHidden(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	return hasHiddenAttribute(path)
}

// IsExcluded reports whether path starts with any prefix, ignoring case.
func IsExcluded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if pathutil.HasPrefixFold(path, p) {
			return true
		}
	}
	return false
}

// IsExcluded applies the classifier's configured prefixes.
func (c *Classifier) IsExcluded(path string) bool {
	return IsExcluded(path, c.ExcludedPrefixes)
}

// IsCustomExtension reports whether ext was explicitly configured by the caller.
func (c *Classifier) IsCustomExtension(ext string) bool {
	return has(c.customExtensions, strings.ToLower(ext))
}

// ShouldSkipFile returns true with a reason when the file must not be
// processed at all. Custom extensions are never skipped.
func (c *Classifier) ShouldSkipFile(path string) (bool, string) {
	name := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(name)
	if c.IsCustomExtension(ext) {
		return false, ""
	}

	for _, m := range problemMarkers {
		if strings.Contains(name, m) {
			return true, `problematic marker "` + m + `"`
		}
	}
	for _, ce := range compoundExtensions {
		if strings.HasSuffix(name, ce) {
			return true, `compound extension "` + ce + `"`
		}
	}

	if c.ExcludeSystemFiles && has(systemExtensions, ext) {
		if c.Profile != ProfileBase && has(scriptExtensions, ext) {
			return false, ""
		}
		return true, `system extension "` + ext + `"`
	}
	return false, ""
}

// ShouldSearchContent gates content extraction for a regular file of the
// given size. maxSize of zero disables the size cap.
func (c *Classifier) ShouldSearchContent(path string, size, maxSize int64) bool {
	if maxSize > 0 && size > maxSize {
		return false
	}
	if skip, _ := c.ShouldSkipFile(path); skip {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if c.IsCustomExtension(ext) {
		return true
	}
	return ContentEligible(ext, c.Profile)
}
