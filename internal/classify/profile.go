package classify

import (
	"fmt"
	"strings"
)

// Profile controls which extensions are eligible for content search.
type Profile uint8

const (
	ProfileBase Profile = iota
	ProfileAdvanced
	ProfileDeep
)

func (p Profile) String() string {
	switch p {
	case ProfileAdvanced:
		return "advanced"
	case ProfileDeep:
		return "deep"
	default:
		return "base"
	}
}

// ParseProfile accepts the names produced by String.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "base":
		return ProfileBase, nil
	case "advanced":
		return ProfileAdvanced, nil
	case "deep":
		return ProfileDeep, nil
	}
	return ProfileBase, fmt.Errorf("unknown profile %q (expected base|advanced|deep)", s)
}

var baseExtensions = setOf(
	".txt", ".md", ".csv", ".tsv", ".log", ".json", ".xml", ".html", ".htm",
	".ini", ".cfg", ".conf", ".yaml", ".yml", ".rtf", ".eml",
)

var documentExtensions = setOf(
	".pdf", ".docx", ".odt", ".doc", ".msg", ".mbox", ".pptx", ".xlsx",
)

var sourceExtensions = setOf(
	".go", ".py", ".js", ".ts", ".java", ".c", ".h", ".cpp", ".cs", ".rb",
	".php", ".sql", ".rs",
)

var scriptExtensions = setOf(".sh", ".bat", ".cmd", ".ps1", ".vbs")

var archiveExtensions = setOf(".zip", ".tar", ".tgz", ".gz", ".7z", ".rar")

// systemExtensions are executables, drivers and caches. Scripts are listed
// too so that Base refuses them; Advanced and Deep exempt them.
var systemExtensions = setOf(
	".exe", ".dll", ".sys", ".drv", ".ocx", ".cpl", ".msi", ".cab", ".com",
	".scr", ".pyc", ".cache", ".tmp", ".lnk", ".bat", ".cmd", ".ps1", ".vbs",
)

// slowExtensions go through external-style converters and get the short
// per-file deadline.
var slowExtensions = union(documentExtensions, archiveExtensions)

func setOf(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[e] = struct{}{}
	}
	return m
}

func union(sets ...map[string]struct{}) map[string]struct{} {
	m := make(map[string]struct{})
	for _, s := range sets {
		for k := range s {
			m[k] = struct{}{}
		}
	}
	return m
}

func has(set map[string]struct{}, ext string) bool {
	_, ok := set[ext]
	return ok
}

// IsSlowExtension reports whether ext (with dot, any case) uses a slow converter.
func IsSlowExtension(ext string) bool {
	return has(slowExtensions, strings.ToLower(ext))
}

// IsArchiveExtension reports whether ext names a supported archive.
func IsArchiveExtension(ext string) bool {
	return has(archiveExtensions, strings.ToLower(ext))
}

// ContentEligible reports whether the profile content-searches ext.
// Deep accepts every extension; the extractor decides whether the bytes
// are text.
func ContentEligible(ext string, profile Profile) bool {
	ext = strings.ToLower(ext)
	if has(baseExtensions, ext) {
		return true
	}
	switch profile {
	case ProfileAdvanced:
		return has(documentExtensions, ext) || has(sourceExtensions, ext) || has(scriptExtensions, ext)
	case ProfileDeep:
		return true
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (p Profile) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Profile) UnmarshalText(b []byte) error {
	parsed, err := ParseProfile(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
