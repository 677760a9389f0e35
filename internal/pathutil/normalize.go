package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize returns a canonical filesystem path string.
// It removes trailing slashes, collapses "." and "..", and
// preserves relative paths when provided.
func Normalize(path string) string {
	if path == "" {
		return path
	}
	return filepath.Clean(path)
}

// Canonical resolves symlinks and returns an absolute, cleaned path.
// When resolution fails the literal path is used instead, so the
// result is always usable as a visited-set key.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Normalize(abs)
	}
	return Normalize(resolved)
}

// HasPrefixFold reports whether path starts with prefix, ignoring case.
func HasPrefixFold(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(path), strings.ToLower(prefix))
}

// IsWholeDiskRoot reports whether path names an OS root or a volume root
// such as "C:\".
func IsWholeDiskRoot(path string) bool {
	if path == "" {
		return false
	}
	if path == "/" || path == `\` {
		return true
	}
	vol := filepath.VolumeName(path)
	if vol == "" {
		return isDriveRoot(path)
	}
	rest := strings.Trim(path[len(vol):], `/\`)
	return rest == ""
}

// isDriveRoot handles drive letters on hosts where filepath does not parse them.
func isDriveRoot(path string) bool {
	p := strings.TrimRight(path, `/\`)
	if len(p) != 2 || p[1] != ':' {
		return false
	}
	c := p[0] | 0x20
	return c >= 'a' && c <= 'z'
}
