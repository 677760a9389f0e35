//go:build !windows

package classify

func hasHiddenAttribute(string) bool {
	return false
}
