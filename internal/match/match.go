// Package match implements keyword matching against file names and
// extracted content.
package match

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Boundaries are any non-alphanumeric rune or a string edge, so a dot
// before an extension counts ("my.log" matches "log").
const (
	boundaryBefore = `(?:^|[^\p{L}\p{N}])`
	boundaryAfter  = `(?:$|[^\p{L}\p{N}])`
)

var patternCache sync.Map // map[string]*regexp.Regexp, nil value marks a failed compile

// MatchesKeyword reports whether keyword occurs in text, ignoring case.
// With wholeWord set the occurrence must be bounded by non-alphanumeric
// runes or the string edges. Phrases containing a space are always matched
// as plain substrings.
func MatchesKeyword(text, keyword string, wholeWord bool) bool {
	if keyword == "" {
		return false
	}
	lowerText := strings.ToLower(text)
	lowerKeyword := strings.ToLower(keyword)
	if !wholeWord || isPhrase(keyword) {
		return strings.Contains(lowerText, lowerKeyword)
	}
	if re := wholeWordPattern(keyword); re != nil {
		return re.MatchString(text)
	}
	return containsWord(lowerText, lowerKeyword)
}

// MatchesAny returns the first keyword, in the given order, that matches text.
func MatchesAny(text string, keywords []string, wholeWord bool) (bool, string) {
	for _, kw := range keywords {
		if MatchesKeyword(text, kw, wholeWord) {
			return true, kw
		}
	}
	return false, ""
}

func isPhrase(keyword string) bool {
	return strings.ContainsRune(strings.TrimSpace(keyword), ' ')
}

func wholeWordPattern(keyword string) *regexp.Regexp {
	if cached, ok := patternCache.Load(keyword); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(`(?i)` + boundaryBefore + regexp.QuoteMeta(keyword) + boundaryAfter)
	if err != nil {
		patternCache.Store(keyword, (*regexp.Regexp)(nil))
		return nil
	}
	patternCache.Store(keyword, re)
	return re
}

// containsWord scans every occurrence of word in text and checks the runes
// on either side. Both arguments are expected to be lower-cased already.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], word)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(word)
		if isBoundaryBefore(text, start) && isBoundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isBoundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return isBoundary(r)
}

func isBoundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return isBoundary(r)
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
