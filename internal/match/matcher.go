package match

import (
	"regexp"
	"strings"
)

// Matcher holds keywords prepared once per search so that large content
// bodies are lower-cased a single time per check.
type Matcher struct {
	wholeWord bool
	keywords  []keyword
}

type keyword struct {
	raw     string
	lower   string
	phrase  bool
	pattern *regexp.Regexp
}

// NewMatcher prepares keywords in the order supplied. Blank keywords are dropped.
func NewMatcher(keywords []string, wholeWord bool) *Matcher {
	m := &Matcher{wholeWord: wholeWord}
	for _, kw := range keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		k := keyword{
			raw:    kw,
			lower:  strings.ToLower(kw),
			phrase: isPhrase(kw),
		}
		if wholeWord && !k.phrase {
			k.pattern = wholeWordPattern(kw)
		}
		m.keywords = append(m.keywords, k)
	}
	return m
}

// Keywords returns the prepared keywords in match order.
func (m *Matcher) Keywords() []string {
	out := make([]string, len(m.keywords))
	for i, k := range m.keywords {
		out[i] = k.raw
	}
	return out
}

// MatchesAny reports the first keyword matching text.
func (m *Matcher) MatchesAny(text string) (bool, string) {
	if len(m.keywords) == 0 || text == "" {
		return false, ""
	}
	lower := strings.ToLower(text)
	for _, k := range m.keywords {
		if m.matches(text, lower, k) {
			return true, k.raw
		}
	}
	return false, ""
}

func (m *Matcher) matches(text, lower string, k keyword) bool {
	if !m.wholeWord || k.phrase {
		return strings.Contains(lower, k.lower)
	}
	if k.pattern != nil {
		return k.pattern.MatchString(text)
	}
	return containsWord(lower, k.lower)
}
