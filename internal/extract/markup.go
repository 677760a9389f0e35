package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	scriptPattern     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spacePattern      = regexp.MustCompile(`\s+`)
	rtfControlPattern = regexp.MustCompile(`\\[a-zA-Z]+-?\d* ?|\\'[0-9a-fA-F]{2}|\\[{}\\]`)
)

// HTMLExtractor extracts visible text from .html files.
type HTMLExtractor struct{}

// ExtractText implements Extractor.
func (e *HTMLExtractor) ExtractText(data []byte) (string, error) {
	text, _ := DecodeText(data)
	text = scriptPattern.ReplaceAllString(text, " ")
	return collapseSpace(stripTags(text)), nil
}

// XMLExtractor extracts character data from .xml files.
type XMLExtractor struct{}

// ExtractText implements Extractor.
func (e *XMLExtractor) ExtractText(data []byte) (string, error) {
	text, _ := DecodeText(data)
	return collapseSpace(stripTags(text)), nil
}

// RTFExtractor drops control words and groups from .rtf files.
type RTFExtractor struct{}

// ExtractText implements Extractor.
func (e *RTFExtractor) ExtractText(data []byte) (string, error) {
	text := rtfControlPattern.ReplaceAllString(string(data), " ")
	text = strings.NewReplacer("{", " ", "}", " ").Replace(text)
	return collapseSpace(text), nil
}

func stripTags(s string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
