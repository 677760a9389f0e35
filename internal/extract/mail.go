package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/jhillyerd/enmime"
)

// EMLExtractor extracts text from .eml files (MIME messages).
type EMLExtractor struct{}

// ExtractText implements Extractor.
func (e *EMLExtractor) ExtractText(data []byte) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse eml: %w", err)
	}

	var b strings.Builder
	for _, h := range []string{"From", "To", "Subject"} {
		if v := env.GetHeader(h); v != "" {
			b.WriteString(v)
			b.WriteByte('\n')
		}
	}
	body := env.Text
	if body == "" && env.HTML != "" {
		body = stripTags(env.HTML)
	}
	b.WriteString(body)
	for _, a := range env.Attachments {
		if a.FileName != "" {
			b.WriteByte('\n')
			b.WriteString(a.FileName)
		}
	}
	return collapseSpace(b.String()), nil
}

// MBOXExtractor extracts text from every message in an mbox file.
type MBOXExtractor struct{}

// ExtractText implements Extractor. Messages that fail to parse are skipped;
// if none parse the raw data is returned.
func (e *MBOXExtractor) ExtractText(data []byte) (string, error) {
	reader := mbox.NewReader(bytes.NewReader(data))
	eml := &EMLExtractor{}

	var b strings.Builder
	for {
		msg, err := reader.NextMessage()
		if err != nil {
			break
		}
		content, err := io.ReadAll(msg)
		if err != nil {
			continue
		}
		text, err := eml.ExtractText(content)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n---\n")
	}

	if b.Len() == 0 {
		return string(data), nil
	}
	return b.String(), nil
}
