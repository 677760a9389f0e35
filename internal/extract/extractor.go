// Package extract turns files into searchable text. The traversal engine
// only sees the ContentExtractor interface; Registry is the default
// implementation and dispatches on file extension.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/classify"
)

// DefaultMaxBytes caps how much of a single file is read into memory.
const DefaultMaxBytes = 64 << 20

// ContentExtractor returns the searchable text of path, or ok=false when the
// file has no extractable text.
type ContentExtractor interface {
	Extract(ctx context.Context, path string, profile classify.Profile) (text string, ok bool)
}

// Extractor converts raw file bytes into plain text.
type Extractor interface {
	ExtractText(data []byte) (string, error)
}

// PathExtractor reads the file itself, for formats that need random access.
type PathExtractor interface {
	ExtractPath(ctx context.Context, path string) (string, error)
}

type format struct {
	bytes      Extractor
	path       PathExtractor
	minProfile classify.Profile
}

// Registry holds extractors for different file types.
type Registry struct {
	formats  map[string]format
	maxBytes int64
}

// NewRegistry creates a registry with the built-in extractors.
func NewRegistry() *Registry {
	r := &Registry{
		formats:  make(map[string]format),
		maxBytes: DefaultMaxBytes,
	}
	r.registerBuiltIns()
	return r
}

// WithMaxBytes overrides the per-file read cap.
func (r *Registry) WithMaxBytes(n int64) *Registry {
	if n > 0 {
		r.maxBytes = n
	}
	return r
}

// Register installs a byte extractor for ext, available from minProfile up.
func (r *Registry) Register(ext string, e Extractor, minProfile classify.Profile) {
	r.formats[normalizeExt(ext)] = format{bytes: e, minProfile: minProfile}
}

// RegisterPath installs a path extractor for ext, available from minProfile up.
func (r *Registry) RegisterPath(ext string, e PathExtractor, minProfile classify.Profile) {
	r.formats[normalizeExt(ext)] = format{path: e, minProfile: minProfile}
}

func (r *Registry) registerBuiltIns() {
	// Email
	r.Register(".eml", &EMLExtractor{}, classify.ProfileBase)
	r.Register(".mbox", &MBOXExtractor{}, classify.ProfileAdvanced)

	// OLE compound documents
	r.Register(".doc", &OLEExtractor{}, classify.ProfileAdvanced)
	r.Register(".msg", &OLEExtractor{}, classify.ProfileAdvanced)

	// Zipped XML documents
	r.Register(".docx", &ZipXMLExtractor{Members: []string{"word/document.xml"}}, classify.ProfileAdvanced)
	r.Register(".odt", &ZipXMLExtractor{Members: []string{"content.xml"}}, classify.ProfileAdvanced)
	r.Register(".pptx", &ZipXMLExtractor{Prefix: "ppt/slides/slide"}, classify.ProfileAdvanced)
	r.Register(".xlsx", &ZipXMLExtractor{Members: []string{"xl/sharedStrings.xml"}}, classify.ProfileAdvanced)

	// Markup
	r.Register(".html", &HTMLExtractor{}, classify.ProfileBase)
	r.Register(".htm", &HTMLExtractor{}, classify.ProfileBase)
	r.Register(".xml", &XMLExtractor{}, classify.ProfileBase)
	r.Register(".rtf", &RTFExtractor{}, classify.ProfileBase)

	r.RegisterPath(".pdf", &PDFExtractor{}, classify.ProfileAdvanced)

	for _, ext := range []string{".zip", ".tar", ".tgz", ".gz", ".7z", ".rar"} {
		r.RegisterPath(ext, &ArchiveExtractor{}, classify.ProfileDeep)
	}
}

// Extract implements ContentExtractor.
func (r *Registry) Extract(ctx context.Context, path string, profile classify.Profile) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	ext := normalizeExt(filepath.Ext(path))
	f, known := r.formats[ext]
	if known && profile < f.minProfile {
		return "", false
	}

	var (
		text string
		err  error
	)
	switch {
	case known && f.path != nil:
		text, err = f.path.ExtractPath(ctx, path)
	default:
		var data []byte
		data, err = r.readFile(path)
		if err != nil {
			break
		}
		if known {
			text, err = f.bytes.ExtractText(data)
		} else {
			var ok bool
			text, ok = DecodeText(data)
			if !ok {
				return "", false
			}
		}
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"file": path, "err": err}).Debug("extraction failed")
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func (r *Registry) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, r.maxBytes))
	dropPageCache(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
