package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/michaelscutari/seek/internal/classify"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func zipBytes(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestRegistryExtractsPlainText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "report.txt", []byte("invoice #4521\n"))

	text, ok := NewRegistry().Extract(context.Background(), path, classify.ProfileBase)
	if !ok {
		t.Fatalf("expected text to be extracted")
	}
	if text != "invoice #4521" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestRegistryRejectsBinary(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "blob.log", []byte{0x7f, 'E', 'L', 'F', 0, 0, 1, 2})

	if _, ok := NewRegistry().Extract(context.Background(), path, classify.ProfileDeep); ok {
		t.Fatalf("binary content must not be extractable")
	}
}

func TestRegistryHonoursCancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "report.txt", []byte("invoice"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := NewRegistry().Extract(ctx, path, classify.ProfileBase); ok {
		t.Fatalf("cancelled context should stop extraction")
	}
}

func TestRegistryGatesFormatsByProfile(t *testing.T) {
	dir := t.TempDir()
	doc := zipBytes(t, map[string]string{
		"word/document.xml": `<w:document><w:body><w:p><w:r><w:t>quarterly invoice</w:t></w:r></w:p></w:body></w:document>`,
	})
	path := writeFile(t, dir, "q3.docx", doc)
	reg := NewRegistry()

	if _, ok := reg.Extract(context.Background(), path, classify.ProfileBase); ok {
		t.Fatalf("docx must not be extracted at base")
	}
	text, ok := reg.Extract(context.Background(), path, classify.ProfileAdvanced)
	if !ok || !strings.Contains(text, "quarterly invoice") {
		t.Fatalf("expected docx text at advanced, got %q", text)
	}
}

func TestDecodeTextHandlesBOMs(t *testing.T) {
	utf16le := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
	if text, ok := DecodeText(utf16le); !ok || text != "hi" {
		t.Fatalf("utf-16le: got %q %v", text, ok)
	}
	utf16be := []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}
	if text, ok := DecodeText(utf16be); !ok || text != "hi" {
		t.Fatalf("utf-16be: got %q %v", text, ok)
	}
	utf8bom := []byte{0xEF, 0xBB, 0xBF, 'h', 'i'}
	if text, ok := DecodeText(utf8bom); !ok || text != "hi" {
		t.Fatalf("utf-8 bom: got %q %v", text, ok)
	}
	if _, ok := DecodeText(nil); ok {
		t.Fatalf("empty input is not text")
	}
}

func TestHTMLExtractorDropsMarkup(t *testing.T) {
	text, err := (&HTMLExtractor{}).ExtractText([]byte(`<html><head><style>p{color:red}</style></head><body><p>Tom &amp; Jerry</p><script>var x=1;</script></body></html>`))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "Tom & Jerry" {
		t.Fatalf("unexpected html text %q", text)
	}
}

func TestRTFExtractor(t *testing.T) {
	text, err := (&RTFExtractor{}).ExtractText([]byte(`{\rtf1\ansi{\fonttbl\f0\fswiss Helvetica;}\f0\pard Overdue invoice\par}`))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "Overdue invoice") {
		t.Fatalf("unexpected rtf text %q", text)
	}
}

const sampleEML = "From: billing@example.com\r\n" +
	"To: ops@example.com\r\n" +
	"Subject: Invoice 4521\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please settle the outstanding balance.\r\n"

func TestEMLExtractor(t *testing.T) {
	text, err := (&EMLExtractor{}).ExtractText([]byte(sampleEML))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "Invoice 4521") || !strings.Contains(text, "outstanding balance") {
		t.Fatalf("expected subject and body, got %q", text)
	}
}

func TestMBOXExtractor(t *testing.T) {
	mbox := "From billing@example.com Mon Jan  1 00:00:00 2024\n" +
		strings.ReplaceAll(sampleEML, "\r\n", "\n") +
		"\nFrom ops@example.com Mon Jan  1 00:00:00 2024\n" +
		"From: ops@example.com\nSubject: Receipt\n\nThanks, paid.\n"

	text, err := (&MBOXExtractor{}).ExtractText([]byte(mbox))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "Invoice 4521") || !strings.Contains(text, "Thanks, paid.") {
		t.Fatalf("expected both messages, got %q", text)
	}
}

func TestZipXMLExtractorUsesPrefix(t *testing.T) {
	data := zipBytes(t, map[string]string{
		"ppt/slides/slide2.xml": `<p:sld><a:t>second</a:t></p:sld>`,
		"ppt/slides/slide1.xml": `<p:sld><a:t>first</a:t></p:sld>`,
		"ppt/presentation.xml":  `<p:presentation><a:t>ignored</a:t></p:presentation>`,
	})
	text, err := (&ZipXMLExtractor{Prefix: "ppt/slides/slide"}).ExtractText(data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "first second" {
		t.Fatalf("unexpected slide text %q", text)
	}
}

func TestArchiveExtractorAtDeep(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bundle.zip", zipBytes(t, map[string]string{
		"notes/todo.txt": "pay invoice 4521",
		"bin/tool.exe":   "MZ",
	}))
	reg := NewRegistry()

	if _, ok := reg.Extract(context.Background(), path, classify.ProfileAdvanced); ok {
		t.Fatalf("archives are deep only")
	}
	text, ok := reg.Extract(context.Background(), path, classify.ProfileDeep)
	if !ok {
		t.Fatalf("expected archive text at deep")
	}
	if !strings.Contains(text, "pay invoice 4521") || !strings.Contains(text, "bin/tool.exe") {
		t.Fatalf("expected member text and names, got %q", text)
	}
	if strings.Contains(text, "MZ") {
		t.Fatalf("non-text member content should not be included: %q", text)
	}
}

func TestSalvageText(t *testing.T) {
	buf := append([]byte{0x01, 0x02}, []byte("invoice total")...)
	buf = append(buf, 0x00, 0x03)
	if got := salvageText(buf); !strings.Contains(got, "invoice total") {
		t.Fatalf("expected ascii run to be kept, got %q", got)
	}
}
