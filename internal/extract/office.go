package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/richardlehane/mscfb"
)

const (
	maxMemberBytes = 16 << 20
	maxOLEBytes    = 8 << 20
)

// ZipXMLExtractor reads text nodes from XML members of a zip container:
// .docx, .odt, .pptx and .xlsx. Members lists exact names; Prefix selects
// every member whose name starts with it.
type ZipXMLExtractor struct {
	Members []string
	Prefix  string
}

// ExtractText implements Extractor.
func (e *ZipXMLExtractor) ExtractText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open zip container: %w", err)
	}

	var files []*zip.File
	for _, f := range zr.File {
		if e.wants(f.Name) {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	if len(files) == 0 {
		return "", fmt.Errorf("no document members found")
	}

	var b strings.Builder
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			continue
		}
		err = xmlText(io.LimitReader(rc, maxMemberBytes), &b)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
	}
	return collapseSpace(b.String()), nil
}

func (e *ZipXMLExtractor) wants(name string) bool {
	for _, m := range e.Members {
		if name == m {
			return true
		}
	}
	return e.Prefix != "" && strings.HasPrefix(name, e.Prefix) && strings.HasSuffix(name, ".xml")
}

// xmlText appends every character-data token to b, separated by spaces.
func xmlText(r io.Reader, b *strings.Builder) error {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if cd, ok := tok.(xml.CharData); ok {
			b.Write(cd)
			b.WriteByte(' ')
		}
	}
}

// oleTextStreams are the streams that carry body text in Word binaries and
// Outlook messages. Names ending in 001F hold UTF-16, 001E hold 8-bit text.
var oleTextStreams = map[string]bool{
	"WordDocument":         true,
	"1Table":               true,
	"0Table":               true,
	"__substg1.0_0037001F": true, // subject
	"__substg1.0_0037001E": true,
	"__substg1.0_1000001F": true, // body
	"__substg1.0_1000001E": true,
	"__substg1.0_0C1A001F": true, // sender name
	"__substg1.0_0E04001F": true, // display to
}

// OLEExtractor salvages readable text from OLE compound files (.doc, .msg).
type OLEExtractor struct{}

// ExtractText implements Extractor.
func (e *OLEExtractor) ExtractText(data []byte) (string, error) {
	doc, err := mscfb.New(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open compound file: %w", err)
	}

	var (
		b     strings.Builder
		total int64
	)
	for ent, err := doc.Next(); err == nil; ent, err = doc.Next() {
		if total >= maxOLEBytes {
			break
		}
		if !oleTextStreams[ent.Name] {
			continue
		}
		buf, rerr := io.ReadAll(io.LimitReader(ent, maxOLEBytes-total))
		if rerr != nil && len(buf) == 0 {
			continue
		}
		total += int64(len(buf))
		switch {
		case strings.HasSuffix(ent.Name, "001F"):
			b.WriteString(decodeUTF16LE(buf))
		case strings.HasSuffix(ent.Name, "001E"):
			b.Write(buf)
		default:
			b.WriteString(salvageText(buf))
		}
		b.WriteByte(' ')
	}
	return collapseSpace(b.String()), nil
}

// salvageText keeps printable runs of at least four characters, reading the
// buffer both as 8-bit text and as UTF-16LE.
func salvageText(buf []byte) string {
	var out strings.Builder
	appendRuns(&out, []rune(string(bytes.ToValidUTF8(buf, nil))))
	appendRuns(&out, []rune(decodeUTF16LE(evenLength(buf))))
	return out.String()
}

func evenLength(buf []byte) []byte {
	if len(buf)%2 == 1 {
		return buf[:len(buf)-1]
	}
	return buf
}

func appendRuns(out *strings.Builder, runes []rune) {
	const minRun = 4
	start := -1
	for i, r := range runes {
		printable := r == ' ' || (r >= 0x21 && r < 0x7F) || (r >= 0xA0 && r != 0xFFFD && r < 0x3000)
		if printable {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minRun {
			out.WriteString(string(runes[start:i]))
			out.WriteByte(' ')
		}
		start = -1
	}
	if start >= 0 && len(runes)-start >= minRun {
		out.WriteString(string(runes[start:]))
	}
}
