package extract

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const sniffLen = 8000

// DecodeText converts plain-text bytes to a UTF-8 string, honouring UTF-8
// and UTF-16 byte order marks. It returns false for data that looks binary.
func DecodeText(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), true
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data, unicode.LittleEndian)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data, unicode.BigEndian)
	}
	if looksBinary(data) {
		return "", false
	}
	return string(data), true
}

func decodeUTF16(data []byte, endian unicode.Endianness) (string, bool) {
	out, err := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// looksBinary treats a NUL byte or mostly-invalid UTF-8 in the leading
// window as binary content.
func looksBinary(data []byte) bool {
	sample := data
	if len(sample) > sniffLen {
		sample = sample[:sniffLen]
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	invalid := 0
	for i := 0; i < len(sample); {
		r, size := utf8.DecodeRune(sample[i:])
		if r == utf8.RuneError && size == 1 {
			// A rune cut by the sample window is not evidence of binary.
			if len(sample)-i < utf8.UTFMax && len(data) > len(sample) {
				break
			}
			invalid++
		}
		i += size
	}
	return invalid*10 > len(sample)
}

// decodeUTF16LE decodes BOM-less little-endian UTF-16 as stored in OLE streams.
func decodeUTF16LE(data []byte) string {
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return string(out)
}
