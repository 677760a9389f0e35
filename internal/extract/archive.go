package extract

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/mholt/archives"

	"github.com/michaelscutari/seek/internal/classify"
)

const (
	maxArchiveMembers     = 10000
	maxArchiveMemberBytes = 1 << 20
	maxArchiveTotalBytes  = 16 << 20
)

var errArchiveBudget = errors.New("archive budget exhausted")

// ArchiveExtractor lists member names of an archive and includes the text
// of small members that Base would content-search on their own.
type ArchiveExtractor struct{}

// ExtractPath implements PathExtractor.
func (e *ArchiveExtractor) ExtractPath(ctx context.Context, name string) (string, error) {
	fsys, err := archives.FileSystem(ctx, name, nil)
	if err != nil {
		return "", err
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer closer.Close()
	}

	var (
		b       strings.Builder
		members int
		total   int64
	)
	err = fs.WalkDir(fsys, ".", func(inner string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || d.IsDir() {
			return nil
		}
		members++
		if members > maxArchiveMembers || total >= maxArchiveTotalBytes {
			return errArchiveBudget
		}
		b.WriteString(inner)
		b.WriteByte('\n')

		if !classify.ContentEligible(path.Ext(inner), classify.ProfileBase) {
			return nil
		}
		f, err := fsys.Open(inner)
		if err != nil {
			return nil
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxArchiveMemberBytes))
		if err != nil {
			return nil
		}
		total += int64(len(data))
		if text, ok := DecodeText(data); ok {
			b.WriteString(text)
			b.WriteByte('\n')
		}
		return nil
	})
	if err != nil && !errors.Is(err, errArchiveBudget) {
		return b.String(), err
	}
	return b.String(), nil
}
