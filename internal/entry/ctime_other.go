//go:build !linux && !darwin && !windows

package entry

import (
	"os"
	"time"
)

func CreatedTime(info os.FileInfo) time.Time {
	return info.ModTime()
}
