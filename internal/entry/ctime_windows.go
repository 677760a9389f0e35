//go:build windows

package entry

import (
	"os"
	"syscall"
	"time"
)

// CreatedTime reports the NTFS creation time.
func CreatedTime(info os.FileInfo) time.Time {
	if d, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return time.Unix(0, d.CreationTime.Nanoseconds())
	}
	return info.ModTime()
}
