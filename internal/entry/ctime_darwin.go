//go:build darwin

package entry

import (
	"os"
	"syscall"
	"time"
)

// CreatedTime reports the file birth time.
func CreatedTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Birthtimespec.Unix())
	}
	return info.ModTime()
}
