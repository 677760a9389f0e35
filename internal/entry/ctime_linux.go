//go:build linux

package entry

import (
	"os"
	"syscall"
	"time"
)

// CreatedTime reports the inode change time, the closest Linux offers
// through a plain stat.
func CreatedTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Unix())
	}
	return info.ModTime()
}
