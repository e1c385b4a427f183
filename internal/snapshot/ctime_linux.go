package snapshot

import (
	"io/fs"
	"syscall"
	"time"
)

// attrChangeTime returns the inode change time (ctime). Falls back to the
// modification time when the stat backend does not expose it.
func attrChangeTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return info.ModTime()
}
