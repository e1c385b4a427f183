//go:build !linux && !darwin

package snapshot

import (
	"io/fs"
	"time"
)

// attrChangeTime has no portable ctime source on this platform; the
// modification time is the best available approximation.
func attrChangeTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
