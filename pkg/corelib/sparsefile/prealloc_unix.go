//go:build !windows

package sparsefile

import (
	"golang.org/x/sys/unix"

	"github.com/spf13/afero"
)

// fdFile is satisfied by *os.File (and afero's os-backed File wrapper);
// type-asserted rather than assumed, since afero.File itself has no Fd().
type fdFile interface {
	Fd() uintptr
}

// preallocate reserves n bytes of disk space for f without writing zeros
// into unwritten blocks, using fallocate's FALLOC_FL_KEEP_SIZE extension.
// Truncate already sets the logical length; this best-effort call only
// helps the filesystem reserve contiguous blocks up front. It silently no-
// ops for in-memory filesystems (tests) or filesystems that don't support
// fallocate (e.g. some network mounts) — SetSize's Truncate call already
// establishes the sparse length correctly without it.
func preallocate(f afero.File, n int64) {
	fd, ok := f.(fdFile)
	if !ok {
		return
	}
	_ = unix.Fallocate(int(fd.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, n)
}
