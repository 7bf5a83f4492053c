//go:build !windows

package sparsefile

import (
	"fmt"
	"syscall"

	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// CheckDiskSpace reports an IoError if fewer than requiredBytes are
// available on the filesystem backing dir. A failure to statfs is
// treated as "can't tell, don't block the download" rather than an error.
func CheckDiskSpace(dir string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return nil
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	if available < requiredBytes {
		return fmt.Errorf("%w: need %d bytes, have %d available at %s",
			errs.ErrIO, requiredBytes, available, dir)
	}
	return nil
}
