//go:build windows

package sparsefile

// CheckDiskSpace is a no-op on Windows: statfs-equivalent free-space
// probing needs GetDiskFreeSpaceEx via golang.org/x/sys/windows, which the
// teacher gates behind its own build, out of scope here. The destination
// write will simply fail with an IoError if the disk is full.
func CheckDiskSpace(dir string, requiredBytes int64) error {
	return nil
}
