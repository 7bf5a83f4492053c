//go:build windows

package main

import "os/exec"

// setDetachedProcAttr is a no-op on Windows: Process.Release already
// detaches the child without a special process-group flag.
func setDetachedProcAttr(cmd *exec.Cmd) {}
