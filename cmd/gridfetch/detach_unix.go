//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// setDetachedProcAttr puts the watcher in its own process group so it
// survives the parent CLI process exiting.
func setDetachedProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
