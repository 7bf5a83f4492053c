package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// watchTaskCommand is gridfetch's own reflection of itself: --detach
// re-execs the binary with this hidden command instead of trying to
// survive past the parent's exit with nothing backing it.
var watchTaskCommand = cli.Command{
	Name:   "watch-task",
	Hidden: true,
	Action: watchTaskDetachedAction,
	Flags:  globalFlags,
}

// spawnDetachedWatcher starts a background gridfetch process that drives
// taskID to completion, detached from the current process group so it
// outlives the parent's exit. The parent has already enqueued the task
// via AddDownload; this only needs to keep something alive to run it.
func spawnDetachedWatcher(ctx *cli.Context, taskID corelib.ID) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable for detached watcher: %w", err)
	}

	args := []string{"watch-task", string(taskID)}
	for _, name := range []string{"db-path", "rate-limit", "proxy", "log-file", "metrics-addr"} {
		if v := ctx.GlobalString(name); v != "" {
			args = append(args, "--"+name, v)
		}
	}

	cmd := exec.Command(executable, args...)
	cmd.Stdout, cmd.Stderr, cmd.Stdin = nil, nil, nil
	setDetachedProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detached watcher: %w", err)
	}
	return cmd.Process.Release()
}

// watchTaskDetachedAction runs the Queue Manager long enough to carry one
// already-enqueued task to a terminal status, then exits. It's the
// detached counterpart to watchTask, minus the progress bar: nothing is
// watching a terminal on the other end.
func watchTaskDetachedAction(ctx *cli.Context) error {
	taskID := corelib.ID(ctx.Args().First())
	if taskID == "" {
		return fmt.Errorf("watch-task requires a task id")
	}

	root, err := getRoot(ctx)
	if err != nil {
		return err
	}
	defer root.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := root.Run(runCtx); err != nil {
		return err
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		st, err := root.Status(taskID)
		if err != nil {
			return err
		}
		switch st.Status {
		case corelib.StatusComplete, corelib.StatusError:
			return nil
		}
	}
	return nil
}
