package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/pkg/corelib"
)

var statusWatch bool

var statusFlags = []cli.Flag{
	cli.BoolFlag{
		Name:        "watch, w",
		Usage:       "keep refreshing until the task reaches a terminal state",
		Destination: &statusWatch,
	},
}

func statusAction(ctx *cli.Context) error {
	id := ctx.Args().First()
	if id == "" {
		return printErrWithCmdHelp(ctx, errors.New("usage: gridfetch status <task-id>"))
	}
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "status", "open_root", err)
		return nil
	}
	defer root.Close()

	taskID := corelib.ID(id)
	if !statusWatch {
		return printStatusOnce(ctx, root, taskID)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		st, err := root.Status(taskID)
		if err != nil {
			printRuntimeErr(ctx, "status", "status", err)
			return nil
		}
		printTaskStatus(st.ID, st.Status, st.ErrorMessage, st.DownloadedBytes, st.TotalBytes, st.BytesPerSecond, st.SourceURL)
		switch st.Status {
		case corelib.StatusComplete, corelib.StatusError:
			return nil
		}
	}
	return nil
}

func printStatusOnce(ctx *cli.Context, root *app.Root, taskID corelib.ID) error {
	st, err := root.Status(taskID)
	if err != nil {
		printRuntimeErr(ctx, "status", "status", err)
		return nil
	}
	printTaskStatus(st.ID, st.Status, st.ErrorMessage, st.DownloadedBytes, st.TotalBytes, st.BytesPerSecond, st.SourceURL)
	return nil
}

func printTaskStatus(id corelib.ID, status corelib.TaskStatus, errMsg string, downloaded, total int64, bps float64, sourceURL string) {
	fmt.Printf("%s  %-10s  %s/%s  %s/s  %s\n",
		id, status,
		corelib.FormatBytes(downloaded), corelib.FormatBytes(total),
		corelib.FormatBytes(int64(bps)), sourceURL)
	if errMsg != "" {
		fmt.Printf("  error: %s\n", errMsg)
	}
}
