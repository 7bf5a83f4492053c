package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

var listQueue string

var listFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "queue",
		Usage:       "only list tasks belonging to this queue (by name)",
		Destination: &listQueue,
	},
}

func listAction(ctx *cli.Context) error {
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "list", "open_root", err)
		return nil
	}
	defer root.Close()

	var queueID corelib.ID
	if listQueue != "" {
		id, err := resolveQueueID(root, listQueue)
		if err != nil {
			printRuntimeErr(ctx, "list", "resolve_queue", err)
			return nil
		}
		queueID = id
	}

	tasks, err := root.List(queueID)
	if err != nil {
		printRuntimeErr(ctx, "list", "list", err)
		return nil
	}
	if len(tasks) == 0 {
		fmt.Println("no downloads tracked")
		return nil
	}

	fmt.Println("ID                                    STATUS      PROGRESS           SOURCE")
	for _, t := range tasks {
		pct := 0
		if t.TotalBytes > 0 {
			pct = int(t.DownloadedBytes * 100 / t.TotalBytes)
		}
		progress := fmt.Sprintf("%3d%% (%s/%s)", pct, corelib.FormatBytes(t.DownloadedBytes), corelib.FormatBytes(t.TotalBytes))
		fmt.Printf("%-36s  %-10s  %-18s  %s\n", t.ID, t.Status, progress, t.SourceURL)
	}
	return nil
}
