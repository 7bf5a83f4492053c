package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/pkg/corelib"
)

var (
	addFileName    string
	addDir         string
	addConnections int
	addQueue       string
	addCookie      string
	addUserAgent   string
	addReferer     string
	addPaused      bool
	addDetach      bool
)

var addFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "name, o",
		Usage:       "explicitly set the destination file name (derived automatically if unset)",
		Destination: &addFileName,
	},
	cli.StringFlag{
		Name:        "dir, l",
		Usage:       "directory to save the file in",
		Value:       ".",
		Destination: &addDir,
	},
	cli.IntFlag{
		Name:        "connections, x",
		Usage:       "number of parallel range requests to split the download into",
		Value:       defaultConnectionCountFlag,
		EnvVar:      "GRIDFETCH_CONNECTIONS",
		Destination: &addConnections,
	},
	cli.StringFlag{
		Name:        "queue",
		Usage:       "name of the queue to enqueue this download in (default queue if unset)",
		Destination: &addQueue,
	},
	cli.StringFlag{
		Name:        "cookie",
		Usage:       "raw Cookie header to replay against the origin",
		Destination: &addCookie,
	},
	cli.StringFlag{
		Name:        "user-agent",
		Usage:       "User-Agent header to replay against the origin",
		Destination: &addUserAgent,
	},
	cli.StringFlag{
		Name:        "referer",
		Usage:       "Referer header to replay against the origin",
		Destination: &addReferer,
	},
	cli.BoolFlag{
		Name:        "start-paused",
		Usage:       "enqueue without starting immediately",
		Destination: &addPaused,
	},
	cli.BoolFlag{
		Name:        "detach",
		Usage:       "enqueue and exit immediately instead of waiting for completion",
		Destination: &addDetach,
	},
}

func addAction(ctx *cli.Context) error {
	url := ctx.Args().First()
	if url == "" {
		return printErrWithCmdHelp(ctx, errors.New("usage: gridfetch add <url>"))
	}

	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "add", "open_root", err)
		return nil
	}
	defer root.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := root.Run(runCtx); err != nil {
		printRuntimeErr(ctx, "add", "run", err)
		return nil
	}

	var queueID corelib.ID
	if addQueue != "" {
		id, err := resolveQueueID(root, addQueue)
		if err != nil {
			printRuntimeErr(ctx, "add", "resolve_queue", err)
			return nil
		}
		queueID = id
	}

	taskID, err := root.AddDownload(runCtx, url, app.AddOptions{
		ConnectionCount: addConnections,
		QueueID:         queueID,
		// Always inserted without a tick when detaching: admission is
		// handed off entirely to the detached watcher's own Root.Run, so
		// this process never races that watcher to start the same task.
		StartPaused:          addPaused || addDetach,
		SuggestedFilename:    addFileName,
		Cookies:              addCookie,
		UserAgent:            addUserAgent,
		Referer:              addReferer,
		DestinationDirectory: addDir,
	})
	if err != nil {
		printRuntimeErr(ctx, "add", "add_download", err)
		return nil
	}

	fmt.Printf("queued %s\n", taskID)
	if addDetach {
		if addPaused {
			// Nothing to run yet; a later `resume` re-admits it.
			return nil
		}
		if err := spawnDetachedWatcher(ctx, taskID); err != nil {
			printRuntimeErr(ctx, "add", "detach", err)
		}
		return nil
	}
	return watchTask(ctx, root, taskID)
}

// watchTask blocks, rendering a live progress bar, until taskID reaches a
// terminal status. SIGINT pauses the task (rather than leaving it half
// torn-down) and returns.
func watchTask(ctx *cli.Context, root *app.Root, taskID corelib.ID) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	p := mpb.New(mpb.WithWidth(64))
	bar := newDownloadBar(p, taskID)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			_ = root.Pause(taskID)
			p.Shutdown()
			fmt.Println("paused")
			return nil
		case <-ticker.C:
			st, err := root.Status(taskID)
			if err != nil {
				p.Shutdown()
				printRuntimeErr(ctx, "add", "status", err)
				return nil
			}
			bar.SetTotal(st.TotalBytes, false)
			bar.SetCurrent(st.DownloadedBytes)
			switch st.Status {
			case corelib.StatusComplete:
				bar.SetCurrent(st.TotalBytes)
				p.Wait()
				fmt.Println("complete")
				return nil
			case corelib.StatusError:
				p.Shutdown()
				fmt.Printf("failed: %s\n", st.ErrorMessage)
				return nil
			}
		}
	}
}

// newDownloadBar builds a single mpb bar. There's no separate "compiling"
// phase after the download finishes — the range fetcher writes directly
// into the sparse destination file — so one bar covers the whole task.
func newDownloadBar(p *mpb.Progress, taskID corelib.ID) *mpb.Bar {
	name := fmt.Sprintf("%s ", taskID)
	return p.New(0,
		mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DidentRight}),
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WC{W: 4}), "done"),
		),
		mpb.AppendDecorators(
			decor.EwmaSpeed(decor.SizeB1024(0), "% .2f", 30),
		),
	)
}
