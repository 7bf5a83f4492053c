package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/pkg/corelib"
)

func pauseAction(ctx *cli.Context) error {
	return withTaskID(ctx, "pause", func(root *app.Root, id corelib.ID) error {
		return root.Pause(id)
	})
}

func resumeAction(ctx *cli.Context) error {
	return withTaskID(ctx, "resume", func(root *app.Root, id corelib.ID) error {
		return root.Resume(id)
	})
}

func cancelAction(ctx *cli.Context) error {
	return withTaskID(ctx, "cancel", func(root *app.Root, id corelib.ID) error {
		return root.Cancel(id)
	})
}

// withTaskID is the shared shape of every single-task control command: open
// the root, resolve the positional task id, run the action, report the
// outcome.
func withTaskID(ctx *cli.Context, name string, action func(*app.Root, corelib.ID) error) error {
	idArg := ctx.Args().First()
	if idArg == "" {
		return printErrWithCmdHelp(ctx, errors.New("usage: gridfetch "+name+" <task-id>"))
	}
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, name, "open_root", err)
		return nil
	}
	defer root.Close()

	id := corelib.ID(idArg)
	if err := action(root, id); err != nil {
		printRuntimeErr(ctx, name, name, err)
		return nil
	}
	fmt.Printf("%s: %s\n", pastTense[name], id)
	return nil
}

var pastTense = map[string]string{
	"pause":  "paused",
	"resume": "resumed",
	"cancel": "cancelled",
}
