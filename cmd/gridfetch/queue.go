package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// resolveQueueID looks up a queue by name, used by commands that accept a
// human-typed --queue flag instead of an opaque id.
func resolveQueueID(root *app.Root, name string) (corelib.ID, error) {
	q, err := root.QueueByName(name)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

var queueCommand = cli.Command{
	Name:  "queue",
	Usage: "manage download queues",
	Subcommands: []cli.Command{
		{
			Name:   "list",
			Usage:  "list queues and their admission configuration",
			Action: queueListAction,
			Flags:  globalFlags,
		},
		{
			Name:      "create",
			Usage:     "create a new queue",
			ArgsUsage: "<name>",
			Action:    queueCreateAction,
			Flags:     append(append([]cli.Flag{}, queueConfigFlags...), globalFlags...),
		},
		{
			Name:      "set",
			Usage:     "update a queue's concurrency budget, mode, or active flag",
			ArgsUsage: "<name>",
			Action:    queueSetAction,
			Flags:     append(append([]cli.Flag{}, queueConfigFlags...), globalFlags...),
		},
	},
	Action: queueListAction,
	Flags:  globalFlags,
}

var (
	queueMaxConcurrent int
	queueSequential    bool
	queueInactive      bool
)

var queueConfigFlags = []cli.Flag{
	cli.IntFlag{
		Name:        "max-concurrent",
		Usage:       "maximum number of tasks this queue admits at once",
		Value:       3,
		Destination: &queueMaxConcurrent,
	},
	cli.BoolFlag{
		Name:        "sequential",
		Usage:       "run this queue's tasks one at a time regardless of max-concurrent",
		Destination: &queueSequential,
	},
	cli.BoolFlag{
		Name:        "inactive",
		Usage:       "create or leave the queue inactive (admits no new tasks)",
		Destination: &queueInactive,
	},
}

func queueListAction(ctx *cli.Context) error {
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "queue", "open_root", err)
		return nil
	}
	defer root.Close()

	queues, err := root.Queues()
	if err != nil {
		printRuntimeErr(ctx, "queue", "list", err)
		return nil
	}
	if len(queues) == 0 {
		fmt.Println("no queues")
		return nil
	}
	for _, q := range queues {
		state := "active"
		if !q.IsActive {
			state = "inactive"
		}
		fmt.Printf("%-36s  %-16s  %-8s  max_concurrent=%-3d  mode=%s\n", q.ID, q.Name, state, q.MaxConcurrent, q.Mode)
	}
	return nil
}

func queueCreateAction(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return printErrWithCmdHelp(ctx, errors.New("usage: gridfetch queue create <name>"))
	}
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "queue create", "open_root", err)
		return nil
	}
	defer root.Close()

	mode := corelib.ModeParallel
	if queueSequential {
		mode = corelib.ModeSequential
	}
	id, err := root.CreateQueue(name, queueMaxConcurrent, mode)
	if err != nil {
		printRuntimeErr(ctx, "queue create", "create", err)
		return nil
	}
	if queueInactive {
		if err := root.SetQueueConfig(id, queueMaxConcurrent, mode, false); err != nil {
			printRuntimeErr(ctx, "queue create", "deactivate", err)
			return nil
		}
	}
	fmt.Printf("created queue %s (%s)\n", id, name)
	return nil
}

func queueSetAction(ctx *cli.Context) error {
	name := ctx.Args().First()
	if name == "" {
		return printErrWithCmdHelp(ctx, errors.New("usage: gridfetch queue set <name> [flags]"))
	}
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "queue set", "open_root", err)
		return nil
	}
	defer root.Close()

	id, err := resolveQueueID(root, name)
	if err != nil {
		printRuntimeErr(ctx, "queue set", "resolve_queue", err)
		return nil
	}
	mode := corelib.ModeParallel
	if queueSequential {
		mode = corelib.ModeSequential
	}
	if err := root.SetQueueConfig(id, queueMaxConcurrent, mode, !queueInactive); err != nil {
		printRuntimeErr(ctx, "queue set", "set", err)
		return nil
	}
	fmt.Printf("updated queue %s: max_concurrent=%s mode=%s active=%t\n", name, strconv.Itoa(queueMaxConcurrent), mode, !queueInactive)
	return nil
}
