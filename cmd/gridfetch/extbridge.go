package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/pkg/extbridge"
)

const extBridgeDescription = `The ext-bridge command polls a directory for
JSON request files dropped by a browser extension that cannot hold a
native-messaging pipe open, starting each one as a download and deleting
the file once admitted.
`

var (
	extBridgeDir      string
	extBridgeInterval time.Duration
)

var extBridgeFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "dir",
		Usage:       "directory to poll for dropped *.json request files",
		EnvVar:      "GRIDFETCH_EXT_BRIDGE_DIR",
		Destination: &extBridgeDir,
	},
	cli.DurationFlag{
		Name:        "poll-interval",
		Usage:       "how often to scan the directory",
		Value:       extbridge.DefaultPollInterval,
		Destination: &extBridgeInterval,
	},
}

func extBridgeAction(ctx *cli.Context) error {
	if extBridgeDir == "" {
		return printErrWithCmdHelp(ctx, errors.New("usage: gridfetch ext-bridge --dir <path>"))
	}
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "ext-bridge", "open_root", err)
		return nil
	}
	defer root.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := root.Run(runCtx); err != nil {
		printRuntimeErr(ctx, "ext-bridge", "run", err)
		return nil
	}

	bridge := extbridge.New(extBridgeDir, extBridgeInterval, extbridge.NewRootClient(root), nil)
	go bridge.Run(runCtx)
	defer bridge.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh
	return nil
}
