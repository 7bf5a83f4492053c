package main

import (
	"context"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/pkg/nativehost"
)

const nativeHostDescription = `The native-host command runs gridfetch as a
Chrome/Firefox native messaging host: it reads length-prefixed JSON
requests from stdin and writes length-prefixed JSON responses to stdout,
the protocol a browser extension speaks to a registered native application.

This command is meant to be launched by the browser, not typed directly;
see the browser's native messaging host manifest for wiring instructions.
`

func nativeHostAction(ctx *cli.Context) error {
	root, err := getRoot(ctx)
	if err != nil {
		printRuntimeErr(ctx, "native-host", "open_root", err)
		return nil
	}
	defer root.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := root.Run(runCtx); err != nil {
		printRuntimeErr(ctx, "native-host", "run", err)
		return nil
	}

	host := nativehost.NewHost(nativehost.NewRootClient(root))
	return host.Run()
}
