package main

import (
	"fmt"
	stdlog "log"
	"os"
	"runtime"
	"strings"

	"github.com/urfave/cli"

	"github.com/gridfetch/gridfetch/internal/app"
	"github.com/gridfetch/gridfetch/internal/config"
	"github.com/gridfetch/gridfetch/pkg/logger"
)

// buildConfig resolves internal/config.Config from the global flags in
// effect for ctx. There's no daemon process to hand a parsed config
// struct to, so every command rebuilds one from cli.Context directly.
func buildConfig(ctx *cli.Context) config.Config {
	return config.Config{
		DBPath:          ctx.GlobalString("db-path"),
		ConnectionCount: config.DefaultConnectionCount,
		RateLimitBPS:    ctx.GlobalInt64("rate-limit"),
		Debug:           ctx.GlobalBool("debug"),
		ProxyURL:        ctx.GlobalString("proxy"),
		LogFilePath:     ctx.GlobalString("log-file"),
		MetricsAddr:     ctx.GlobalString("metrics-addr"),
	}
}

// getRoot opens the application root per the effective config. Callers
// must Close it when done.
func getRoot(ctx *cli.Context) (*app.Root, error) {
	cfg := buildConfig(ctx)

	log, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}
	root, err := app.New(cfg.DBPath, log, cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitBPS > 0 {
		root.Limiter().Configure(cfg.RateLimitBPS)
	}
	if cfg.MetricsAddr != "" {
		if err := root.ServeMetrics(cfg.MetricsAddr); err != nil {
			root.Close()
			return nil, err
		}
	}
	return root, nil
}

// buildLogger assembles the Logger backends cfg asks for: --debug wants
// console output, --log-file wants a file; both at once fan out through a
// MultiLogger rather than picking one.
func buildLogger(cfg config.Config) (logger.Logger, error) {
	var backends []logger.Logger
	if cfg.Debug {
		backends = append(backends, logger.NewStandardLogger(stdlog.New(os.Stderr, "gridfetch: ", stdlog.LstdFlags)))
	}
	if cfg.LogFilePath != "" {
		fl, err := logger.NewFileLogger(cfg.LogFilePath)
		if err != nil {
			return nil, err
		}
		backends = append(backends, fl)
	}
	switch len(backends) {
	case 0:
		return nil, nil
	case 1:
		return backends[0], nil
	default:
		return logger.NewMultiLogger(backends...), nil
	}
}

func helpAction(ctx *cli.Context) error {
	arg := ctx.Args().First()
	if arg == "" || arg == "help" {
		fmt.Printf("%s %s\n", ctx.App.Name, ctx.App.Version)
		cli.ShowAppHelpAndExit(ctx, 0)
		return nil
	}
	if err := cli.ShowCommandHelp(ctx, arg); err != nil {
		return err
	}
	return nil
}

func versionAction(ctx *cli.Context) error {
	fmt.Printf(
		"%s %s (%s_%s)\nBuild: %s=%s\n",
		ctx.App.Name,
		ctx.App.Version,
		runtime.GOOS,
		runtime.GOARCH,
		buildDate, buildCommit,
	)
	return nil
}

func printRuntimeErr(ctx *cli.Context, cmd, action string, err error) {
	if err == nil {
		return
	}
	name := os.Args[0]
	if ctx != nil {
		name = ctx.App.HelpName
	}
	fmt.Printf("%s: %s[%s]: %s\n", name, cmd, action, err.Error())
}

func printErrWithCmdHelp(ctx *cli.Context, err error) error {
	return printErrWithCallback(ctx, err, func() {
		if err := cli.ShowCommandHelp(ctx, ctx.Command.Name); err != nil {
			fmt.Println(err.Error())
		}
	})
}

func printErrWithCallback(ctx *cli.Context, err error, callback func()) error {
	if err == nil {
		return nil
	}
	estr := strings.ToLower(err.Error())
	if estr == "flag: help requested" {
		return helpAction(ctx)
	}
	fmt.Printf("%s: %s\n\n", ctx.App.HelpName, err.Error())
	callback()
	return nil
}

func usageErrorCallback(ctx *cli.Context, err error, _ bool) error {
	if ctx.Command.Name != "" {
		return printErrWithCmdHelp(ctx, err)
	}
	return printErrWithCallback(ctx, err, func() {
		cli.ShowAppHelpAndExit(ctx, 1)
	})
}
