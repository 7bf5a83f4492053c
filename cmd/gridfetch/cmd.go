// Package main implements gridfetch's command-line interface: a single
// binary (github.com/urfave/cli application tree, global flags, custom
// help templates) embedding internal/app.Root directly rather than
// talking to a separate background daemon over a socket. See DESIGN.md
// for the rationale behind keeping everything in one process.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var (
	buildVersion = "0.0.0"
	buildType    = "source"
	buildDate    = "unknown"
	buildCommit  = "unknown"
)

const defaultConnectionCountFlag = 4

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "db-path",
		Usage:  "path to the gridfetch SQLite store",
		Value:  defaultDBPath(),
		EnvVar: "GRIDFETCH_DB_PATH",
	},
	cli.BoolFlag{
		Name:   "debug, d",
		Usage:  "enable verbose logging",
		EnvVar: "GRIDFETCH_DEBUG",
	},
	cli.Int64Flag{
		Name:   "rate-limit",
		Usage:  "cap aggregate throughput in bytes/sec across all tasks (0 = unlimited)",
		EnvVar: "GRIDFETCH_RATE_LIMIT",
	},
	cli.StringFlag{
		Name:   "proxy",
		Usage:  "route HTTP/HTTPS downloads through this http://, https://, or socks5:// proxy",
		EnvVar: "GRIDFETCH_PROXY",
	},
	cli.StringFlag{
		Name:   "log-file",
		Usage:  "append log output to this file, in addition to --debug's console output",
		EnvVar: "GRIDFETCH_LOG_FILE",
	},
	cli.StringFlag{
		Name:   "metrics-addr",
		Usage:  "serve Prometheus metrics at this address (e.g. :9090); unset disables the exporter",
		EnvVar: "GRIDFETCH_METRICS_ADDR",
	},
}

func defaultDBPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "gridfetch.db"
	}
	return dir + "/.gridfetch.db"
}

func getApp() *cli.App {
	app := &cli.App{
		Name:                   "gridfetch",
		HelpName:               "gridfetch",
		Usage:                  "a multi-connection download manager",
		Version:                fmt.Sprintf("%s-%s", buildVersion, buildType),
		UsageText:              "gridfetch <command> [arguments...]",
		Description:            description,
		CustomAppHelpTemplate:  helpTemplate,
		OnUsageError:           usageErrorCallback,
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
		Flags:                  append(append([]cli.Flag{}, addFlags...), globalFlags...),
		Action:                 addAction,
		Commands: []cli.Command{
			{
				Name:                   "add",
				Aliases:                []string{"download", "d"},
				Usage:                  "enqueue and run a download",
				Description:            addDescription,
				CustomHelpTemplate:     cmdHelpTemplate,
				OnUsageError:           usageErrorCallback,
				UseShortOptionHandling: true,
				Action:                 addAction,
				Flags:                  append(append([]cli.Flag{}, addFlags...), globalFlags...),
			},
			{
				Name:                   "list",
				Aliases:                []string{"l", "ls"},
				Usage:                  "list tracked downloads",
				Description:            listDescription,
				CustomHelpTemplate:     cmdHelpTemplate,
				OnUsageError:           usageErrorCallback,
				UseShortOptionHandling: true,
				Action:                 listAction,
				Flags:                  append(append([]cli.Flag{}, listFlags...), globalFlags...),
			},
			{
				Name:                   "status",
				Aliases:                []string{"s"},
				Usage:                  "show a single download's progress",
				Description:            statusDescription,
				CustomHelpTemplate:     cmdHelpTemplate,
				OnUsageError:           usageErrorCallback,
				UseShortOptionHandling: true,
				Action:                 statusAction,
				Flags:                  append(append([]cli.Flag{}, statusFlags...), globalFlags...),
			},
			{
				Name:      "pause",
				Usage:     "pause a running download",
				ArgsUsage: "<task-id>",
				Action:    pauseAction,
				Flags:     globalFlags,
			},
			{
				Name:      "resume",
				Usage:     "resume a paused or errored download",
				ArgsUsage: "<task-id>",
				Action:    resumeAction,
				Flags:     globalFlags,
			},
			{
				Name:      "cancel",
				Usage:     "cancel a download",
				ArgsUsage: "<task-id>",
				Action:    cancelAction,
				Flags:     globalFlags,
			},
			queueCommand,
			watchTaskCommand,
			{
				Name:        "native-host",
				Usage:       "run as a browser-extension native messaging host over stdio",
				Description: nativeHostDescription,
				Action:      nativeHostAction,
				Flags:       globalFlags,
			},
			{
				Name:        "ext-bridge",
				Usage:       "poll a directory for browser-extension download requests",
				Description: extBridgeDescription,
				Action:      extBridgeAction,
				Flags:       append(append([]cli.Flag{}, extBridgeFlags...), globalFlags...),
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  helpAction,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints the installed version",
				CustomHelpTemplate: cmdHelpTemplate,
				Action:             versionAction,
			},
		},
	}
	return app
}

func main() {
	if err := getApp().Run(os.Args); err != nil {
		fmt.Printf("gridfetch: %s\n", err.Error())
		os.Exit(1)
	}
}
