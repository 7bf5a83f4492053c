package main

const helpTemplate = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}{{if .VisibleFlags}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const cmdHelpTemplate = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}

`

const description = `
gridfetch is a multi-connection download manager. It splits a download
across several HTTP range requests (or parallel FTP/SFTP transfers), writes
directly into a preallocated sparse file, and resumes across restarts from
a durable on-disk queue.

Example:
        gridfetch add https://example.com/file.iso
`

const addDescription = `The add command probes a URL, derives a destination
filename, and enqueues the download. By default it blocks and renders a
live progress bar until the task reaches a terminal state; pass --detach to
return immediately and leave the task running in the background queue.

Example:
        gridfetch add https://example.com/file.iso
`

const listDescription = `The list command prints every task tracked by the
Persistent Store, optionally filtered to one queue.

Example:
        gridfetch list
`

const statusDescription = `The status command prints (or, with --watch,
live-renders) the progress of a single task.

Example:
        gridfetch status <task-id>
`
