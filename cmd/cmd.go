// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func providerFlag(name, usage string, required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     name,
		Usage:    usage + " (spotify or deezer)",
		Required: required,
	}
}

func jsonFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file, initialize the database and run migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Revert the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

// tuiCommand launches the interactive track picker
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Pick playlist tracks interactively and transfer them",
		Flags: []cli.Flag{
			providerFlag("from", "Source provider", true),
			providerFlag("to", "Destination provider", true),
			&cli.StringFlag{
				Name:  "log",
				Usage: "Log file path",
				Value: "./tmp/sonik-tui.log",
			},
		},
		Action: r.TUI,
	}
}
