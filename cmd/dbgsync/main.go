package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/vburojevic/dbgsync/internal/cli"
	"github.com/vburojevic/dbgsync/internal/config"
)

const quickStart = `dbgsync - shared debug sessions for collaborative projects

Quick start:
  dbgsync project open 10
  dbgsync attach -c 1 -p 10 -s 100 --caps restart,modules
  dbgsync attach -c 2 -p 10 -s 100 --caps step_back
  dbgsync panel -c 1 -p 10 --toggle src/main.go:12
  dbgsync sessions

For help:
  dbgsync --help                        All commands and flags
  dbgsync schema                        JSON Schema of every NDJSON event
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Config values become flag defaults; explicit flags still win
	vars := kong.Vars{
		"config_format": cfg.Format,
		"config_level":  cfg.Level,
		"config_store":  cfg.Store.Path,
	}

	ctx := kong.Parse(&c,
		kong.Name("dbgsync"),
		kong.Description("dbgsync: keep debug clients of a shared project in one debug session"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	globals := cli.NewGlobalsWithConfig(&c, cfg)
	if err := ctx.Run(globals); err != nil {
		os.Exit(1)
	}
}
