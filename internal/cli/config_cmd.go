package cli

import (
	"fmt"

	"github.com/vburojevic/dbgsync/internal/config"
	"github.com/vburojevic/dbgsync/internal/output"
)

// ConfigCmd groups configuration commands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show which config file is used"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a sample config file"`
}

// ConfigShowCmd shows the effective configuration
type ConfigShowCmd struct{}

// ConfigOutput is the NDJSON form of the configuration
type ConfigOutput struct {
	Type          string        `json:"type"`
	SchemaVersion int           `json:"schemaVersion"`
	File          string        `json:"file,omitempty"`
	Format        string        `json:"format"`
	Level         string        `json:"level"`
	Quiet         bool          `json:"quiet"`
	Verbose       bool          `json:"verbose"`
	Store         string        `json:"store"`
	Relay         relayFieldSet `json:"relay"`
}

type relayFieldSet struct {
	MaxAttempts  int    `json:"max_attempts"`
	RetryBackoff string `json:"retry_backoff"`
	OutboxLimit  int    `json:"outbox_limit"`
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}
	store := globals.Store
	if store == "" {
		store = cfg.Store.Path
	}

	if globals.Format == "ndjson" {
		return globals.writer().Write(&ConfigOutput{
			Type:          "config",
			SchemaVersion: output.SchemaVersion,
			File:          config.ConfigFile(),
			Format:        globals.Format,
			Level:         globals.Level,
			Quiet:         globals.Quiet,
			Verbose:       globals.Verbose,
			Store:         store,
			Relay: relayFieldSet{
				MaxAttempts:  cfg.Relay.MaxAttempts,
				RetryBackoff: cfg.Relay.RetryBackoff.String(),
				OutboxLimit:  cfg.Relay.OutboxLimit,
			},
		})
	}

	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	fmt.Fprintf(globals.Stdout, "  format: %s\n", globals.Format)
	fmt.Fprintf(globals.Stdout, "  level: %s\n", globals.Level)
	fmt.Fprintf(globals.Stdout, "  quiet: %t\n", globals.Quiet)
	fmt.Fprintf(globals.Stdout, "  verbose: %t\n", globals.Verbose)
	fmt.Fprintf(globals.Stdout, "  store: %s\n", store)
	fmt.Fprintln(globals.Stdout, "Relay:")
	fmt.Fprintf(globals.Stdout, "  max_attempts: %d\n", cfg.Relay.MaxAttempts)
	fmt.Fprintf(globals.Stdout, "  retry_backoff: %s\n", cfg.Relay.RetryBackoff)
	fmt.Fprintf(globals.Stdout, "  outbox_limit: %d\n", cfg.Relay.OutboxLimit)
	return nil
}

// ConfigPathCmd shows the config file in use
type ConfigPathCmd struct{}

// ConfigPathOutput is the NDJSON form of ConfigPathCmd
type ConfigPathOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Path          string `json:"path"`
}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()
	if globals.Format == "ndjson" {
		return globals.writer().Write(&ConfigPathOutput{
			Type:          "config_path",
			SchemaVersion: output.SchemaVersion,
			Path:          path,
		})
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found (using defaults)")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}

// ConfigGenerateCmd prints a sample config file
type ConfigGenerateCmd struct{}

const sampleConfig = `# dbgsync configuration file
# Place as dbgsync.yaml in ~/.config/dbgsync/, your home directory or the
# working directory. Environment variables use the DBGSYNC_ prefix.

format: ndjson
level: info
quiet: false
verbose: false

store:
  path: %s

relay:
  max_attempts: 3
  retry_backoff: 100ms
  outbox_limit: 256
`

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	_, err := fmt.Fprintf(globals.Stdout, sampleConfig, config.DefaultStorePath())
	return err
}
