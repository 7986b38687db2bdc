package cli

import (
	"io"
	"os"
	"sync"

	"github.com/vburojevic/dbgsync/internal/config"
	"github.com/vburojevic/dbgsync/internal/output"
)

// Version information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// Globals contains global flags and settings
type Globals struct {
	Format  string
	Level   string
	Quiet   bool
	Verbose bool
	Store   string
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config

	// one writer per run, shared by command output and async deliveries
	outOnce sync.Once
	out     output.Writer
}

// CLI is the root command structure for kong
type CLI struct {
	Format  string `short:"f" default:"${config_format}" enum:"ndjson,text" help:"Output format (ndjson or text)"`
	Level   string `default:"${config_level}" enum:"debug,info,warn,error" help:"Log level for --verbose diagnostics"`
	Quiet   bool   `short:"q" help:"Suppress event output, errors are still printed"`
	Verbose bool   `short:"v" help:"Write structured diagnostics to stderr"`
	Store   string `default:"${config_store}" env:"DBGSYNC_STORE" help:"Path to the SQLite state database (:memory: for a throwaway one)"`

	Project    ProjectCmd    `cmd:"" help:"Open or delete a project"`
	Attach     AttachCmd     `cmd:"" help:"Attach a debug client to a session"`
	Detach     DetachCmd     `cmd:"" aliases:"shutdown" help:"Detach a debug client at its own request"`
	Disconnect DisconnectCmd `cmd:"" help:"Report that a client's connection dropped"`
	Panel      PanelCmd      `cmd:"" help:"Update a client's debug panel state and relay it to peers"`
	Caps       CapsCmd       `cmd:"" help:"Show, check or lower a client's capabilities"`
	Clients    ClientsCmd    `cmd:"" help:"List attached debug clients"`
	Sessions   SessionsCmd   `cmd:"" help:"List live debug sessions"`
	Schema     SchemaCmd     `cmd:"" help:"Print JSON Schema for events, or the SQL schema"`
	Config     ConfigCmd     `cmd:"" help:"Show or locate configuration"`
	Version    VersionCmd    `cmd:"" help:"Show version information"`
}

// NewGlobals creates globals from the parsed CLI
func NewGlobals(c *CLI) *Globals {
	return &Globals{
		Format:  c.Format,
		Level:   c.Level,
		Quiet:   c.Quiet,
		Verbose: c.Verbose,
		Store:   c.Store,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// NewGlobalsWithConfig creates globals with config file fallbacks
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	g := NewGlobals(c)
	g.Config = cfg
	// Config-level quiet/verbose apply unless set on the command line
	if !c.Quiet && cfg.Quiet {
		g.Quiet = true
	}
	if !c.Verbose && cfg.Verbose {
		g.Verbose = true
	}
	return g
}

func (g *Globals) writer() output.Writer {
	g.outOnce.Do(func() {
		if g.Format == "ndjson" {
			g.out = output.NewNDJSONWriter(g.Stdout)
		} else {
			g.out = output.NewTextWriter(g.Stdout)
		}
	})
	return g.out
}

// VersionCmd shows version information
type VersionCmd struct{}

// VersionOutput is the NDJSON form of VersionCmd
type VersionOutput struct {
	Type          string `json:"type"`
	SchemaVersion int    `json:"schemaVersion"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return globals.writer().Write(&VersionOutput{
			Type:          "version",
			SchemaVersion: output.SchemaVersion,
			Version:       Version,
			Commit:        Commit,
		})
	}
	return globals.writer().Write(&output.Info{Message: "dbgsync " + Version + " (" + Commit + ")"})
}
