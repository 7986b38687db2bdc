package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/filter"
	"github.com/vburojevic/dbgsync/internal/output"
	"github.com/vburojevic/dbgsync/internal/panel"
	"github.com/vburojevic/dbgsync/internal/registry"
	"github.com/vburojevic/dbgsync/internal/session"
)

// ClientFlags identify one debug client.
type ClientFlags struct {
	Client  uint64 `short:"c" required:"" help:"Client id"`
	Project uint32 `short:"p" required:"" help:"Project id"`
}

func (f ClientFlags) key() domain.ClientKey {
	return domain.ClientKey{ID: domain.ClientID(f.Client), ProjectID: domain.ProjectID(f.Project)}
}

// ProjectCmd groups project lifecycle commands
type ProjectCmd struct {
	Open   ProjectOpenCmd   `cmd:"" help:"Open a project so clients can attach"`
	Delete ProjectDeleteCmd `cmd:"" help:"Delete a project, evicting all of its clients"`
}

// ProjectOpenCmd opens a project
type ProjectOpenCmd struct {
	ID uint32 `arg:"" help:"Project id"`
}

// ProjectOutput reports a project transition
type ProjectOutput struct {
	Type          string             `json:"type"` // project_opened | project_deleted
	SchemaVersion int                `json:"schemaVersion"`
	ProjectID     domain.ProjectID   `json:"project_id"`
	Evicted       []domain.ClientKey `json:"evicted,omitempty"`
}

func (p *ProjectOutput) String() string {
	if p.Type == "project_deleted" {
		return fmt.Sprintf("project %d deleted, %d clients evicted", p.ProjectID, len(p.Evicted))
	}
	return fmt.Sprintf("project %d open", p.ProjectID)
}

// Run executes project open
func (c *ProjectOpenCmd) Run(globals *Globals) error {
	return withApp(globals, func(ctx context.Context, a *app) error {
		pid := domain.ProjectID(c.ID)
		if err := a.mgr.OpenProject(ctx, pid); err != nil {
			return err
		}
		return emit(globals, &ProjectOutput{Type: "project_opened", SchemaVersion: output.SchemaVersion, ProjectID: pid})
	})
}

// ProjectDeleteCmd deletes a project
type ProjectDeleteCmd struct {
	ID uint32 `arg:"" help:"Project id"`
}

// Run executes project delete
func (c *ProjectDeleteCmd) Run(globals *Globals) error {
	return withApp(globals, func(ctx context.Context, a *app) error {
		pid := domain.ProjectID(c.ID)
		removed, err := a.mgr.DeleteProject(ctx, pid)
		if err != nil {
			return err
		}
		return emit(globals, &ProjectOutput{
			Type:          "project_deleted",
			SchemaVersion: output.SchemaVersion,
			ProjectID:     pid,
			Evicted: lo.Map(removed, func(c *domain.DebugClient, _ int) domain.ClientKey {
				return c.Key()
			}),
		})
	})
}

// AttachCmd attaches a debug client
type AttachCmd struct {
	ClientFlags `embed:""`
	Session     uint64 `short:"s" required:"" help:"Debug session id"`
	Caps        string `default:"none" help:"Capabilities the client supports: all, none, or names like restart,modules"`
	Panel       string `help:"Initial panel state payload"`
	Scenario    string `type:"existingfile" help:"YAML debug scenario that started the session"`
	Open        bool   `help:"Open the project first"`
}

// Run executes the attach command
func (c *AttachCmd) Run(globals *Globals) error {
	caps, err := domain.ParseCapabilities(c.Caps)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_FLAGS", err.Error(), "see 'dbgsync caps --help' for capability names")
	}
	var scenario *domain.Scenario
	if c.Scenario != "" {
		if scenario, err = domain.LoadScenarioFile(c.Scenario); err != nil {
			return outputError(globals, err)
		}
	}

	return withApp(globals, func(ctx context.Context, a *app) error {
		if c.Open {
			if err := a.mgr.OpenProject(ctx, domain.ProjectID(c.Project)); err != nil {
				return err
			}
		}
		rec, err := a.mgr.Attach(ctx, session.AttachRequest{
			ClientID:     domain.ClientID(c.Client),
			ProjectID:    domain.ProjectID(c.Project),
			SessionID:    domain.SessionID(c.Session),
			Capabilities: caps,
			PanelItem:    []byte(c.Panel),
			Scenario:     scenario,
		})
		if err != nil {
			return err
		}
		return emit(globals, domain.NewClientSnapshot(rec))
	})
}

// DetachCmd detaches a client at its own request
type DetachCmd struct {
	ClientFlags `embed:""`
}

// Run executes the detach command
func (c *DetachCmd) Run(globals *Globals) error {
	return withApp(globals, func(ctx context.Context, a *app) error {
		return a.mgr.Detach(ctx, c.key())
	})
}

// DisconnectCmd reports a dropped connection
type DisconnectCmd struct {
	ClientFlags `embed:""`
}

// Run executes the disconnect command
func (c *DisconnectCmd) Run(globals *Globals) error {
	return withApp(globals, func(ctx context.Context, a *app) error {
		return a.mgr.Disconnect(ctx, c.key())
	})
}

// PanelCmd updates a client's panel state
type PanelCmd struct {
	ClientFlags `embed:""`
	Data        string   `xor:"source" help:"Replace the panel state with this raw payload"`
	File        string   `xor:"source" type:"existingfile" help:"Replace the panel state with this file's contents"`
	Toggle      []string `help:"Toggle a breakpoint at PATH:POSITION"`
	Log         []string `help:"Set a logpoint PATH:POSITION=MESSAGE, an empty message makes it a plain breakpoint"`
	View        string   `help:"Select the open panel view (variables, stack_frames, modules, loaded_sources, console)"`
	Watch       []string `help:"Add a watch expression"`
}

// PanelOutput reports an accepted panel update
type PanelOutput struct {
	Type          string             `json:"type"` // panel_updated
	SchemaVersion int                `json:"schemaVersion"`
	Client        domain.ClientKey   `json:"client"`
	Seq           uint64             `json:"seq"`
	Bytes         int                `json:"bytes"`
	Peers         []domain.ClientKey `json:"peers"`
}

func (p *PanelOutput) String() string {
	return fmt.Sprintf("panel of %s updated (seq %d, %d bytes) for %d peers", p.Client, p.Seq, p.Bytes, len(p.Peers))
}

func (c *PanelCmd) edits() bool {
	return len(c.Toggle) > 0 || len(c.Log) > 0 || c.View != "" || len(c.Watch) > 0
}

// payload builds the new panel bytes, either raw or by editing current.
func (c *PanelCmd) payload(current []byte) ([]byte, error) {
	switch {
	case c.Data != "":
		return []byte(c.Data), nil
	case c.File != "":
		return os.ReadFile(c.File)
	case !c.edits():
		return nil, fmt.Errorf("nothing to update: pass --data, --file or an edit flag")
	}

	item, err := panel.Decode(current)
	if err != nil {
		return nil, err
	}
	for _, spec := range c.Toggle {
		path, pos, err := parseLocation(spec)
		if err != nil {
			return nil, err
		}
		item.Toggle(path, pos)
	}
	for _, spec := range c.Log {
		loc, msg, _ := strings.Cut(spec, "=")
		path, pos, err := parseLocation(loc)
		if err != nil {
			return nil, err
		}
		item.SetLogMessage(path, pos, msg)
	}
	if c.View != "" {
		view := panel.View(c.View)
		if !lo.Contains(panel.Views, view) {
			return nil, fmt.Errorf("unknown panel view %q", c.View)
		}
		item.View = view
	}
	item.Watches = append(item.Watches, c.Watch...)
	return panel.Encode(item)
}

// parseLocation splits PATH:POSITION.
func parseLocation(spec string) (string, uint64, error) {
	i := strings.LastIndex(spec, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("breakpoint %q: want PATH:POSITION", spec)
	}
	pos, err := strconv.ParseUint(spec[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("breakpoint %q: bad position: %w", spec, err)
	}
	return spec[:i], pos, nil
}

// Run executes the panel command
func (c *PanelCmd) Run(globals *Globals) error {
	return withApp(globals, func(ctx context.Context, a *app) error {
		key := c.key()
		var current []byte
		if c.edits() {
			rec, ok := a.mgr.Group().Client(key)
			if !ok {
				return fmt.Errorf("%w: client %s", registry.ErrUnknownClient, key)
			}
			current = rec.PanelItem
		}
		data, err := c.payload(current)
		if err != nil {
			return err
		}
		u, err := a.mgr.UpdatePanel(ctx, key, data)
		if err != nil {
			return err
		}
		return emit(globals, &PanelOutput{
			Type:          "panel_updated",
			SchemaVersion: output.SchemaVersion,
			Client:        key,
			Seq:           u.Client.PanelSeq,
			Bytes:         len(u.Client.PanelItem),
			Peers:         u.PeerKeys(),
		})
	})
}

// CapsCmd shows, checks or lowers capabilities
type CapsCmd struct {
	ClientFlags `embed:""`
	Set         string `help:"Lower the client's capabilities to this list"`
	Check       string `help:"Report whether the client itself can invoke these capabilities"`
}

// CapsOutput describes a client's capabilities within its session
type CapsOutput struct {
	Type          string              `json:"type"` // capabilities
	SchemaVersion int                 `json:"schemaVersion"`
	Client        domain.ClientKey    `json:"client"`
	SessionID     domain.SessionID    `json:"session_id"`
	Capabilities  domain.Capabilities `json:"capabilities"`
	Names         []string            `json:"names"`
	Negotiated    domain.Capabilities `json:"negotiated_capabilities"`
	CanInvoke     *bool               `json:"can_invoke,omitempty"`
}

func (o *CapsOutput) String() string {
	line := fmt.Sprintf("%s session %d caps=%s negotiated=%s", o.Client, o.SessionID, o.Capabilities, o.Negotiated)
	if o.CanInvoke != nil {
		line += fmt.Sprintf(" can_invoke=%t", *o.CanInvoke)
	}
	return line
}

// Run executes the caps command
func (c *CapsCmd) Run(globals *Globals) error {
	var set, check domain.Capabilities
	var err error
	if c.Set != "" {
		if set, err = domain.ParseCapabilities(c.Set); err != nil {
			return outputErrorCommon(globals, "INVALID_FLAGS", err.Error())
		}
	}
	if c.Check != "" {
		if check, err = domain.ParseCapabilities(c.Check); err != nil {
			return outputErrorCommon(globals, "INVALID_FLAGS", err.Error())
		}
	}

	return withApp(globals, func(ctx context.Context, a *app) error {
		key := c.key()
		if c.Set != "" {
			if _, err := a.mgr.Renegotiate(ctx, key, set); err != nil {
				return err
			}
		}
		group := a.mgr.Group()
		rec, ok := group.Client(key)
		if !ok {
			return fmt.Errorf("%w: client %s", registry.ErrUnknownClient, key)
		}
		out := &CapsOutput{
			Type:          "capabilities",
			SchemaVersion: output.SchemaVersion,
			Client:        key,
			SessionID:     rec.SessionID,
			Capabilities:  rec.Capabilities,
			Names:         rec.Capabilities.Names(),
			Negotiated:    group.Negotiated(rec.SessionID),
		}
		if c.Check != "" {
			can := group.CanInvoke(key, check)
			out.CanInvoke = &can
		}
		return emit(globals, out)
	})
}

// ClientsCmd lists attached clients
type ClientsCmd struct {
	Project uint32   `short:"p" help:"Only this project (default: all)"`
	Where   []string `short:"w" help:"Filter clients: field op value, e.g. session=100, caps>=restart (fields: client, project, session, caps, panel_bytes)"`
}

// Run executes the clients command
func (c *ClientsCmd) Run(globals *Globals) error {
	where, err := filter.NewWhereFilter(c.Where)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_FLAGS", err.Error())
	}
	return withApp(globals, func(_ context.Context, a *app) error {
		group := a.mgr.Group()
		var clients []*domain.DebugClient
		for _, pid := range projectsFor(group, c.Project) {
			clients = append(clients, group.Clients(pid)...)
		}
		clients = where.Apply(clients)
		if globals.Format == "text" {
			return output.WriteClientTable(globals.Stdout, clients)
		}
		w := globals.writer()
		for _, rec := range clients {
			if err := w.Write(domain.NewClientSnapshot(rec)); err != nil {
				return err
			}
		}
		return nil
	})
}

// SessionsCmd lists live sessions
type SessionsCmd struct {
	Project uint32 `short:"p" help:"Only this project (default: all)"`
}

// Run executes the sessions command
func (c *SessionsCmd) Run(globals *Globals) error {
	return withApp(globals, func(_ context.Context, a *app) error {
		group := a.mgr.Group()
		var sessions []*domain.SessionSnapshot
		for _, pid := range projectsFor(group, c.Project) {
			sessions = append(sessions, group.Sessions(pid)...)
		}
		if globals.Format == "text" {
			return output.WriteSessionTable(globals.Stdout, sessions)
		}
		w := globals.writer()
		for _, s := range sessions {
			if err := w.Write(s); err != nil {
				return err
			}
		}
		return nil
	})
}

func projectsFor(group *session.Group, pid uint32) []domain.ProjectID {
	if pid != 0 {
		return []domain.ProjectID{domain.ProjectID(pid)}
	}
	return group.Projects()
}

// emit writes a command result unless --quiet.
func emit(globals *Globals, v any) error {
	if globals.Quiet {
		return nil
	}
	return globals.writer().Write(v)
}
