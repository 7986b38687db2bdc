package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/dbgsync/internal/config"
	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/registry"
	"github.com/vburojevic/dbgsync/internal/session"
)

// testGlobals creates a Globals struct with captured stdout/stderr and a
// throwaway state database.
func testGlobals(format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return &Globals{
		Format:  format,
		Level:   "info",
		Quiet:   false,
		Verbose: false,
		Store:   ":memory:",
		Stdout:  stdout,
		Stderr:  stderr,
		Config:  config.Default(),
	}, stdout, stderr
}

// storeRun runs commands one after another against a shared file database,
// each with fresh globals, like separate dbgsync invocations.
type storeRun struct {
	t    *testing.T
	path string
}

func newStoreRun(t *testing.T) *storeRun {
	return &storeRun{t: t, path: filepath.Join(t.TempDir(), "state", "dbgsync.db")}
}

func (r *storeRun) globals(format string) (*Globals, *bytes.Buffer, *bytes.Buffer) {
	g, stdout, stderr := testGlobals(format)
	g.Store = r.path
	return g, stdout, stderr
}

// run executes cmd and returns its NDJSON lines.
func (r *storeRun) run(cmd interface{ Run(*Globals) error }) ([]map[string]interface{}, error) {
	r.t.Helper()
	g, stdout, _ := r.globals("ndjson")
	err := cmd.Run(g)
	return decodeLines(r.t, stdout), err
}

func (r *storeRun) mustRun(cmd interface{ Run(*Globals) error }) []map[string]interface{} {
	r.t.Helper()
	lines, err := r.run(cmd)
	require.NoError(r.t, err)
	return lines
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]interface{}
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func ofType(lines []map[string]interface{}, typ string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, l := range lines {
		if l["type"] == typ {
			out = append(out, l)
		}
	}
	return out
}

func clientFlags(id uint64, pid uint32) ClientFlags {
	return ClientFlags{Client: id, Project: pid}
}

// --- Lifecycle Command Tests ---

func TestLifecycleCommands(t *testing.T) {
	r := newStoreRun(t)

	lines := r.mustRun(&ProjectOpenCmd{ID: 10})
	require.Len(t, lines, 1)
	assert.Equal(t, "project_opened", lines[0]["type"])

	lines = r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "restart"})
	require.Len(t, ofType(lines, "session_started"), 1)
	snap := ofType(lines, "client_snapshot")
	require.Len(t, snap, 1)
	assert.EqualValues(t, domain.CapRestart, snap[0]["capabilities"])

	lines = r.mustRun(&AttachCmd{ClientFlags: clientFlags(2, 10), Session: 100, Caps: "modules"})
	assert.Empty(t, ofType(lines, "session_started"))
	changed := ofType(lines, "membership_changed")
	require.Len(t, changed, 1)
	assert.EqualValues(t, domain.CapRestart|domain.CapModules, changed[0]["negotiated_capabilities"])
	// both members receive the roster
	assert.Len(t, ofType(lines, "delivery"), 2)

	lines = r.mustRun(&PanelCmd{ClientFlags: clientFlags(1, 10), Toggle: []string{"src/main.go:5"}, Log: []string{"src/lib.go:9=x is {x}"}})
	updated := ofType(lines, "panel_updated")
	require.Len(t, updated, 1)
	assert.EqualValues(t, 1, updated[0]["seq"])
	deliveries := ofType(lines, "delivery")
	require.Len(t, deliveries, 1)
	assert.Equal(t, "panel_update", deliveries[0]["kind"])
	to := deliveries[0]["to"].(map[string]interface{})
	assert.EqualValues(t, 2, to["client_id"])

	// edits build on the stored state
	r.mustRun(&PanelCmd{ClientFlags: clientFlags(1, 10), Toggle: []string{"src/main.go:5"}})

	lines = r.mustRun(&SessionsCmd{})
	sessions := ofType(lines, "session_snapshot")
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0]["members"], 2)

	lines = r.mustRun(&DetachCmd{ClientFlags: clientFlags(1, 10)})
	changed = ofType(lines, "membership_changed")
	require.Len(t, changed, 1)
	assert.Equal(t, "detach", changed[0]["reason"])

	_, err := r.run(&DetachCmd{ClientFlags: clientFlags(1, 10)})
	assert.ErrorIs(t, err, registry.ErrNotFound)
	r.mustRun(&DisconnectCmd{ClientFlags: clientFlags(1, 10)})

	lines = r.mustRun(&DisconnectCmd{ClientFlags: clientFlags(2, 10)})
	gone := ofType(lines, "session_observerless")
	require.Len(t, gone, 1)
	assert.Equal(t, "disconnect", gone[0]["reason"])

	lines = r.mustRun(&ClientsCmd{})
	assert.Empty(t, lines)
}

func TestProjectDeleteCommand(t *testing.T) {
	r := newStoreRun(t)
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "all", Open: true})
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(2, 10), Session: 200, Caps: "none"})

	lines := r.mustRun(&ProjectDeleteCmd{ID: 10})
	assert.Len(t, ofType(lines, "session_observerless"), 2)
	deleted := ofType(lines, "project_deleted")
	require.Len(t, deleted, 1)
	assert.Len(t, deleted[0]["evicted"], 2)

	lines, err := r.run(&AttachCmd{ClientFlags: clientFlags(3, 10), Session: 100, Caps: "none"})
	assert.ErrorIs(t, err, registry.ErrProjectGone)
	errs := ofType(lines, "error")
	require.Len(t, errs, 1)
	assert.Equal(t, "PROJECT_GONE", errs[0]["code"])
}

func TestAttachErrors(t *testing.T) {
	r := newStoreRun(t)
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Open: true, Caps: "none"})

	lines, err := r.run(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "none"})
	assert.ErrorIs(t, err, registry.ErrDuplicateClient)
	assert.Equal(t, "DUPLICATE_CLIENT", ofType(lines, "error")[0]["code"])

	lines, err = r.run(&AttachCmd{ClientFlags: clientFlags(2, 10), Session: 100, Caps: "teleport"})
	assert.Error(t, err)
	assert.Equal(t, "INVALID_FLAGS", ofType(lines, "error")[0]["code"])

	scenario := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte("label: x\nadapter: cobol\n"), 0o644))
	lines, err = r.run(&AttachCmd{ClientFlags: clientFlags(2, 10), Session: 100, Caps: "none", Scenario: scenario})
	assert.ErrorIs(t, err, domain.ErrInvalidScenario)
	assert.Equal(t, "INVALID_SCENARIO", ofType(lines, "error")[0]["code"])
}

func TestAttachWithScenario(t *testing.T) {
	r := newStoreRun(t)
	scenario := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte("label: node\nadapter: javascript\nrequest: attach\n"), 0o644))

	lines := r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "none", Scenario: scenario, Open: true})
	started := ofType(lines, "session_started")
	require.Len(t, started, 1)
	sc := started[0]["scenario"].(map[string]interface{})
	assert.Equal(t, "node", sc["label"])
	assert.Equal(t, "attach", sc["request"])
}

func TestPanelErrors(t *testing.T) {
	r := newStoreRun(t)

	lines, err := r.run(&PanelCmd{ClientFlags: clientFlags(9, 10), Data: "x"})
	assert.ErrorIs(t, err, registry.ErrUnknownClient)
	assert.Equal(t, "UNKNOWN_CLIENT", ofType(lines, "error")[0]["code"])

	r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "none", Open: true, Panel: "opaque"})
	_, err = r.run(&PanelCmd{ClientFlags: clientFlags(1, 10), Toggle: []string{"a.go:1"}})
	assert.Error(t, err, "raw payloads cannot be edited")

	_, err = r.run(&PanelCmd{ClientFlags: clientFlags(1, 10)})
	assert.Error(t, err)

	_, err = r.run(&PanelCmd{ClientFlags: clientFlags(1, 10), Data: `{"v":1}`, View: "debugger"})
	assert.NoError(t, err, "raw data ignores edit flags")
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		input string
		path  string
		pos   uint64
		err   bool
	}{
		{"main.go:12", "main.go", 12, false},
		{"C:/src/main.go:3", "C:/src/main.go", 3, false},
		{"main.go", "", 0, true},
		{":4", "", 0, true},
		{"main.go:x", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			path, pos, err := parseLocation(tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.pos, pos)
		})
	}
}

// --- Capability Command Tests ---

func TestCapsCmd_Run(t *testing.T) {
	r := newStoreRun(t)
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "restart,modules", Open: true})
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(2, 10), Session: 100, Caps: "step_back"})

	lines := r.mustRun(&CapsCmd{ClientFlags: clientFlags(1, 10), Check: "step_back"})
	caps := ofType(lines, "capabilities")
	require.Len(t, caps, 1)
	assert.Equal(t, false, caps[0]["can_invoke"], "a peer's capability does not count")
	assert.EqualValues(t, domain.CapRestart|domain.CapModules|domain.CapStepBack, caps[0]["negotiated_capabilities"])

	lines = r.mustRun(&CapsCmd{ClientFlags: clientFlags(1, 10), Set: "modules"})
	changed := ofType(lines, "membership_changed")
	require.Len(t, changed, 1)
	assert.Equal(t, "renegotiate", changed[0]["reason"])
	caps = ofType(lines, "capabilities")
	assert.Equal(t, []interface{}{"modules"}, caps[0]["names"])

	lines, err := r.run(&CapsCmd{ClientFlags: clientFlags(1, 10), Set: "restart"})
	assert.ErrorIs(t, err, registry.ErrCapabilityEscalation)
	assert.Equal(t, "CAPABILITY_ESCALATION", ofType(lines, "error")[0]["code"])
}

// --- Listing Command Tests ---

func TestClientsCmd_Text(t *testing.T) {
	r := newStoreRun(t)
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "restart", Open: true})
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(7, 11), Session: 300, Caps: "none", Open: true})

	g, stdout, _ := r.globals("text")
	require.NoError(t, (&ClientsCmd{Project: 11}).Run(g))
	out := stdout.String()
	assert.Contains(t, out, "300")
	assert.NotContains(t, out, "restart")

	g, stdout, _ = r.globals("text")
	require.NoError(t, (&SessionsCmd{}).Run(g))
	assert.Contains(t, stdout.String(), "1@10")
	assert.Contains(t, stdout.String(), "7@11")
}

func TestClientsCmd_Where(t *testing.T) {
	r := newStoreRun(t)
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "restart", Open: true})
	r.mustRun(&AttachCmd{ClientFlags: clientFlags(2, 10), Session: 100, Caps: "modules"})

	lines := r.mustRun(&ClientsCmd{Where: []string{"caps>=restart"}})
	require.Len(t, lines, 1)
	assert.EqualValues(t, 1, lines[0]["client"].(map[string]interface{})["client_id"])

	lines, err := r.run(&ClientsCmd{Where: []string{"nickname=bob"}})
	assert.Error(t, err)
	assert.Equal(t, "INVALID_FLAGS", ofType(lines, "error")[0]["code"])
}

func TestQuietSuppressesEvents(t *testing.T) {
	r := newStoreRun(t)
	g, stdout, _ := r.globals("ndjson")
	g.Quiet = true
	require.NoError(t, (&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "none", Open: true}).Run(g))
	assert.Empty(t, stdout.String())
}

func TestTextEvents(t *testing.T) {
	r := newStoreRun(t)
	g, stdout, _ := r.globals("text")
	require.NoError(t, (&AttachCmd{ClientFlags: clientFlags(1, 10), Session: 100, Caps: "none", Open: true}).Run(g))
	assert.Contains(t, stdout.String(), "STARTED session 100 in project 10 by 1@10")

	g, _, stderr := r.globals("text")
	require.Error(t, (&DetachCmd{ClientFlags: clientFlags(5, 10)}).Run(g))
	assert.Contains(t, stderr.String(), "Error [NOT_FOUND]")
}

// --- Schema Command Tests ---

func TestSchemaCmd_Run(t *testing.T) {
	t.Run("outputs all schemas by default", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		require.NoError(t, (&SchemaCmd{}).Run(globals))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "http://json-schema.org/draft-07/schema#", result["$schema"])
		defs := result["definitions"].(map[string]interface{})
		for _, typ := range schemaTypes {
			assert.Contains(t, defs, typ)
		}
	})

	t.Run("filters schemas by type", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		require.NoError(t, (&SchemaCmd{Type: []string{"panel_update", "error"}}).Run(globals))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		defs := result["definitions"].(map[string]interface{})
		assert.Len(t, defs, 2)
		assert.NotContains(t, defs, "delivery")
	})

	t.Run("rejects unknown types", func(t *testing.T) {
		globals, _, _ := testGlobals("ndjson")
		assert.Error(t, (&SchemaCmd{Type: []string{"log"}}).Run(globals))
	})

	t.Run("prints SQL", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		require.NoError(t, (&SchemaCmd{SQL: true}).Run(globals))
		assert.Contains(t, stdout.String(), "ON DELETE CASCADE")
		assert.Contains(t, stdout.String(), "PRIMARY KEY (id, project_id)")
	})
}

// --- Config Command Tests ---

func TestConfigShowCmd_Run(t *testing.T) {
	t.Run("outputs config in text format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("text")
		require.NoError(t, (&ConfigShowCmd{}).Run(globals))

		output := stdout.String()
		assert.Contains(t, output, "Current Configuration:")
		assert.Contains(t, output, "store: :memory:")
		assert.Contains(t, output, "max_attempts: 3")
	})

	t.Run("outputs config in NDJSON format", func(t *testing.T) {
		globals, stdout, _ := testGlobals("ndjson")
		require.NoError(t, (&ConfigShowCmd{}).Run(globals))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
		assert.Equal(t, "config", result["type"])
		assert.Equal(t, "100ms", result["relay"].(map[string]interface{})["retry_backoff"])
	})
}

func TestConfigPathCmd_Run(t *testing.T) {
	globals, stdout, _ := testGlobals("text")
	require.NoError(t, (&ConfigPathCmd{}).Run(globals))
	output := stdout.String()
	assert.True(t, strings.Contains(output, "Config file:") || strings.Contains(output, "No configuration file found"))

	globals, stdout, _ = testGlobals("ndjson")
	require.NoError(t, (&ConfigPathCmd{}).Run(globals))
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	assert.Equal(t, "config_path", result["type"])
}

func TestConfigGenerateCmd_Run(t *testing.T) {
	globals, stdout, _ := testGlobals("text")
	require.NoError(t, (&ConfigGenerateCmd{}).Run(globals))

	cfg := filepath.Join(t.TempDir(), "dbgsync.yaml")
	require.NoError(t, os.WriteFile(cfg, stdout.Bytes(), 0o644))
	loaded, err := config.LoadFromFile(cfg)
	require.NoError(t, err)
	assert.Equal(t, 256, loaded.Relay.OutboxLimit)
}

// --- Error Mapping Tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: client 1@10", registry.ErrDuplicateClient), "DUPLICATE_CLIENT"},
		{fmt.Errorf("%w: client 1@10", registry.ErrNotFound), "NOT_FOUND"},
		{fmt.Errorf("%w: client 1@10", registry.ErrUnknownClient), "UNKNOWN_CLIENT"},
		{fmt.Errorf("%w: project 10", registry.ErrProjectGone), "PROJECT_GONE"},
		{fmt.Errorf("%w: disk full", session.ErrPersist), "PERSIST_FAILED"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			code, _ := classify(tt.err)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestNewLogger(t *testing.T) {
	globals, _, stderr := testGlobals("ndjson")
	newLogger(globals).Info("hidden")
	assert.Empty(t, stderr.String())

	globals.Verbose = true
	globals.Level = "debug"
	newLogger(globals).Debug("shown")
	assert.Contains(t, stderr.String(), `"msg":"shown"`)
	assert.Contains(t, stderr.String(), `"logger":"dbgsync"`)
}
