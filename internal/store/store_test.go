package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/registry"
	"github.com/vburojevic/dbgsync/internal/session"
)

var _ session.Persister = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSchemaCreatesExpectedTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"projects", "debug_client"} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
	var idx string
	require.NoError(t, s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_debug_client_project_id'`).Scan(&idx))
}

func TestInsertAndLoadPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.OpenProject(ctx, 11))
	require.NoError(t, s.OpenProject(ctx, 10))
	require.NoError(t, s.OpenProject(ctx, 10))

	for _, c := range []*domain.DebugClient{
		{ID: 9, ProjectID: 10, SessionID: 100, Capabilities: domain.CapRestart},
		{ID: 2, ProjectID: 11, SessionID: 200, PanelItem: []byte("bp@line5")},
		{ID: 5, ProjectID: 10, SessionID: 100, Capabilities: domain.CapAll},
	} {
		require.NoError(t, s.InsertClient(ctx, c))
	}

	projects, clients, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProjectID{10, 11}, projects)
	require.Len(t, clients, 3)
	assert.Equal(t, domain.ClientID(9), clients[0].ID)
	assert.Equal(t, domain.CapRestart, clients[0].Capabilities)
	assert.Equal(t, []byte{}, clients[0].PanelItem)
	assert.Equal(t, "bp@line5", string(clients[1].PanelItem))
	assert.Equal(t, domain.CapAll, clients[2].Capabilities)
}

func TestDuplicatePrimaryKeyRejected(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.OpenProject(ctx, 10))
	require.NoError(t, s.InsertClient(ctx, &domain.DebugClient{ID: 1, ProjectID: 10, SessionID: 100}))
	assert.Error(t, s.InsertClient(ctx, &domain.DebugClient{ID: 1, ProjectID: 10, SessionID: 101}))
}

func TestInsertRequiresLiveProject(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	assert.Error(t, s.InsertClient(ctx, &domain.DebugClient{ID: 1, ProjectID: 10, SessionID: 100}))
}

func TestDeleteProjectCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.OpenProject(ctx, 10))
	require.NoError(t, s.OpenProject(ctx, 11))
	require.NoError(t, s.InsertClient(ctx, &domain.DebugClient{ID: 1, ProjectID: 10, SessionID: 100}))
	require.NoError(t, s.InsertClient(ctx, &domain.DebugClient{ID: 2, ProjectID: 10, SessionID: 100}))
	require.NoError(t, s.InsertClient(ctx, &domain.DebugClient{ID: 3, ProjectID: 11, SessionID: 200}))

	require.NoError(t, s.DeleteProject(ctx, 10))

	projects, clients, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProjectID{11}, projects)
	require.Len(t, clients, 1)
	assert.Equal(t, domain.ProjectID(11), clients[0].ProjectID)
}

func TestUpdates(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := domain.ClientKey{ID: 1, ProjectID: 10}
	require.NoError(t, s.OpenProject(ctx, 10))
	require.NoError(t, s.InsertClient(ctx, &domain.DebugClient{ID: 1, ProjectID: 10, SessionID: 100, Capabilities: domain.CapAll}))

	require.NoError(t, s.UpdatePanel(ctx, key, []byte{0x00, 0xff, 0x10}))
	require.NoError(t, s.UpdateCapabilities(ctx, key, domain.CapRestart))

	_, clients, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, clients[0].PanelItem)
	assert.Equal(t, domain.CapRestart, clients[0].Capabilities)

	missing := domain.ClientKey{ID: 2, ProjectID: 10}
	assert.Error(t, s.UpdatePanel(ctx, missing, []byte("x")))
	assert.Error(t, s.UpdateCapabilities(ctx, missing, 0))

	require.NoError(t, s.DeleteClient(ctx, key))
	require.NoError(t, s.DeleteClient(ctx, key))
	_, clients, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)
}

func TestReopenFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dbgsync.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.OpenProject(ctx, 10))
	require.NoError(t, s.InsertClient(ctx, &domain.DebugClient{ID: 1, ProjectID: 10, SessionID: 100, PanelItem: []byte("state")}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	projects, clients, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProjectID{10}, projects)
	require.Len(t, clients, 1)
	assert.Equal(t, "state", string(clients[0].PanelItem))
}

// The manager restored from a store sees the same sessions it persisted.
func TestManagerRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dbgsync.db")
	s, err := Open(ctx, path)
	require.NoError(t, err)

	mgr := session.NewManager(registry.New(), nil, session.WithPersister(s))
	require.NoError(t, mgr.OpenProject(ctx, 10))
	_, err = mgr.Attach(ctx, session.AttachRequest{ClientID: 1, ProjectID: 10, SessionID: 100, Capabilities: 0b001})
	require.NoError(t, err)
	_, err = mgr.Attach(ctx, session.AttachRequest{ClientID: 2, ProjectID: 10, SessionID: 100, Capabilities: 0b010})
	require.NoError(t, err)
	_, err = mgr.UpdatePanel(ctx, domain.ClientKey{ID: 1, ProjectID: 10}, []byte("bp@line5"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	projects, clients, err := s.Load(ctx)
	require.NoError(t, err)

	restored := session.NewManager(registry.New(), nil, session.WithPersister(s))
	require.NoError(t, restored.Restore(projects, clients))
	members := restored.Group().Members(100)
	require.Len(t, members, 2)
	assert.Equal(t, domain.ClientID(1), members[0].ID)
	assert.Equal(t, "bp@line5", string(members[0].PanelItem))
	assert.Equal(t, domain.Capabilities(0b011), restored.Group().Negotiated(100))

	_, err = restored.DeleteProject(ctx, 10)
	require.NoError(t, err)
	_, clients, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)
}
