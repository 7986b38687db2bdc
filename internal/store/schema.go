package store

// SchemaDDL defines the durable layout. The debug_client table is a fixed
// contract shared with the collaboration server: deleting a project row
// cascades to its clients.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS debug_client (
    id INTEGER NOT NULL,
    project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    session_id INTEGER NOT NULL,
    capabilities INTEGER NOT NULL,
    panel_item BLOB NOT NULL,
    PRIMARY KEY (id, project_id)
);

CREATE INDEX IF NOT EXISTS idx_debug_client_project_id ON debug_client(project_id);
`
