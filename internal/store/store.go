// Package store persists debug client registrations in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vburojevic/dbgsync/internal/domain"

	_ "modernc.org/sqlite"
)

// Store mirrors the registry into a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path, enables foreign
// keys, WAL and a busy timeout, and applies the schema. Use ":memory:" for
// a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Pragmas are per connection and an in-memory database is per connection too.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s on %s: %w", pragma, path, err)
		}
	}
	if _, err := db.ExecContext(ctx, SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema to %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenProject records a live project. Opening twice is a no-op.
func (s *Store) OpenProject(ctx context.Context, pid domain.ProjectID) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO projects (id) VALUES (?)`, int64(pid))
	return err
}

// DeleteProject removes a project; its clients go with it.
func (s *Store) DeleteProject(ctx context.Context, pid domain.ProjectID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, int64(pid))
	return err
}

// InsertClient stores a new registration. It fails if the project row is gone.
func (s *Store) InsertClient(ctx context.Context, c *domain.DebugClient) error {
	item := c.PanelItem
	if item == nil {
		item = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO debug_client (id, project_id, session_id, capabilities, panel_item) VALUES (?, ?, ?, ?, ?)`,
		int64(c.ID), int64(c.ProjectID), int64(c.SessionID), int64(c.Capabilities), item)
	return err
}

// DeleteClient removes a registration. Deleting a missing row is not an error.
func (s *Store) DeleteClient(ctx context.Context, key domain.ClientKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM debug_client WHERE id = ? AND project_id = ?`, int64(key.ID), int64(key.ProjectID))
	return err
}

// UpdatePanel replaces a client's panel blob.
func (s *Store) UpdatePanel(ctx context.Context, key domain.ClientKey, item []byte) error {
	if item == nil {
		item = []byte{}
	}
	return s.updateOne(ctx,
		`UPDATE debug_client SET panel_item = ? WHERE id = ? AND project_id = ?`,
		key, item, int64(key.ID), int64(key.ProjectID))
}

// UpdateCapabilities replaces a client's capability mask.
func (s *Store) UpdateCapabilities(ctx context.Context, key domain.ClientKey, caps domain.Capabilities) error {
	return s.updateOne(ctx,
		`UPDATE debug_client SET capabilities = ? WHERE id = ? AND project_id = ?`,
		key, int64(caps), int64(key.ID), int64(key.ProjectID))
}

func (s *Store) updateOne(ctx context.Context, query string, key domain.ClientKey, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("client %s: %d rows updated", key, n)
	}
	return nil
}

// Load returns every project and every client, clients in insertion order.
func (s *Store) Load(ctx context.Context) ([]domain.ProjectID, []*domain.DebugClient, error) {
	projects, err := s.projects(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, session_id, capabilities, panel_item FROM debug_client ORDER BY rowid`)
	if err != nil {
		return nil, nil, fmt.Errorf("query debug clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []*domain.DebugClient
	for rows.Next() {
		var id, pid, sid, caps int64
		var item []byte
		if err := rows.Scan(&id, &pid, &sid, &caps, &item); err != nil {
			return nil, nil, fmt.Errorf("scan debug client: %w", err)
		}
		if item == nil {
			item = []byte{}
		}
		clients = append(clients, &domain.DebugClient{
			ID:           domain.ClientID(id),
			ProjectID:    domain.ProjectID(pid),
			SessionID:    domain.SessionID(sid),
			Capabilities: domain.Capabilities(caps),
			PanelItem:    item,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate debug clients: %w", err)
	}
	return projects, clients, nil
}

func (s *Store) projects(ctx context.Context) ([]domain.ProjectID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ProjectID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, domain.ProjectID(id))
	}
	return out, rows.Err()
}
