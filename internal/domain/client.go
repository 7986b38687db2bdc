package domain

import (
	"fmt"
	"time"
)

// ClientID identifies one registration of a participant. It is not the
// participant's identity.
type ClientID uint64

// ProjectID identifies a shared collaborative project.
type ProjectID uint32

// SessionID identifies a logical debug session, possibly observed by many clients.
type SessionID uint64

// ClientKey is the primary key of a DebugClient.
type ClientKey struct {
	ID        ClientID  `json:"client_id"`
	ProjectID ProjectID `json:"project_id"`
}

func (k ClientKey) String() string {
	return fmt.Sprintf("%d@%d", k.ID, k.ProjectID)
}

// DebugClient is one participant attached to a debug session within a project.
type DebugClient struct {
	ID           ClientID     `json:"client_id"`
	ProjectID    ProjectID    `json:"project_id"`
	SessionID    SessionID    `json:"session_id"`
	Capabilities Capabilities `json:"capabilities"`
	// PanelItem is the client's last-known debug panel state, never interpreted here.
	PanelItem []byte `json:"panel_item,omitempty"`

	Seq          uint64    `json:"seq"`       // registration order
	PanelSeq     uint64    `json:"panel_seq"` // panel updates applied so far
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Key returns the record's primary key.
func (c *DebugClient) Key() ClientKey {
	return ClientKey{ID: c.ID, ProjectID: c.ProjectID}
}

// Clone returns a deep copy, including the panel blob.
func (c *DebugClient) Clone() *DebugClient {
	if c == nil {
		return nil
	}
	out := *c
	if c.PanelItem != nil {
		out.PanelItem = append([]byte(nil), c.PanelItem...)
	}
	return &out
}
