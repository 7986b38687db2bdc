package domain

// SessionSnapshot describes one live session, as listed by `dbgsync sessions`.
type SessionSnapshot struct {
	Type          string       `json:"type"` // session_snapshot
	SchemaVersion int          `json:"schemaVersion"`
	ProjectID     ProjectID    `json:"project_id"`
	SessionID     SessionID    `json:"session_id"`
	Members       []ClientKey  `json:"members"`
	Negotiated    Capabilities `json:"negotiated_capabilities"`
}

// ClientSnapshot describes one registration, as listed by `dbgsync clients`.
type ClientSnapshot struct {
	Type          string       `json:"type"` // client_snapshot
	SchemaVersion int          `json:"schemaVersion"`
	Client        ClientKey    `json:"client"`
	SessionID     SessionID    `json:"session_id"`
	Capabilities  Capabilities `json:"capabilities"`
	PanelBytes    int          `json:"panel_bytes"`
}

// NewClientSnapshot summarizes c.
func NewClientSnapshot(c *DebugClient) *ClientSnapshot {
	return &ClientSnapshot{
		Type:          "client_snapshot",
		SchemaVersion: SchemaVersion,
		Client:        c.Key(),
		SessionID:     c.SessionID,
		Capabilities:  c.Capabilities,
		PanelBytes:    len(c.PanelItem),
	}
}
