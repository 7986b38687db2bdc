package domain

import "time"

// SchemaVersion of every emitted event.
const SchemaVersion = 1

// Membership change reasons.
const (
	ReasonAttach        = "attach"
	ReasonDetach        = "detach"
	ReasonDisconnect    = "disconnect"
	ReasonProjectDelete = "project_deleted"
	ReasonRenegotiate   = "renegotiate"
)

// SessionStarted is emitted when the first client attaches to a session.
type SessionStarted struct {
	Type          string    `json:"type"` // "session_started"
	SchemaVersion int       `json:"schemaVersion"`
	ProjectID     ProjectID `json:"project_id"`
	SessionID     SessionID `json:"session_id"`
	Client        ClientKey `json:"client"`
	Scenario      *Scenario `json:"scenario,omitempty"`
	Timestamp     string    `json:"timestamp"`
}

// MembershipChanged is emitted to the remaining members whenever a session
// gains or loses a client, or a member's capabilities change.
type MembershipChanged struct {
	Type          string       `json:"type"` // "membership_changed"
	SchemaVersion int          `json:"schemaVersion"`
	ProjectID     ProjectID    `json:"project_id"`
	SessionID     SessionID    `json:"session_id"`
	Reason        string       `json:"reason"`
	Client        ClientKey    `json:"client"`  // the client that joined, left or renegotiated
	Members       []ClientKey  `json:"members"` // current members in registration order
	Negotiated    Capabilities `json:"negotiated_capabilities"`
	Timestamp     string       `json:"timestamp"`
}

// SessionObserverless is emitted once the last client leaves a session so the
// adapter can be detached or terminated.
type SessionObserverless struct {
	Type          string    `json:"type"` // "session_observerless"
	SchemaVersion int       `json:"schemaVersion"`
	ProjectID     ProjectID `json:"project_id"`
	SessionID     SessionID `json:"session_id"`
	Reason        string    `json:"reason"`
	LastClient    ClientKey `json:"last_client"`
	Timestamp     string    `json:"timestamp"`
}

// PanelUpdate carries one client's new panel state to one peer.
type PanelUpdate struct {
	Type          string    `json:"type"` // "panel_update"
	SchemaVersion int       `json:"schemaVersion"`
	MessageID     string    `json:"message_id"`
	ProjectID     ProjectID `json:"project_id"`
	SessionID     SessionID `json:"session_id"`
	From          ClientKey `json:"from"`
	To            ClientKey `json:"to"`
	Seq           uint64    `json:"seq"`
	PanelItem     []byte    `json:"panel_item"`
}

// NewSessionStarted creates a SessionStarted event.
func NewSessionStarted(client *DebugClient, scenario *Scenario, now time.Time) *SessionStarted {
	return &SessionStarted{
		Type:          "session_started",
		SchemaVersion: SchemaVersion,
		ProjectID:     client.ProjectID,
		SessionID:     client.SessionID,
		Client:        client.Key(),
		Scenario:      scenario,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
}

// NewMembershipChanged creates a MembershipChanged event.
func NewMembershipChanged(project ProjectID, session SessionID, reason string, client ClientKey, members []ClientKey, negotiated Capabilities, now time.Time) *MembershipChanged {
	if members == nil {
		members = []ClientKey{}
	}
	return &MembershipChanged{
		Type:          "membership_changed",
		SchemaVersion: SchemaVersion,
		ProjectID:     project,
		SessionID:     session,
		Reason:        reason,
		Client:        client,
		Members:       members,
		Negotiated:    negotiated,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
}

// NewSessionObserverless creates a SessionObserverless event.
func NewSessionObserverless(last ClientKey, session SessionID, reason string, now time.Time) *SessionObserverless {
	return &SessionObserverless{
		Type:          "session_observerless",
		SchemaVersion: SchemaVersion,
		ProjectID:     last.ProjectID,
		SessionID:     session,
		Reason:        reason,
		LastClient:    last,
		Timestamp:     now.UTC().Format(time.RFC3339),
	}
}
