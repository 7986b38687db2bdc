package session

import (
	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/registry"
)

// Group answers questions about a session's members. It is a view derived
// from the registry on every call; nothing is cached.
type Group struct {
	reg *registry.Registry
}

// NewGroup creates a Group view over reg.
func NewGroup(reg *registry.Registry) *Group {
	return &Group{reg: reg}
}

// Members returns the session's records in registration order.
func (g *Group) Members(sid domain.SessionID) []*domain.DebugClient {
	return g.reg.FindBySession(sid)
}

// IsEmpty reports whether no client observes the session. An empty session
// is not a valid broadcast target.
func (g *Group) IsEmpty(sid domain.SessionID) bool {
	return len(g.Members(sid)) == 0
}

// Peers returns the members other than key.
func (g *Group) Peers(sid domain.SessionID, key domain.ClientKey) []*domain.DebugClient {
	return lo.Filter(g.Members(sid), func(c *domain.DebugClient, _ int) bool {
		return c.Key() != key
	})
}

// Negotiated returns the union of the members' capabilities: a session can
// perform an action if any attached client can. It is advisory only.
func (g *Group) Negotiated(sid domain.SessionID) domain.Capabilities {
	return Negotiate(g.Members(sid))
}

// CanInvoke reports whether the client itself holds every capability in
// want. A peer's capabilities never count.
func (g *Group) CanInvoke(key domain.ClientKey, want domain.Capabilities) bool {
	rec, ok := g.reg.Get(key)
	return ok && rec.Capabilities.Has(want)
}

// Projects returns the open project ids in ascending order.
func (g *Group) Projects() []domain.ProjectID {
	return g.reg.Projects()
}

// Clients returns a project's records in registration order.
func (g *Group) Clients(pid domain.ProjectID) []*domain.DebugClient {
	return g.reg.Project(pid)
}

// Client returns one record.
func (g *Group) Client(key domain.ClientKey) (*domain.DebugClient, bool) {
	return g.reg.Get(key)
}

// Sessions summarizes every live session of a project, ordered by the
// registration of each session's first member.
func (g *Group) Sessions(pid domain.ProjectID) []*domain.SessionSnapshot {
	clients := g.reg.Project(pid)
	bySession := lo.GroupBy(clients, func(c *domain.DebugClient) domain.SessionID {
		return c.SessionID
	})
	order := lo.Uniq(lo.Map(clients, func(c *domain.DebugClient, _ int) domain.SessionID {
		return c.SessionID
	}))
	return lo.Map(order, func(sid domain.SessionID, _ int) *domain.SessionSnapshot {
		members := bySession[sid]
		return &domain.SessionSnapshot{
			Type:          "session_snapshot",
			SchemaVersion: domain.SchemaVersion,
			ProjectID:     pid,
			SessionID:     sid,
			Members: lo.Map(members, func(c *domain.DebugClient, _ int) domain.ClientKey {
				return c.Key()
			}),
			Negotiated: Negotiate(members),
		}
	})
}

// Negotiate computes the session-level capability set of members.
func Negotiate(members []*domain.DebugClient) domain.Capabilities {
	return domain.UnionAll(lo.Map(members, func(c *domain.DebugClient, _ int) domain.Capabilities {
		return c.Capabilities
	}))
}
