// Package registry owns the live set of debug client records. Records are
// partitioned by project and every mutation of a project's records runs under
// that project's lock only, so unrelated projects never contend.
package registry

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/domain"
)

// Membership is a session's member list observed atomically with one mutation.
type Membership struct {
	SessionID domain.SessionID
	// Client is the record that was added, removed or updated.
	Client *domain.DebugClient
	// Members are the session's records after the mutation, in registration order.
	Members []*domain.DebugClient
}

// Peers returns the members other than Client.
func (m Membership) Peers() []*domain.DebugClient {
	if m.Client == nil {
		return m.Members
	}
	key := m.Client.Key()
	return lo.Filter(m.Members, func(c *domain.DebugClient, _ int) bool {
		return c.Key() != key
	})
}

// Keys returns the member keys in order.
func (m Membership) Keys() []domain.ClientKey {
	return lo.Map(m.Members, func(c *domain.DebugClient, _ int) domain.ClientKey {
		return c.Key()
	})
}

// Capabilities returns the member capability masks in order.
func (m Membership) Capabilities() []domain.Capabilities {
	return lo.Map(m.Members, func(c *domain.DebugClient, _ int) domain.Capabilities {
		return c.Capabilities
	})
}

type partition struct {
	mu sync.Mutex
	id domain.ProjectID
	// gone is set under mu once the partition is evicted. Other partitions
	// read it without mu when deciding whether a session owner is stale.
	gone     atomic.Bool
	clients  map[domain.ClientID]*domain.DebugClient
	sessions map[domain.SessionID]map[domain.ClientID]struct{}
}

func newPartition(id domain.ProjectID) *partition {
	return &partition{
		id:       id,
		clients:  make(map[domain.ClientID]*domain.DebugClient),
		sessions: make(map[domain.SessionID]map[domain.ClientID]struct{}),
	}
}

// members returns clones of a session's records ordered by registration. Caller holds p.mu.
func (p *partition) members(sid domain.SessionID) []*domain.DebugClient {
	ids := p.sessions[sid]
	out := make([]*domain.DebugClient, 0, len(ids))
	for id := range ids {
		rec := p.clients[id]
		invariant(rec != nil, "session %d indexes missing client %d in project %d", sid, id, p.id)
		invariant(rec.SessionID == sid, "client %d indexed under session %d but holds %d", id, sid, rec.SessionID)
		out = append(out, rec.Clone())
	}
	sortBySeq(out)
	return out
}

func sortBySeq(recs []*domain.DebugClient) {
	slices.SortFunc(recs, func(a, b *domain.DebugClient) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}

// Registry is the single source of truth for which clients are attached to
// which debug sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	projects map[domain.ProjectID]*partition

	// sessionOwners maps SessionID to the *partition that owns it. Entries are
	// claimed and released only under the owning partition's lock, and
	// released by pointer so a reopened project's claim is never dropped by
	// its evicted predecessor.
	sessionOwners sync.Map

	seq   atomic.Uint64
	clock clock.Clock
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for record timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		projects: make(map[domain.ProjectID]*partition),
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenProject marks a project live so clients may register against it.
// Opening an already open project is a no-op.
func (r *Registry) OpenProject(pid domain.ProjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[pid]; !ok {
		r.projects[pid] = newPartition(pid)
	}
}

// Projects returns the open project ids in ascending order.
func (r *Registry) Projects() []domain.ProjectID {
	r.mu.RLock()
	ids := lo.Keys(r.projects)
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *Registry) partition(pid domain.ProjectID) *partition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.projects[pid]
}

// Register inserts a new record and returns the session membership including it.
func (r *Registry) Register(rec domain.DebugClient) (Membership, error) {
	key := rec.Key()
	if !rec.Capabilities.Valid() {
		return Membership{}, fmt.Errorf("%w: client %s: %#x", ErrInvalidCapabilities, key, uint32(rec.Capabilities))
	}
	p := r.partition(rec.ProjectID)
	if p == nil {
		return Membership{}, fmt.Errorf("%w: project %d", ErrProjectGone, rec.ProjectID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// The partition may have been evicted between lookup and lock.
	if p.gone.Load() {
		return Membership{}, fmt.Errorf("%w: project %d", ErrProjectGone, rec.ProjectID)
	}
	if _, ok := p.clients[rec.ID]; ok {
		return Membership{}, fmt.Errorf("%w: client %s", ErrDuplicateClient, key)
	}
	if err := r.claimSession(p, rec.SessionID); err != nil {
		return Membership{}, err
	}

	now := r.clock.Now()
	stored := rec.Clone()
	stored.Seq = r.seq.Add(1)
	stored.PanelSeq = 0
	stored.RegisteredAt = now
	stored.UpdatedAt = now
	if stored.PanelItem == nil {
		stored.PanelItem = []byte{}
	}
	p.clients[rec.ID] = stored
	if p.sessions[rec.SessionID] == nil {
		p.sessions[rec.SessionID] = make(map[domain.ClientID]struct{})
	}
	p.sessions[rec.SessionID][rec.ID] = struct{}{}

	return Membership{
		SessionID: rec.SessionID,
		Client:    stored.Clone(),
		Members:   p.members(rec.SessionID),
	}, nil
}

// claimSession makes p the owner of sid. An owner that was evicted, or that
// was replaced in the project map by p, is stale and gets taken over.
// Caller holds p.mu.
func (r *Registry) claimSession(p *partition, sid domain.SessionID) error {
	for {
		cur, loaded := r.sessionOwners.LoadOrStore(sid, p)
		if !loaded {
			return nil
		}
		owner := cur.(*partition)
		if owner == p {
			return nil
		}
		if !owner.gone.Load() && owner.id != p.id {
			return fmt.Errorf("%w: session %d owned by project %d", ErrSessionConflict, sid, owner.id)
		}
		if r.sessionOwners.CompareAndSwap(sid, owner, p) {
			return nil
		}
	}
}

// Unregister removes a record and returns the session membership that remains.
func (r *Registry) Unregister(key domain.ClientKey) (Membership, error) {
	p := r.partition(key.ProjectID)
	if p == nil {
		return Membership{}, fmt.Errorf("%w: client %s", ErrNotFound, key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.clients[key.ID]
	if !ok || p.gone.Load() {
		return Membership{}, fmt.Errorf("%w: client %s", ErrNotFound, key)
	}
	delete(p.clients, key.ID)
	sid := rec.SessionID
	delete(p.sessions[sid], key.ID)
	if len(p.sessions[sid]) == 0 {
		delete(p.sessions, sid)
		r.sessionOwners.CompareAndDelete(sid, p)
	}

	return Membership{
		SessionID: sid,
		Client:    rec,
		Members:   p.members(sid),
	}, nil
}

// EvictProject removes the project and every record it owns in one step.
// Later registrations against it fail with ErrProjectGone until it is reopened.
// The removed records are returned in registration order.
func (r *Registry) EvictProject(pid domain.ProjectID) ([]*domain.DebugClient, error) {
	r.mu.Lock()
	p, ok := r.projects[pid]
	if ok {
		delete(r.projects, pid)
	}
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: project %d", ErrProjectGone, pid)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.gone.Store(true)
	removed := make([]*domain.DebugClient, 0, len(p.clients))
	for _, rec := range p.clients {
		removed = append(removed, rec)
	}
	for sid := range p.sessions {
		r.sessionOwners.CompareAndDelete(sid, p)
	}
	p.clients = make(map[domain.ClientID]*domain.DebugClient)
	p.sessions = make(map[domain.SessionID]map[domain.ClientID]struct{})
	sortBySeq(removed)
	return removed, nil
}

// FindBySession returns every record in the session ordered by registration.
func (r *Registry) FindBySession(sid domain.SessionID) []*domain.DebugClient {
	owner, ok := r.sessionOwners.Load(sid)
	if !ok {
		return nil
	}
	p := owner.(*partition)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gone.Load() {
		return nil
	}
	members := p.members(sid)
	for _, m := range members {
		invariant(m.ProjectID == p.id, "session %d spans projects %d and %d", sid, p.id, m.ProjectID)
	}
	return members
}

// Get returns a copy of one record.
func (r *Registry) Get(key domain.ClientKey) (*domain.DebugClient, bool) {
	p := r.partition(key.ProjectID)
	if p == nil {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.clients[key.ID]
	if !ok {
		return nil, false
	}
	invariant(!p.gone.Load(), "client %s survived eviction of its project", key)
	return rec.Clone(), true
}

// Project returns every record of a project ordered by registration.
func (r *Registry) Project(pid domain.ProjectID) []*domain.DebugClient {
	p := r.partition(pid)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.DebugClient, 0, len(p.clients))
	for _, rec := range p.clients {
		out = append(out, rec.Clone())
	}
	sortBySeq(out)
	return out
}

// UpdatePanel replaces one client's panel blob. The returned membership's
// Peers are the clients the update must be delivered to.
func (r *Registry) UpdatePanel(key domain.ClientKey, item []byte) (Membership, error) {
	p := r.partition(key.ProjectID)
	if p == nil {
		return Membership{}, fmt.Errorf("%w: client %s", ErrUnknownClient, key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.clients[key.ID]
	if !ok || p.gone.Load() {
		return Membership{}, fmt.Errorf("%w: client %s", ErrUnknownClient, key)
	}
	rec.PanelItem = append([]byte{}, item...)
	rec.PanelSeq++
	rec.UpdatedAt = r.clock.Now()

	return Membership{
		SessionID: rec.SessionID,
		Client:    rec.Clone(),
		Members:   p.members(rec.SessionID),
	}, nil
}

// SetCapabilities renegotiates a client's capabilities. A client may only
// give up capabilities, never gain new ones.
func (r *Registry) SetCapabilities(key domain.ClientKey, caps domain.Capabilities) (Membership, error) {
	p := r.partition(key.ProjectID)
	if p == nil {
		return Membership{}, fmt.Errorf("%w: client %s", ErrUnknownClient, key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.clients[key.ID]
	if !ok || p.gone.Load() {
		return Membership{}, fmt.Errorf("%w: client %s", ErrUnknownClient, key)
	}
	if !caps.SubsetOf(rec.Capabilities) {
		return Membership{}, fmt.Errorf("%w: client %s holds %s, asked for %s",
			ErrCapabilityEscalation, key, rec.Capabilities, caps.Without(rec.Capabilities))
	}
	rec.Capabilities = caps
	rec.UpdatedAt = r.clock.Now()

	return Membership{
		SessionID: rec.SessionID,
		Client:    rec.Clone(),
		Members:   p.members(rec.SessionID),
	}, nil
}
