// Package session manages debug client lifecycle: attach, detach, disconnect
// and project deletion, plus the derived per-session views.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/registry"
	"github.com/vburojevic/dbgsync/internal/relay"
	"go.uber.org/zap"
)

// ErrPersist wraps failures of the Persister. The in-memory transition has
// already been applied when it is returned, except for Attach which is rolled back.
var ErrPersist = errors.New("persist debug client state")

// Observer is the adapter-lifecycle collaborator. Calls are made outside any
// registry lock and must not block for long.
type Observer interface {
	SessionStarted(ctx context.Context, ev *domain.SessionStarted)
	MembershipChanged(ctx context.Context, ev *domain.MembershipChanged)
	SessionObserverless(ctx context.Context, ev *domain.SessionObserverless)
}

// Persister mirrors registry mutations into durable storage.
type Persister interface {
	OpenProject(ctx context.Context, pid domain.ProjectID) error
	DeleteProject(ctx context.Context, pid domain.ProjectID) error
	InsertClient(ctx context.Context, c *domain.DebugClient) error
	DeleteClient(ctx context.Context, key domain.ClientKey) error
	UpdatePanel(ctx context.Context, key domain.ClientKey, item []byte) error
	UpdateCapabilities(ctx context.Context, key domain.ClientKey, caps domain.Capabilities) error
}

// AttachRequest registers a client against a (possibly new) session.
type AttachRequest struct {
	ClientID     domain.ClientID
	ProjectID    domain.ProjectID
	SessionID    domain.SessionID
	Capabilities domain.Capabilities
	PanelItem    []byte
	// Scenario is the debug configuration that started the session, if known.
	Scenario *domain.Scenario
}

// Manager is the only component that registers and removes debug clients.
// Every transition recomputes the session's negotiated capabilities and
// notifies the remaining members.
type Manager struct {
	reg      *registry.Registry
	group    *Group
	relay    *relay.Relay
	pub      relay.Publisher
	observer Observer
	store    Persister
	log      *zap.Logger
	clock    clock.Clock
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver sets the adapter-lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithPersister mirrors every transition into p.
func WithPersister(p Persister) Option {
	return func(m *Manager) { m.store = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock sets the clock used for event timestamps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// NewManager creates a Manager over reg. Envelopes for peers go to pub.
func NewManager(reg *registry.Registry, pub relay.Publisher, opts ...Option) *Manager {
	m := &Manager{
		reg:   reg,
		group: NewGroup(reg),
		pub:   pub,
		log:   zap.NewNop(),
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.relay = relay.New(reg, pub, m.log.Named("relay"))
	return m
}

// Group returns the session view.
func (m *Manager) Group() *Group {
	return m.group
}

// Restore loads previously persisted state without notifying anyone.
// Clients must be in registration order.
func (m *Manager) Restore(projects []domain.ProjectID, clients []*domain.DebugClient) error {
	for _, pid := range projects {
		m.reg.OpenProject(pid)
	}
	for _, c := range clients {
		if _, err := m.reg.Register(*c); err != nil {
			return fmt.Errorf("restore client %s: %w", c.Key(), err)
		}
	}
	return nil
}

// OpenProject makes a project available for attachment.
func (m *Manager) OpenProject(ctx context.Context, pid domain.ProjectID) error {
	m.reg.OpenProject(pid)
	if m.store != nil {
		if err := m.store.OpenProject(ctx, pid); err != nil {
			return fmt.Errorf("%w: open project %d: %v", ErrPersist, pid, err)
		}
	}
	m.log.Info("project opened", zap.Uint32("project_id", uint32(pid)))
	return nil
}

// Attach registers a client. It fails with registry.ErrDuplicateClient,
// registry.ErrProjectGone or registry.ErrSessionConflict.
//
// The record is persisted after it is registered, outside the partition
// lock. If persisting fails the registration is rolled back, but a
// concurrent attach to the same session may already have listed the client
// in its MembershipChanged roster. The failed attach itself announces
// nothing, and the next membership change carries the corrected roster.
func (m *Manager) Attach(ctx context.Context, req AttachRequest) (*domain.DebugClient, error) {
	if req.Scenario != nil {
		if err := req.Scenario.Validate(); err != nil {
			return nil, err
		}
	}
	mem, err := m.reg.Register(domain.DebugClient{
		ID:           req.ClientID,
		ProjectID:    req.ProjectID,
		SessionID:    req.SessionID,
		Capabilities: req.Capabilities,
		PanelItem:    req.PanelItem,
	})
	if err != nil {
		m.log.Debug("attach rejected", zap.Uint64("client_id", uint64(req.ClientID)),
			zap.Uint32("project_id", uint32(req.ProjectID)), zap.Error(err))
		return nil, err
	}
	key := mem.Client.Key()

	if m.store != nil {
		if err := m.store.InsertClient(ctx, mem.Client); err != nil {
			if _, rbErr := m.reg.Unregister(key); rbErr != nil {
				m.log.Error("attach rollback failed", zap.Stringer("client", key), zap.Error(rbErr))
			}
			return nil, fmt.Errorf("%w: insert client %s: %v", ErrPersist, key, err)
		}
	}

	if len(mem.Members) == 1 && m.observer != nil {
		m.observer.SessionStarted(ctx, domain.NewSessionStarted(mem.Client, req.Scenario, m.clock.Now()))
	}
	// The joining client receives the roster too.
	m.announce(ctx, mem, domain.ReasonAttach, mem.Members)

	m.log.Info("client attached",
		zap.Stringer("client", key),
		zap.Uint64("session_id", uint64(mem.SessionID)),
		zap.Stringer("capabilities", mem.Client.Capabilities),
		zap.Int("members", len(mem.Members)))
	return mem.Client, nil
}

// Detach removes a client at its own request. A missing record is reported
// as registry.ErrNotFound.
func (m *Manager) Detach(ctx context.Context, key domain.ClientKey) error {
	return m.remove(ctx, key, domain.ReasonDetach)
}

// Disconnect removes a client whose connection dropped. Unlike Detach, a
// missing record is not an error, so repeated disconnect reports are harmless.
func (m *Manager) Disconnect(ctx context.Context, key domain.ClientKey) error {
	err := m.remove(ctx, key, domain.ReasonDisconnect)
	if errors.Is(err, registry.ErrNotFound) {
		return nil
	}
	return err
}

func (m *Manager) remove(ctx context.Context, key domain.ClientKey, reason string) error {
	mem, err := m.reg.Unregister(key)
	if err != nil {
		return err
	}
	if m.pub != nil {
		m.pub.Forget(key)
	}

	var persistErr error
	if m.store != nil {
		if err := m.store.DeleteClient(ctx, key); err != nil {
			persistErr = fmt.Errorf("%w: delete client %s: %v", ErrPersist, key, err)
		}
	}

	if len(mem.Members) == 0 {
		m.observerless(ctx, key, mem.SessionID, reason)
	} else {
		m.announce(ctx, mem, reason, mem.Members)
	}

	m.log.Info("client removed",
		zap.Stringer("client", key),
		zap.String("reason", reason),
		zap.Uint64("session_id", uint64(mem.SessionID)),
		zap.Int("remaining", len(mem.Members)))
	return persistErr
}

// DeleteProject evicts every client of the project at once, then tells the
// adapter layer that each of its sessions lost all observers.
func (m *Manager) DeleteProject(ctx context.Context, pid domain.ProjectID) ([]*domain.DebugClient, error) {
	removed, err := m.reg.EvictProject(pid)
	if err != nil {
		return nil, err
	}
	var persistErr error
	if m.store != nil {
		if err := m.store.DeleteProject(ctx, pid); err != nil {
			persistErr = fmt.Errorf("%w: delete project %d: %v", ErrPersist, pid, err)
		}
	}

	bySession := lo.GroupBy(removed, func(c *domain.DebugClient) domain.SessionID {
		return c.SessionID
	})
	for _, c := range removed {
		if m.pub != nil {
			m.pub.Forget(c.Key())
		}
	}
	for _, sid := range lo.Uniq(lo.Map(removed, func(c *domain.DebugClient, _ int) domain.SessionID {
		return c.SessionID
	})) {
		members := bySession[sid]
		m.observerless(ctx, members[len(members)-1].Key(), sid, domain.ReasonProjectDelete)
	}

	m.log.Info("project deleted",
		zap.Uint32("project_id", uint32(pid)),
		zap.Int("evicted", len(removed)),
		zap.Int("sessions", len(bySession)))
	return removed, persistErr
}

// UpdatePanel stores the client's panel state and relays it to its peers.
func (m *Manager) UpdatePanel(ctx context.Context, key domain.ClientKey, item []byte) (relay.Update, error) {
	u, err := m.relay.UpdatePanel(key, item)
	if err != nil {
		return relay.Update{}, err
	}
	if m.store != nil {
		if err := m.store.UpdatePanel(ctx, key, u.Client.PanelItem); err != nil {
			return u, fmt.Errorf("%w: update panel %s: %v", ErrPersist, key, err)
		}
	}
	return u, nil
}

// Renegotiate lowers a client's capabilities and announces the new
// negotiated set. Gaining capabilities fails with registry.ErrCapabilityEscalation.
func (m *Manager) Renegotiate(ctx context.Context, key domain.ClientKey, caps domain.Capabilities) (domain.Capabilities, error) {
	mem, err := m.reg.SetCapabilities(key, caps)
	if err != nil {
		return 0, err
	}
	var persistErr error
	if m.store != nil {
		if err := m.store.UpdateCapabilities(ctx, key, caps); err != nil {
			persistErr = fmt.Errorf("%w: update capabilities %s: %v", ErrPersist, key, err)
		}
	}
	m.announce(ctx, mem, domain.ReasonRenegotiate, mem.Members)
	return Negotiate(mem.Members), persistErr
}

// announce sends a MembershipChanged to recipients and the observer.
func (m *Manager) announce(ctx context.Context, mem registry.Membership, reason string, recipients []*domain.DebugClient) {
	ev := domain.NewMembershipChanged(
		mem.Client.ProjectID,
		mem.SessionID,
		reason,
		mem.Client.Key(),
		mem.Keys(),
		Negotiate(mem.Members),
		m.clock.Now(),
	)
	if m.pub != nil && len(recipients) > 0 {
		id := uuid.NewString()
		m.pub.Publish(lo.Map(recipients, func(c *domain.DebugClient, _ int) relay.Envelope {
			return relay.Envelope{
				ID:      id,
				Kind:    relay.KindMembershipChanged,
				From:    mem.Client.Key(),
				To:      c.Key(),
				Payload: ev,
			}
		})...)
	}
	if m.observer != nil {
		m.observer.MembershipChanged(ctx, ev)
	}
}

func (m *Manager) observerless(ctx context.Context, last domain.ClientKey, sid domain.SessionID, reason string) {
	m.log.Info("session has no observers",
		zap.Uint32("project_id", uint32(last.ProjectID)),
		zap.Uint64("session_id", uint64(sid)),
		zap.String("reason", reason))
	if m.observer != nil {
		m.observer.SessionObserverless(ctx, domain.NewSessionObserverless(last, sid, reason, m.clock.Now()))
	}
}
