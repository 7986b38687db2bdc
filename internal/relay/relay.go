// Package relay propagates a client's debug panel state to the other members
// of its session. Each member owns one independent last-writer-wins slot;
// nothing is merged.
package relay

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/domain"
	"github.com/vburojevic/dbgsync/internal/registry"
	"go.uber.org/zap"
)

// Update is the outcome of one accepted panel update.
type Update struct {
	Client *domain.DebugClient   // sender record after the update
	Peers  []*domain.DebugClient // recipients in registration order
}

// PeerKeys returns the recipients' keys in order.
func (u Update) PeerKeys() []domain.ClientKey {
	return lo.Map(u.Peers, func(c *domain.DebugClient, _ int) domain.ClientKey {
		return c.Key()
	})
}

// Relay stores panel updates in the registry and hands them to a Publisher.
type Relay struct {
	reg *registry.Registry
	pub Publisher
	log *zap.Logger
}

// New creates a Relay.
func New(reg *registry.Registry, pub Publisher, log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{reg: reg, pub: pub, log: log}
}

// UpdatePanel replaces the sender's panel item and publishes it to every peer.
// It fails with registry.ErrUnknownClient if the sender has no live record.
func (r *Relay) UpdatePanel(key domain.ClientKey, item []byte) (Update, error) {
	m, err := r.reg.UpdatePanel(key, item)
	if err != nil {
		return Update{}, err
	}
	u := Update{Client: m.Client, Peers: m.Peers()}

	msgID := uuid.NewString()
	envs := lo.Map(u.Peers, func(peer *domain.DebugClient, _ int) Envelope {
		return Envelope{
			ID:           msgID,
			Kind:         KindPanelUpdate,
			From:         key,
			To:           peer.Key(),
			Seq:          m.Client.PanelSeq,
			Registration: m.Client.Seq,
			Payload: &domain.PanelUpdate{
				Type:          KindPanelUpdate,
				SchemaVersion: domain.SchemaVersion,
				MessageID:     msgID,
				ProjectID:     key.ProjectID,
				SessionID:     m.SessionID,
				From:          key,
				To:            peer.Key(),
				Seq:           m.Client.PanelSeq,
				PanelItem:     m.Client.PanelItem,
			},
		}
	})
	if r.pub != nil && len(envs) > 0 {
		r.pub.Publish(envs...)
	}

	r.log.Debug("panel updated",
		zap.Uint32("project_id", uint32(key.ProjectID)),
		zap.Uint64("session_id", uint64(m.SessionID)),
		zap.Uint64("client_id", uint64(key.ID)),
		zap.Uint64("seq", m.Client.PanelSeq),
		zap.Int("peers", len(envs)))
	return u, nil
}
