package relay

import (
	"context"

	"github.com/vburojevic/dbgsync/internal/domain"
)

// Envelope kinds.
const (
	KindPanelUpdate       = "panel_update"
	KindMembershipChanged = "membership_changed"
)

// Envelope is one message addressed to one peer.
type Envelope struct {
	ID   string
	Kind string
	From domain.ClientKey
	To   domain.ClientKey
	// Seq is the sender's panel sequence for panel updates, zero otherwise.
	Seq uint64
	// Registration is the sender record's registration seq. Panel sequences
	// restart when a client registers again, so Seq is only ordered within one
	// registration.
	Registration uint64
	Payload      any
}

// Transport delivers envelopes to connected peers, typically the
// collaboration broadcast channel. Network delivery is its contract.
type Transport interface {
	Send(ctx context.Context, env Envelope) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, env Envelope) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Publisher accepts envelopes for asynchronous delivery.
type Publisher interface {
	Publish(envs ...Envelope)
	Forget(key domain.ClientKey)
}
