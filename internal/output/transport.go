package output

import (
	"context"
	"sync/atomic"

	"github.com/vburojevic/dbgsync/internal/relay"
)

// Transport delivers envelopes by writing them as Delivery events. The CLI
// uses it in place of a network broadcast channel.
type Transport struct {
	w      Writer
	closed atomic.Bool
}

// NewTransport creates a transport writing to w.
func NewTransport(w Writer) *Transport {
	return &Transport{w: w}
}

// Send writes env.
func (t *Transport) Send(ctx context.Context, env relay.Envelope) error {
	if t.closed.Load() {
		return relay.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.w.Write(&Delivery{
		Type:          "delivery",
		SchemaVersion: SchemaVersion,
		ID:            env.ID,
		Kind:          env.Kind,
		From:          env.From,
		To:            env.To,
		Payload:       env.Payload,
	})
}

// Close makes later sends fail with relay.ErrClosed.
func (t *Transport) Close() {
	t.closed.Store(true)
}
