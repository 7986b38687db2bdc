package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sourcegraph/conc"
	"github.com/vburojevic/dbgsync/internal/domain"
	"go.uber.org/zap"
)

// Config tunes delivery.
type Config struct {
	MaxAttempts  int           // sends per envelope before it is dropped (default 3)
	RetryBackoff time.Duration // pause between attempts, 0 retries immediately
	OutboxLimit  int           // pending envelopes per peer before the oldest is dropped (default 256)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.OutboxLimit <= 0 {
		c.OutboxLimit = 256
	}
	return c
}

// Broadcaster fans envelopes out to peers through a Transport. Each peer has
// its own FIFO outbox drained by at most one goroutine, so a slow peer delays
// only itself.
type Broadcaster struct {
	cfg       Config
	transport Transport
	log       *zap.Logger
	clock     clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.Mutex
	closed   bool
	outboxes map[domain.ClientKey]*outbox
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		if l != nil {
			b.log = l
		}
	}
}

// WithClock sets the clock used for retry backoff.
func WithClock(c clock.Clock) BroadcasterOption {
	return func(b *Broadcaster) { b.clock = c }
}

// NewBroadcaster creates a Broadcaster delivering through t.
func NewBroadcaster(t Transport, cfg Config, opts ...BroadcasterOption) *Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		cfg:       cfg.withDefaults(),
		transport: t,
		log:       zap.NewNop(),
		clock:     clock.New(),
		ctx:       ctx,
		cancel:    cancel,
		outboxes:  make(map[domain.ClientKey]*outbox),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues envelopes in order. It never blocks on the transport.
func (b *Broadcaster) Publish(envs ...Envelope) {
	for _, env := range envs {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			b.log.Warn("broadcaster closed, dropping envelope",
				zap.String("kind", env.Kind), zap.Stringer("to", env.To))
			continue
		}
		ob, ok := b.outboxes[env.To]
		if !ok {
			ob = newOutbox(env.To, b.cfg.OutboxLimit)
			b.outboxes[env.To] = ob
		}
		start, dropped := ob.push(env)
		if start {
			b.wg.Go(func() { b.drain(ob) })
		}
		b.mu.Unlock()

		if dropped > 0 {
			b.log.Warn("peer outbox overflow, dropped oldest envelopes",
				zap.Stringer("to", env.To), zap.Int("dropped", dropped))
		}
	}
}

// Forget discards a departed peer's pending envelopes, and what the other
// peers' outboxes remember about its panel updates.
func (b *Broadcaster) Forget(key domain.ClientKey) {
	b.mu.Lock()
	ob, ok := b.outboxes[key]
	delete(b.outboxes, key)
	for _, other := range b.outboxes {
		other.forgetSender(key)
	}
	b.mu.Unlock()
	if ok {
		ob.forget()
	}
}

// Pending returns the number of envelopes queued for a peer.
func (b *Broadcaster) Pending(key domain.ClientKey) int {
	b.mu.Lock()
	ob, ok := b.outboxes[key]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return ob.pending()
}

func (b *Broadcaster) drain(ob *outbox) {
	for {
		env, ok := ob.next()
		if !ok {
			return
		}
		if err := b.send(env); err != nil {
			b.log.Error("dropping envelope after failed delivery",
				zap.String("id", env.ID),
				zap.String("kind", env.Kind),
				zap.Stringer("from", env.From),
				zap.Stringer("to", env.To),
				zap.Error(err))
			continue
		}
		ob.markDelivered(env)
	}
}

func (b *Broadcaster) send(env Envelope) error {
	var err error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if b.ctx.Err() != nil {
			return b.ctx.Err()
		}
		if err = b.transport.Send(b.ctx, env); err == nil {
			return nil
		}
		b.log.Debug("delivery attempt failed",
			zap.String("id", env.ID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < b.cfg.MaxAttempts && b.cfg.RetryBackoff > 0 {
			select {
			case <-b.clock.After(b.cfg.RetryBackoff):
			case <-b.ctx.Done():
				return b.ctx.Err()
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", b.cfg.MaxAttempts, err)
}

// Close stops accepting envelopes and waits for queued ones to drain. If ctx
// expires first, in-flight deliveries are cancelled.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return fmt.Errorf("broadcaster drain timeout: %w", ctx.Err())
	}
}

// ErrClosed is returned by transports that were shut down.
var ErrClosed = errors.New("transport closed")
