package relay

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/vburojevic/dbgsync/internal/domain"
)

// senderSlot is one registration of a sender.
type senderSlot struct {
	from         domain.ClientKey
	registration uint64
}

func slotOf(env Envelope) senderSlot {
	return senderSlot{from: env.From, registration: env.Registration}
}

// outbox is one peer's FIFO of pending envelopes.
type outbox struct {
	mu        sync.Mutex
	peer      domain.ClientKey
	q         *queue.Queue
	running   bool
	forgotten bool
	limit     int
	// delivered is the highest panel seq handed to the transport per sender
	// registration.
	delivered map[senderSlot]uint64
}

func newOutbox(peer domain.ClientKey, limit int) *outbox {
	return &outbox{
		peer:      peer,
		q:         queue.New(),
		limit:     limit,
		delivered: make(map[senderSlot]uint64),
	}
}

// push enqueues env and reports whether a drain goroutine must be started,
// plus how many old envelopes were dropped to honor the limit.
func (o *outbox) push(env Envelope) (start bool, dropped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.forgotten {
		return false, 1
	}
	o.q.Add(env)
	for o.limit > 0 && o.q.Length() > o.limit {
		o.q.Remove()
		dropped++
	}
	if !o.running {
		o.running = true
		start = true
	}
	return start, dropped
}

// next pops the head envelope, skipping panel updates older than one already
// delivered from the same sender. ok is false once the outbox is drained; the
// caller's drain goroutine must then exit.
func (o *outbox) next() (env Envelope, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		if o.forgotten || o.q.Length() == 0 {
			o.running = false
			return Envelope{}, false
		}
		env = o.q.Remove().(Envelope)
		if env.Kind == KindPanelUpdate && env.Seq <= o.delivered[slotOf(env)] {
			continue
		}
		return env, true
	}
}

func (o *outbox) markDelivered(env Envelope) {
	if env.Kind != KindPanelUpdate {
		return
	}
	slot := slotOf(env)
	o.mu.Lock()
	if env.Seq > o.delivered[slot] {
		o.delivered[slot] = env.Seq
	}
	o.mu.Unlock()
}

// forgetSender drops the delivery marks of every registration of from.
func (o *outbox) forgetSender(from domain.ClientKey) {
	o.mu.Lock()
	for slot := range o.delivered {
		if slot.from == from {
			delete(o.delivered, slot)
		}
	}
	o.mu.Unlock()
}

func (o *outbox) marks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.delivered)
}

func (o *outbox) forget() {
	o.mu.Lock()
	o.forgotten = true
	o.q = queue.New()
	o.mu.Unlock()
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Length()
}
