package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultCapacity is the per-subscriber buffer size used when a Bus is
// constructed with New(). Matches spec §4.1's "fixed capacity (default
// 256)".
const DefaultCapacity = 256

// Bus is a multi-producer multi-consumer broadcast channel. The zero value
// is not usable; construct with New.
type Bus struct {
	mu       sync.RWMutex
	capacity int
	subs     map[string]*subscriber
	seq      atomic.Uint64
}

type subscriber struct {
	id      string
	ch      chan Event
	dropped atomic.Uint64
	// lagPending is set when a send had to drop an event to make room;
	// the next Recv reports it before delivering the next real event.
	lagPending atomic.Bool
}

// New constructs a Bus with the default per-subscriber capacity.
func New() *Bus {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity constructs a Bus with an explicit per-subscriber buffer
// size.
func NewWithCapacity(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[string]*subscriber),
	}
}

// Receiver is the independent stream handed back by Subscribe. Only the
// owning goroutine should call Recv/Close.
type Receiver struct {
	bus *Bus
	sub *subscriber
}

// Subscribe returns a Receiver that observes every event published after
// this call, in publish order.
func (b *Bus) Subscribe() *Receiver {
	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, b.capacity),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return &Receiver{bus: b, sub: sub}
}

// SubscriberCount is advisory, per spec §4.1.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers event to every active subscriber and returns the count
// delivered. Zero subscribers is a no-op that returns 0; publishing never
// blocks and never errors. A subscriber whose buffer is full has its
// oldest buffered event dropped to make room (drop-oldest) and its lag
// flag set, rather than stalling the publisher.
func (b *Bus) Publish(event Event) uint32 {
	event.Sequence = b.seq.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	var delivered uint32
	for _, sub := range b.subs {
		if b.send(sub, event) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus) send(sub *subscriber, event Event) bool {
	select {
	case sub.ch <- event:
		return true
	default:
	}
	// Buffer full: drop the oldest queued event to make room, then retry
	// once. This keeps the subscriber moving forward instead of wedging
	// the publisher, per spec §4.1(ii).
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		sub.lagPending.Store(true)
	default:
	}
	select {
	case sub.ch <- event:
		return true
	default:
		// Lost the race to another publisher; count this event as
		// dropped too rather than spin.
		sub.dropped.Add(1)
		sub.lagPending.Store(true)
		return false
	}
}

// Recv blocks until the next event, ctx cancellation, or bus closure. If
// this subscriber has lagged since the previous Recv, the first call
// after the lag returns a synthetic lag event instead of blocking, so the
// caller is informed exactly once per lag episode before normal delivery
// resumes.
func (r *Receiver) Recv() (Event, bool) {
	if r.sub.lagPending.CompareAndSwap(true, false) {
		return Event{
			Type:     "lagged",
			Sequence: 0,
		}, true
	}
	ev, ok := <-r.sub.ch
	return ev, ok
}

// DroppedCount reports how many events this subscriber has lost to
// back-pressure over its lifetime.
func (r *Receiver) DroppedCount() uint64 {
	return r.sub.dropped.Load()
}

// Close unsubscribes and releases the receiver's channel. Safe to call
// more than once.
func (r *Receiver) Close() {
	r.bus.mu.Lock()
	if _, ok := r.bus.subs[r.sub.id]; ok {
		delete(r.bus.subs, r.sub.id)
		close(r.sub.ch)
	}
	r.bus.mu.Unlock()
}
