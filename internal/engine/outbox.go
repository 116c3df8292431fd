package engine

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Outbox is a generic per-peer FIFO buffer. One instantiation per
// payload type serves outbound friend requests, pending
// friend-request responses, and queued direct messages.
//
// Entries survive across disconnects and are drained in the order
// enqueued.
type Outbox[T any] struct {
	mu    sync.Mutex
	items map[peer.ID][]T
}

func NewOutbox[T any]() *Outbox[T] {
	return &Outbox[T]{items: make(map[peer.ID][]T)}
}

// Push appends an entry to p's queue.
func (o *Outbox[T]) Push(p peer.ID, item T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[p] = append(o.items[p], item)
}

// Drain removes and returns the full queue for p, in FIFO order,
// leaving nothing behind. Returns nil if p has no buffered entries.
func (o *Outbox[T]) Drain(p peer.ID) []T {
	o.mu.Lock()
	defer o.mu.Unlock()
	items := o.items[p]
	delete(o.items, p)
	return items
}

// Remove discards p's queue without returning it, used when a dial
// fails and the buffered operation must be abandoned.
func (o *Outbox[T]) Remove(p peer.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, p)
}

// Peek returns p's oldest buffered entry without removing it, and
// whether one exists. The friend-request outboxes send only this entry
// on connect and then Remove p's whole queue.
func (o *Outbox[T]) Peek(p peer.ID) (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	items, ok := o.items[p]
	if !ok || len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}
