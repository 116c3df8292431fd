package events

// Emitter is an unbounded channel of upstream events. Unbounded is
// implemented as a large buffer plus a drop-oldest fallback rather
// than a literally unbounded queue, since an unsubscribed or stalled
// consumer must never block the event loop's forward progress.
type Emitter struct {
	ch chan Event
}

// emitterBuffer bounds the channel; past this many unconsumed events
// the emitter starts dropping the oldest to keep the loop unblocked.
const emitterBuffer = 4096

// NewEmitter constructs an Emitter ready to Publish/Events.
func NewEmitter() *Emitter {
	return &Emitter{ch: make(chan Event, emitterBuffer)}
}

// Publish delivers ev to any current subscriber, dropping the oldest
// buffered event rather than blocking if the buffer is full.
func (e *Emitter) Publish(ev Event) {
	select {
	case e.ch <- ev:
	default:
		select {
		case <-e.ch:
		default:
		}
		select {
		case e.ch <- ev:
		default:
		}
	}
}

// Events returns the channel events are delivered on. There is
// exactly one logical subscriber in this process (the host
// application); fan-out to multiple UI surfaces is the caller's
// responsibility.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Close releases the channel. Subsequent Publish calls panic, matching
// ordinary Go channel-close semantics; callers must stop publishing
// before closing.
func (e *Emitter) Close() {
	close(e.ch)
}
