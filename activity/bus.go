// Package activity turns user-interaction signals into activity stamps on
// the session metadata store.
package activity

import "sync"

// Signal is one class of user-interaction evidence.
type Signal string

const (
	SignalPointerMove Signal = "pointer_move"
	SignalKeyPress    Signal = "key_press"
	SignalClick       Signal = "click"
	SignalScroll      Signal = "scroll"
)

// Signals lists every interaction signal class the tracker subscribes to.
var Signals = []Signal{SignalPointerMove, SignalKeyPress, SignalClick, SignalScroll}

// Bus fans interaction signals out to subscribers. Subscribe returns a
// disposer so arming and disarming become acquire/release of a scoped
// resource, with release guaranteed on every exit path.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Signal]map[int]func(Signal)
}

// NewBus creates an empty signal bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Signal]map[int]func(Signal))}
}

// Subscribe registers fn for one signal class and returns an idempotent
// cancel function.
func (b *Bus) Subscribe(kind Signal, fn func(Signal)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[int]func(Signal))
	}
	b.subs[kind][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[kind], id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers a signal to every subscriber of its class.
func (b *Bus) Publish(kind Signal) {
	b.mu.RLock()
	fns := make([]func(Signal), 0, len(b.subs[kind]))
	for _, fn := range b.subs[kind] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(kind)
	}
}

// SubscriberCount reports the number of live subscriptions for a signal class.
func (b *Bus) SubscriberCount(kind Signal) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
