package reactive

import "sync"

// BehaviorSubject is a [Multicast] that remembers the most recently
// dispatched value and replays it to every new subscriber before that
// subscriber observes any subsequent value. This is the semantics
// P8 (IO-state monotonicity) and the operating/communication state
// streams require: a subscriber always sees "current state" first,
// then one emission per transition.
type BehaviorSubject[T any] struct {
	mu      sync.Mutex
	value   T
	hasInit bool
	m       *Multicast[T]
}

// NewBehaviorSubject creates a BehaviorSubject seeded with initial.
func NewBehaviorSubject[T any](initial T) *BehaviorSubject[T] {
	return &BehaviorSubject[T]{
		value:   initial,
		hasInit: true,
		m:       NewMulticast[T](nil, nil),
	}
}

// Subscribe attaches sink, immediately replaying the current value,
// then forwarding every later call to Next. Returns the detach
// function.
func (b *BehaviorSubject[T]) Subscribe(sink Sink[T]) Unsubscribe {
	b.mu.Lock()
	current := b.value
	b.mu.Unlock()

	unsub := b.m.Subscribe(sink)
	sink(current)
	return unsub
}

// Next updates the current value and dispatches it to all current
// subscribers.
func (b *BehaviorSubject[T]) Next(value T) {
	b.mu.Lock()
	b.value = value
	b.mu.Unlock()
	b.m.Dispatch(value)
}

// Value returns the most recently published value.
func (b *BehaviorSubject[T]) Value() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}
