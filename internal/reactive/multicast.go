// Package reactive provides the tiny cold-multicast primitive the
// communication layer is built on: subscribe (adds a sink, lazily
// triggers the publisher on first attachment), unsubscribe (removes a
// sink, triggers cleanup on last detachment), and dispatch (fan out to
// sinks in reverse subscription order). It is not a general-purpose
// reactive library — it implements exactly the semantics the
// subscription registry and the IO routing state notifications need.
package reactive

import "sync"

// Sink receives values published on a [Multicast].
type Sink[T any] func(T)

// Multicast is a cold, ref-counted broadcast channel. No onFirst hook
// fires until the first subscriber attaches; no onLast hook fires
// until the last subscriber detaches. Safe for concurrent use.
type Multicast[T any] struct {
	mu      sync.Mutex
	order   []int
	sinks   map[int]Sink[T]
	nextID  int
	onFirst func()
	onLast  func()
	closed  bool
}

// NewMulticast creates a Multicast. onFirst is invoked synchronously
// the moment the subscriber count goes from 0 to 1; onLast is invoked
// synchronously the moment it goes from 1 to 0. Either may be nil.
func NewMulticast[T any](onFirst, onLast func()) *Multicast[T] {
	return &Multicast[T]{
		sinks:   make(map[int]Sink[T]),
		onFirst: onFirst,
		onLast:  onLast,
	}
}

// Unsubscribe detaches a previously subscribed sink. Safe to call more
// than once; the second call is a no-op.
type Unsubscribe func()

// Subscribe attaches sink and returns a function to detach it. If this
// is the first subscriber, onFirst runs before Subscribe returns. If
// the Multicast has already been permanently closed (last subscriber
// already departed and the owner tore it down), Subscribe returns a
// no-op unsubscribe and never calls sink — callers that must reject
// this case outright (late resubscribe on a response stream) check
// [Multicast.Closed] themselves before calling Subscribe.
func (m *Multicast[T]) Subscribe(sink Sink[T]) Unsubscribe {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}

	id := m.nextID
	m.nextID++
	m.sinks[id] = sink
	m.order = append(m.order, id)
	first := len(m.sinks) == 1
	m.mu.Unlock()

	if first && m.onFirst != nil {
		m.onFirst()
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.remove(id) })
	}
}

func (m *Multicast[T]) remove(id int) {
	m.mu.Lock()
	if _, ok := m.sinks[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.sinks, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	last := len(m.sinks) == 0
	m.mu.Unlock()

	if last && m.onLast != nil {
		m.onLast()
	}
}

// Dispatch fans value out to every current subscriber, in reverse
// subscription order, so that a sink which unsubscribes itself during
// its own callback does not cause the next sink to be skipped.
func (m *Multicast[T]) Dispatch(value T) {
	m.mu.Lock()
	sinks := make([]Sink[T], 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		sinks = append(sinks, m.sinks[m.order[i]])
	}
	m.mu.Unlock()

	for _, s := range sinks {
		s(value)
	}
}

// Count returns the current number of attached subscribers.
func (m *Multicast[T]) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sinks)
}

// Close permanently disables the Multicast. Subsequent Subscribe
// calls are no-ops. Does not itself invoke onLast; the caller is
// expected to have already torn down subscribers through the normal
// ref-counting path before closing.
func (m *Multicast[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Closed reports whether Close has been called.
func (m *Multicast[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
