package reactive

import "testing"

func TestMulticastFirstLastHooks(t *testing.T) {
	var firsts, lasts int
	m := NewMulticast[int](func() { firsts++ }, func() { lasts++ })

	u1 := m.Subscribe(func(int) {})
	u2 := m.Subscribe(func(int) {})
	if firsts != 1 {
		t.Fatalf("onFirst fired %d times, want 1", firsts)
	}

	u1()
	if lasts != 0 {
		t.Fatal("onLast must not fire while a subscriber remains")
	}
	u2()
	u2() // second call is a no-op
	if lasts != 1 {
		t.Fatalf("onLast fired %d times, want 1", lasts)
	}
}

func TestMulticastSelfUnsubscribeDoesNotSkipNext(t *testing.T) {
	m := NewMulticast[int](nil, nil)

	var got []string
	var unsubA Unsubscribe
	unsubA = m.Subscribe(func(int) {
		got = append(got, "a")
		unsubA()
	})
	m.Subscribe(func(int) { got = append(got, "b") })

	// Dispatch runs in reverse subscription order: b first, then a,
	// which unsubscribes itself mid-dispatch without disturbing b.
	m.Dispatch(1)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("dispatch order = %v, want [b a]", got)
	}

	got = nil
	m.Dispatch(2)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("after a's self-unsubscribe, dispatch = %v, want [b]", got)
	}
}

func TestMulticastClosedRejectsSubscribe(t *testing.T) {
	m := NewMulticast[int](nil, nil)
	m.Close()
	if !m.Closed() {
		t.Fatal("Closed() = false after Close")
	}
	called := false
	unsub := m.Subscribe(func(int) { called = true })
	m.Dispatch(1)
	unsub()
	if called {
		t.Fatal("a sink subscribed after Close must never be called")
	}
}

func TestBehaviorSubjectReplaysCurrentValue(t *testing.T) {
	b := NewBehaviorSubject(10)

	var got []int
	unsub := b.Subscribe(func(v int) { got = append(got, v) })
	defer unsub()
	if len(got) != 1 || got[0] != 10 {
		t.Fatalf("replay = %v, want [10]", got)
	}

	b.Next(20)
	if len(got) != 2 || got[1] != 20 {
		t.Fatalf("after Next, got = %v, want [10 20]", got)
	}
	if b.Value() != 20 {
		t.Fatalf("Value() = %d, want 20", b.Value())
	}
}
