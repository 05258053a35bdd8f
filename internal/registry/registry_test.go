package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/topic"
)

// fakeBinding is an in-memory stand-in for a [binding.Binding] that
// records Subscribe/Unsubscribe/Publish calls and lets tests inject
// inbound events directly, without a real broker.
type fakeBinding struct {
	mu          sync.Mutex
	handler     binding.InboundHandler
	subscribes  []binding.Filter
	unsubscribs []binding.Filter
	published   []binding.EventLike
	commState   *reactive.BehaviorSubject[binding.CommunicationState]
	diag        *reactive.Multicast[binding.Diagnostic]
}

func newFakeBinding() *fakeBinding {
	return &fakeBinding{
		commState: reactive.NewBehaviorSubject(binding.Offline),
		diag:      reactive.NewMulticast[binding.Diagnostic](nil, nil),
	}
}

func (f *fakeBinding) Join(context.Context, binding.JoinOptions) error { return nil }
func (f *fakeBinding) Unjoin(context.Context) error                    { return nil }

func (f *fakeBinding) Publish(_ context.Context, e binding.EventLike) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
	return nil
}

func (f *fakeBinding) Subscribe(_ context.Context, flt binding.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, flt)
	return nil
}

func (f *fakeBinding) Unsubscribe(_ context.Context, flt binding.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribs = append(f.unsubscribs, flt)
	return nil
}

func (f *fakeBinding) SetInboundHandler(h binding.InboundHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeBinding) CommunicationState() *reactive.BehaviorSubject[binding.CommunicationState] {
	return f.commState
}
func (f *fakeBinding) Diagnostics() *reactive.Multicast[binding.Diagnostic] { return f.diag }
func (f *fakeBinding) State() binding.State                                { return binding.Joined }

func (f *fakeBinding) deliver(e binding.EventLike) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(e)
}

func (f *fakeBinding) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

func (f *fakeBinding) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubscribs)
}

func TestObserveRequestSubscribesOnFirstOnly(t *testing.T) {
	fb := newFakeBinding()
	r := New(context.Background(), fb, "-", false, nil)

	flt := binding.Filter{EventType: topic.Advertise, EventTypeFilter: "coaty.test.Mock"}
	m1 := r.ObserveRequest(flt)
	m2 := r.ObserveRequest(flt)
	if m1 != m2 {
		t.Fatal("expected the same request stream for an identical filter")
	}

	var got1, got2 []binding.EventLike
	unsub1 := m1.Subscribe(func(e binding.EventLike) { got1 = append(got1, e) })
	unsub2 := m1.Subscribe(func(e binding.EventLike) { got2 = append(got2, e) })

	if fb.subscribeCount() != 1 {
		t.Fatalf("subscribeCount = %d, want 1 (only the first observer should trigger Subscribe)", fb.subscribeCount())
	}

	fb.deliver(binding.EventLike{EventType: topic.Advertise, EventTypeFilter: "coaty.test.Mock", SourceId: "agent-1"})
	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("both observers should have received the dispatched event, got %d and %d", len(got1), len(got2))
	}

	unsub1()
	if fb.unsubscribeCount() != 0 {
		t.Fatal("unsubscribe must not fire while an observer remains")
	}
	unsub2()
	if fb.unsubscribeCount() != 1 {
		t.Fatalf("unsubscribeCount = %d, want 1 after the last observer detaches", fb.unsubscribeCount())
	}
}

func TestObserveResponseLazyPublishesOnce(t *testing.T) {
	fb := newFakeBinding()
	r := New(context.Background(), fb, "-", false, nil)

	publishCount := 0
	publish := func() error {
		publishCount++
		return nil
	}

	m, err := r.ObserveResponse("corr-1", topic.Resolve, publish)
	if err != nil {
		t.Fatalf("ObserveResponse() error = %v", err)
	}
	if publishCount != 0 {
		t.Fatalf("publish must not fire before any observer attaches, got %d calls", publishCount)
	}
	if fb.subscribeCount() != 0 {
		t.Fatal("Binding.Subscribe must not fire before any observer attaches")
	}

	unsub1 := m.Subscribe(func(binding.EventLike) {})
	if publishCount != 1 {
		t.Fatalf("publishCount = %d, want 1 after first observer attaches", publishCount)
	}
	if fb.subscribeCount() != 1 {
		t.Fatalf("subscribeCount = %d, want 1 (the response filter for corr-1)", fb.subscribeCount())
	}

	m2, err := r.ObserveResponse("corr-1", topic.Resolve, publish)
	if err != nil {
		t.Fatalf("ObserveResponse() for already-live correlationId error = %v", err)
	}
	if m2 != m {
		t.Fatal("expected the same stream for a still-live correlationId")
	}
	unsub2 := m2.Subscribe(func(binding.EventLike) {})
	if publishCount != 1 {
		t.Fatalf("publishCount = %d, want 1 (attaching to an already-live stream must not re-publish)", publishCount)
	}

	unsub1()
	unsub2()
	if fb.unsubscribeCount() != 1 {
		t.Fatalf("unsubscribeCount = %d, want 1 after the last observer detaches", fb.unsubscribeCount())
	}

	if _, err := r.ObserveResponse("corr-1", topic.Resolve, publish); err == nil {
		t.Fatal("expected an error resubscribing to a completed correlationId")
	}
}

func TestDispatchRoutesByCorrelationAndFilter(t *testing.T) {
	fb := newFakeBinding()
	r := New(context.Background(), fb, "-", false, nil)

	reqFlt := binding.Filter{EventType: topic.Update, EventTypeFilter: "coaty.test.Mock"}
	reqStream := r.ObserveRequest(reqFlt)
	var reqGot []binding.EventLike
	unsubReq := reqStream.Subscribe(func(e binding.EventLike) { reqGot = append(reqGot, e) })
	defer unsubReq()

	respStream, err := r.ObserveResponse("corr-42", topic.Complete, func() error { return nil })
	if err != nil {
		t.Fatalf("ObserveResponse() error = %v", err)
	}
	var respGot []binding.EventLike
	unsubResp := respStream.Subscribe(func(e binding.EventLike) { respGot = append(respGot, e) })
	defer unsubResp()

	// A Complete event correlated to corr-42 should reach the response
	// stream only, since its event type/filter doesn't match reqFlt.
	fb.deliver(binding.EventLike{EventType: topic.Complete, EventTypeFilter: "", CorrelationId: "corr-42"})
	if len(respGot) != 1 {
		t.Fatalf("response stream got %d events, want 1", len(respGot))
	}
	if len(reqGot) != 0 {
		t.Fatalf("request stream got %d events, want 0", len(reqGot))
	}

	// An Update event for the same filter (irrespective of correlation)
	// should reach the request stream.
	fb.deliver(binding.EventLike{EventType: topic.Update, EventTypeFilter: "coaty.test.Mock", CorrelationId: "corr-99"})
	if len(reqGot) != 1 {
		t.Fatalf("request stream got %d events, want 1", len(reqGot))
	}
}

func TestObserveResponsePublishErrorIsNotReturnedToObserver(t *testing.T) {
	fb := newFakeBinding()
	r := New(context.Background(), fb, "-", false, nil)

	m, err := r.ObserveResponse("corr-err", topic.Retrieve, func() error { return errors.New("boom") })
	if err != nil {
		t.Fatalf("ObserveResponse() error = %v", err)
	}
	// Subscribe must still succeed; the publish failure only reaches
	// the logger.
	unsub := m.Subscribe(func(binding.EventLike) {})
	defer unsub()
}

func TestDispatchDropsMismatchedResponseKind(t *testing.T) {
	fb := newFakeBinding()
	r := New(context.Background(), fb, "-", false, nil)

	m, err := r.ObserveResponse("corr-mix", topic.Resolve, func() error { return nil })
	if err != nil {
		t.Fatalf("ObserveResponse() error = %v", err)
	}
	var got []binding.EventLike
	unsub := m.Subscribe(func(e binding.EventLike) { got = append(got, e) })
	defer unsub()

	// A Complete carrying the Discover's correlationId is a protocol
	// error; it must be dropped, not delivered.
	fb.deliver(binding.EventLike{EventType: topic.Complete, CorrelationId: "corr-mix"})
	if len(got) != 0 {
		t.Fatalf("mismatched response kind was delivered: %+v", got)
	}

	// The echoed request itself also carries the correlationId and must
	// be silently skipped.
	fb.deliver(binding.EventLike{EventType: topic.Discover, CorrelationId: "corr-mix"})
	if len(got) != 0 {
		t.Fatalf("echoed request was delivered to the response stream: %+v", got)
	}

	fb.deliver(binding.EventLike{EventType: topic.Resolve, CorrelationId: "corr-mix"})
	if len(got) != 1 {
		t.Fatalf("matching Resolve was not delivered, got %d events", len(got))
	}
}

func TestRawRequestStreamMatchesWildcardFilters(t *testing.T) {
	fb := newFakeBinding()
	r := New(context.Background(), fb, "-", false, nil)

	m := r.ObserveRequest(binding.Filter{EventType: topic.Raw, EventTypeFilter: "sensors/+/state"})
	var got []binding.EventLike
	unsub := m.Subscribe(func(e binding.EventLike) { got = append(got, e) })
	defer unsub()

	if fb.subscribeCount() != 1 {
		t.Fatalf("subscribeCount = %d, want 1", fb.subscribeCount())
	}

	fb.deliver(binding.EventLike{EventType: topic.Raw, EventTypeFilter: "sensors/kitchen/state", IsDataRaw: true, Data: []byte("21.5")})
	fb.deliver(binding.EventLike{EventType: topic.Raw, EventTypeFilter: "sensors/kitchen/other", IsDataRaw: true, Data: []byte("x")})

	if len(got) != 1 {
		t.Fatalf("raw stream got %d events, want 1 (only the matching topic)", len(got))
	}
	if got[0].EventTypeFilter != "sensors/kitchen/state" {
		t.Fatalf("delivered topic = %q, want the actual publication topic", got[0].EventTypeFilter)
	}
}
