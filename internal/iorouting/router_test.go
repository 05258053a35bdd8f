package iorouting

import (
	"context"
	"sync"
	"testing"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/registry"
	"github.com/coatyio/coaty-go/internal/topic"
)

type fakeBinding struct {
	mu        sync.Mutex
	handler   binding.InboundHandler
	subs      int
	unsubs    int
	published []binding.EventLike
}

func (f *fakeBinding) Join(context.Context, binding.JoinOptions) error { return nil }
func (f *fakeBinding) Unjoin(context.Context) error                    { return nil }

func (f *fakeBinding) Publish(_ context.Context, e binding.EventLike) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
	return nil
}

func (f *fakeBinding) Subscribe(context.Context, binding.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	return nil
}

func (f *fakeBinding) Unsubscribe(context.Context, binding.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs++
	return nil
}

func (f *fakeBinding) SetInboundHandler(h binding.InboundHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeBinding) CommunicationState() *reactive.BehaviorSubject[binding.CommunicationState] {
	return reactive.NewBehaviorSubject(binding.Offline)
}
func (f *fakeBinding) Diagnostics() *reactive.Multicast[binding.Diagnostic] {
	return reactive.NewMulticast[binding.Diagnostic](nil, nil)
}
func (f *fakeBinding) State() binding.State { return binding.Joined }

func (f *fakeBinding) deliver(e binding.EventLike) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(e)
}

func setup(t *testing.T) (*Router, *fakeBinding, coatyobj.IoSource, coatyobj.IoActor) {
	t.Helper()
	source := coatyobj.IoSource{
		CoatyObject: coatyobj.CoatyObject{ObjectId: coatyobj.NewObjectId(), ObjectType: "coaty.test.Source", CoreType: coatyobj.CoreTypeIoSource, Name: "s"},
		ValueType:   "number",
	}
	actor := coatyobj.IoActor{
		CoatyObject: coatyobj.CoatyObject{ObjectId: coatyobj.NewObjectId(), ObjectType: "coaty.test.Actor", CoreType: coatyobj.CoreTypeIoActor, Name: "a"},
		ValueType:   "number",
	}
	node, err := coatyobj.NewIoNode("living-room", []coatyobj.IoSource{source}, []coatyobj.IoActor{actor})
	if err != nil {
		t.Fatalf("NewIoNode() error = %v", err)
	}

	fb := &fakeBinding{}
	reg := registry.New(context.Background(), fb, "-", false, nil)
	r := New(context.Background(), fb, reg, coatyobj.NewObjectId(), []coatyobj.IoNode{node})
	return r, fb, source, actor
}

func TestAssociateDissociateIoStateAndValueFanOut(t *testing.T) {
	r, fb, source, actor := setup(t)
	rate := 100

	var sourceStates, actorStates []IoState
	r.ObserveIoState(source.ObjectId).Subscribe(func(s IoState) { sourceStates = append(sourceStates, s) })
	r.ObserveIoState(actor.ObjectId).Subscribe(func(s IoState) { actorStates = append(actorStates, s) })

	var values []coatyobj.IoValueData
	r.ObserveIoValue(actor.ObjectId).Subscribe(func(v coatyobj.IoValueData) { values = append(values, v) })

	r.HandleAssociate(&coatyobj.AssociateData{
		IoSourceId: source.ObjectId, IoActorId: actor.ObjectId,
		AssociatingRoute: "r1", UpdateRate: &rate,
	})

	if fb.subs != 1 {
		t.Fatalf("expected exactly one Binding.Subscribe for route r1's first actor, got %d", fb.subs)
	}
	if len(sourceStates) != 2 || !sourceStates[1].HasAssociations || sourceStates[1].UpdateRate == nil || *sourceStates[1].UpdateRate != 100 {
		t.Fatalf("source IO-state after associate = %+v, want replay + (true, 100)", sourceStates)
	}
	if len(actorStates) != 2 || !actorStates[1].HasAssociations {
		t.Fatalf("actor IO-state after associate = %+v, want replay + (true, _)", actorStates)
	}

	if err := r.PublishIoValue(context.Background(), source.ObjectId, []byte("42"), true); err != nil {
		t.Fatalf("PublishIoValue() error = %v", err)
	}
	fb.deliver(binding.EventLike{EventType: topic.IoValue, EventTypeFilter: "r1", IsDataRaw: true, Data: []byte("42")})
	if len(values) != 1 || string(values[0].Value) != "42" {
		t.Fatalf("actor value stream = %+v, want one delivery of 42", values)
	}

	r.HandleAssociate(&coatyobj.AssociateData{IoSourceId: source.ObjectId, IoActorId: actor.ObjectId})

	if fb.unsubs != 1 {
		t.Fatalf("expected exactly one Binding.Unsubscribe once route r1 loses its last actor, got %d", fb.unsubs)
	}
	if len(sourceStates) != 3 || sourceStates[2].HasAssociations {
		t.Fatalf("source IO-state after disassociate = %+v, want hasAssociations=false", sourceStates)
	}
	if len(actorStates) != 3 || actorStates[2].HasAssociations {
		t.Fatalf("actor IO-state after disassociate = %+v, want hasAssociations=false", actorStates)
	}

	fb.deliver(binding.EventLike{EventType: topic.IoValue, EventTypeFilter: "r1", IsDataRaw: true, Data: []byte("99")})
	if len(values) != 1 {
		t.Fatalf("expected no further deliveries after disassociation, got %d", len(values))
	}
}

func TestHandleAssociateIgnoresUnrelatedPair(t *testing.T) {
	r, fb, _, _ := setup(t)
	r.HandleAssociate(&coatyobj.AssociateData{
		IoSourceId: coatyobj.NewObjectId(), IoActorId: coatyobj.NewObjectId(), AssociatingRoute: "r2",
	})
	if fb.subs != 0 {
		t.Fatalf("expected no subscription for a pair naming no local source/actor, got %d subs", fb.subs)
	}
}

func TestPublishIoValueDropsWithoutActiveRoute(t *testing.T) {
	r, fb, source, _ := setup(t)
	if err := r.PublishIoValue(context.Background(), source.ObjectId, []byte("x"), true); err != nil {
		t.Fatalf("PublishIoValue() on unassociated source should silently succeed, got error = %v", err)
	}
	if len(fb.published) != 0 {
		t.Fatalf("expected nothing on the wire for an unassociated source, got %d publications", len(fb.published))
	}
}

func TestPublishIoValueEncodesNonRawValues(t *testing.T) {
	r, fb, source, actor := setup(t)
	r.HandleAssociate(&coatyobj.AssociateData{
		IoSourceId: source.ObjectId, IoActorId: actor.ObjectId, AssociatingRoute: "r1",
	})

	if err := r.PublishIoValue(context.Background(), source.ObjectId, map[string]any{"temp": 21.5}, false); err != nil {
		t.Fatalf("PublishIoValue() error = %v", err)
	}
	fb.mu.Lock()
	published := append([]binding.EventLike(nil), fb.published...)
	fb.mu.Unlock()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	last := published[0]
	if last.EventTypeFilter != "r1" {
		t.Fatalf("published on route %q, want r1", last.EventTypeFilter)
	}
	if got, _ := last.Data.([]byte); string(got) != `{"temp":21.5}` {
		t.Fatalf("payload = %q, want the JSON encoding of the value", last.Data)
	}

	// A raw publication requires bytes.
	if err := r.PublishIoValue(context.Background(), source.ObjectId, 42, true); err == nil {
		t.Fatal("expected an error for a raw publication whose value is not []byte")
	}
}
