// Package iorouting is the IO routing core (component F): it keeps the
// IO source table and IO actor table, classifies and applies inbound
// Associate events against the agent's
// own local IoNodes, and fans out inbound IoValue messages to the
// associated local actors. It borrows the subscription registry's
// ref-counted request streams (component D) for the one-subscription-
// per-route rule instead of reimplementing subscribe/unsubscribe
// bookkeeping.
package iorouting

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/registry"
	"github.com/coatyio/coaty-go/internal/topic"
)

// IoState is the (hasAssociations, updateRate) pair an IO-state
// observer replays on subscribe and re-emits on every transition.
// UpdateRate is always nil for actors; it is only ever set for sources
// and only when the associating Associate event carried one.
type IoState struct {
	HasAssociations bool
	UpdateRate      *int
}

type sourceRow struct {
	route      string
	actors     map[string]bool
	updateRate *int
}

// Router owns the IO source table, the IO actor table, and the
// per-point IO-state and per-actor value streams for one agent's local
// IoNodes.
type Router struct {
	ctx      context.Context
	b        binding.Binding
	reg      *registry.Registry
	agentId  string
	nodes    []coatyobj.IoNode

	mu          sync.Mutex
	sources     map[string]*sourceRow          // sourceId -> row
	actorTable  map[string]map[string]map[string]bool // route -> actorId -> sourceId set
	actorRoute  map[string]string              // actorId -> current route
	actorRaw    map[string]bool                // actorId -> UseRawIoValues
	routeDetach map[string]reactive.Unsubscribe

	ioState    map[string]*reactive.BehaviorSubject[IoState]
	actorValue map[string]*reactive.Multicast[coatyobj.IoValueData]
}

// New creates a Router for the given local IoNodes. ctx bounds the
// lifetime of any Subscribe/Unsubscribe calls issued indirectly
// through reg as routes gain and lose their first/last actor.
func New(ctx context.Context, b binding.Binding, reg *registry.Registry, agentId string, nodes []coatyobj.IoNode) *Router {
	return &Router{
		ctx:         ctx,
		b:           b,
		reg:         reg,
		agentId:     agentId,
		nodes:       nodes,
		sources:     make(map[string]*sourceRow),
		actorTable:  make(map[string]map[string]map[string]bool),
		actorRoute:  make(map[string]string),
		actorRaw:    make(map[string]bool),
		routeDetach: make(map[string]reactive.Unsubscribe),
		ioState:     make(map[string]*reactive.BehaviorSubject[IoState]),
		actorValue:  make(map[string]*reactive.Multicast[coatyobj.IoValueData]),
	}
}

func (r *Router) isLocalSource(id string) bool {
	for _, n := range r.nodes {
		if n.HasSource(id) {
			return true
		}
	}
	return false
}

func (r *Router) isLocalActor(id string) (coatyobj.IoActor, bool) {
	for _, n := range r.nodes {
		if a, ok := n.Actor(id); ok {
			return a, true
		}
	}
	return coatyobj.IoActor{}, false
}

// HandleAssociate applies one inbound Associate event against the
// local IO tables. Events naming neither a local source nor a local
// actor are ignored.
func (r *Router) HandleAssociate(data *coatyobj.AssociateData) {
	isSource := r.isLocalSource(data.IoSourceId)
	actor, isActor := r.isLocalActor(data.IoActorId)
	if !isSource && !isActor {
		return
	}

	r.mu.Lock()
	if isSource {
		r.updateSourceRowLocked(data.IoSourceId, data.IoActorId, data.AssociatingRoute, data.UpdateRate)
	}
	if isActor {
		r.actorRaw[data.IoActorId] = actor.UseRawIoValues
		r.updateActorRowLocked(data.IoActorId, data.IoSourceId, data.AssociatingRoute)
	}
	r.mu.Unlock()

	if isSource {
		r.emitSourceIoState(data.IoSourceId)
	}
	if isActor {
		r.emitActorIoState(data.IoActorId)
	}
}

func (r *Router) updateSourceRowLocked(sourceId, actorId, route string, updateRate *int) {
	row, exists := r.sources[sourceId]
	if route == "" {
		if !exists {
			return
		}
		delete(row.actors, actorId)
		if len(row.actors) == 0 {
			delete(r.sources, sourceId)
		}
		return
	}

	if exists && row.route != route {
		for a := range row.actors {
			r.disassociateLocked(row.route, a, sourceId)
		}
		row = nil
		exists = false
	}
	if !exists {
		row = &sourceRow{route: route, actors: make(map[string]bool)}
		r.sources[sourceId] = row
	}
	row.actors[actorId] = true
	row.updateRate = updateRate
}

func (r *Router) updateActorRowLocked(actorId, sourceId, route string) {
	if route == "" {
		oldRoute, had := r.actorRoute[actorId]
		if !had {
			return
		}
		r.disassociateLocked(oldRoute, actorId, sourceId)
		return
	}

	oldRoute, had := r.actorRoute[actorId]
	if had && oldRoute != route {
		r.disassociateLocked(oldRoute, actorId, sourceId)
	}

	m, ok := r.actorTable[route]
	if !ok {
		m = make(map[string]map[string]bool)
		r.actorTable[route] = m
	}
	wasFirst := len(m) == 0
	sources, ok := m[actorId]
	if !ok {
		sources = make(map[string]bool)
		m[actorId] = sources
	}
	sources[sourceId] = true
	r.actorRoute[actorId] = route

	if wasFirst {
		r.subscribeRouteLocked(route)
	}
}

// disassociateLocked removes the single (route, actorId, sourceId)
// association, dropping actorId from route once its source set is
// empty and unsubscribing the route once it has no actors left. Must
// be called with r.mu held.
func (r *Router) disassociateLocked(route, actorId, sourceId string) {
	m, ok := r.actorTable[route]
	if !ok {
		return
	}
	sources, ok := m[actorId]
	if !ok {
		return
	}
	delete(sources, sourceId)
	if len(sources) > 0 {
		return
	}
	delete(m, actorId)
	if r.actorRoute[actorId] == route {
		delete(r.actorRoute, actorId)
	}
	if len(m) == 0 {
		delete(r.actorTable, route)
		r.unsubscribeRouteLocked(route)
	}
}

func (r *Router) subscribeRouteLocked(route string) {
	m := r.reg.ObserveRequest(binding.Filter{EventType: topic.IoValue, EventTypeFilter: route})
	detach := m.Subscribe(func(e binding.EventLike) { r.dispatchIoValue(route, e) })
	r.routeDetach[route] = detach
}

func (r *Router) unsubscribeRouteLocked(route string) {
	if detach, ok := r.routeDetach[route]; ok {
		detach()
		delete(r.routeDetach, route)
	}
}

func (r *Router) dispatchIoValue(route string, e binding.EventLike) {
	type delivery struct {
		stream *reactive.Multicast[coatyobj.IoValueData]
		isRaw  bool
	}
	r.mu.Lock()
	var deliveries []delivery
	if m, ok := r.actorTable[route]; ok {
		for id := range m {
			deliveries = append(deliveries, delivery{
				stream: r.valueStreamLocked(id),
				isRaw:  r.actorRaw[id],
			})
		}
	}
	r.mu.Unlock()

	// The wire payload is always opaque bytes; each actor's
	// UseRawIoValues decides whether its observer treats them as raw or
	// as JSON to decode.
	payload, _ := e.Data.([]byte)
	for _, d := range deliveries {
		d.stream.Dispatch(coatyobj.IoValueData{Route: route, Value: payload, IsRaw: d.isRaw})
	}
}

func (r *Router) valueStreamLocked(actorId string) *reactive.Multicast[coatyobj.IoValueData] {
	s, ok := r.actorValue[actorId]
	if !ok {
		s = reactive.NewMulticast[coatyobj.IoValueData](nil, nil)
		r.actorValue[actorId] = s
	}
	return s
}

// ObserveIoValue returns the persistent value stream for a local
// actor. Created lazily on first use and shared across callers.
func (r *Router) ObserveIoValue(actorId string) *reactive.Multicast[coatyobj.IoValueData] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valueStreamLocked(actorId)
}

// ObserveIoState returns the behavior-subject IO-state stream for a
// local source or actor point, created lazily at its zero state
// {false, nil} if this is the first observation.
func (r *Router) ObserveIoState(pointId string) *reactive.BehaviorSubject[IoState] {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.ioState[pointId]
	if !ok {
		s = reactive.NewBehaviorSubject(IoState{})
		r.ioState[pointId] = s
	}
	return s
}

func (r *Router) emitSourceIoState(sourceId string) {
	r.mu.Lock()
	row, ok := r.sources[sourceId]
	var state IoState
	if ok {
		state = IoState{HasAssociations: len(row.actors) > 0, UpdateRate: row.updateRate}
	}
	s := r.ioStateLocked(sourceId)
	r.mu.Unlock()
	s.Next(state)
}

func (r *Router) emitActorIoState(actorId string) {
	r.mu.Lock()
	route, had := r.actorRoute[actorId]
	has := false
	if had {
		if m, ok := r.actorTable[route]; ok {
			has = len(m[actorId]) > 0
		}
	}
	s := r.ioStateLocked(actorId)
	r.mu.Unlock()
	s.Next(IoState{HasAssociations: has})
}

func (r *Router) ioStateLocked(pointId string) *reactive.BehaviorSubject[IoState] {
	s, ok := r.ioState[pointId]
	if !ok {
		s = reactive.NewBehaviorSubject(IoState{})
		r.ioState[pointId] = s
	}
	return s
}

// PublishIoValue publishes value on the active route of local
// IoSource sourceId, or drops it silently if the source has no active
// route — it has not been associated with any actor. With isRaw set,
// value must be []byte and is sent as-is; otherwise value is
// JSON-encoded before it reaches the wire.
func (r *Router) PublishIoValue(ctx context.Context, sourceId string, value any, isRaw bool) error {
	r.mu.Lock()
	row, ok := r.sources[sourceId]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	var payload []byte
	if isRaw {
		raw, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("iorouting: raw IO value for source %s must be []byte", sourceId)
		}
		payload = raw
	} else {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("iorouting: encode IO value for source %s: %w", sourceId, err)
		}
		payload = encoded
	}

	return r.b.Publish(ctx, binding.EventLike{
		EventType:       topic.IoValue,
		EventTypeFilter: row.route,
		SourceId:        r.agentId,
		IsDataRaw:       true,
		Data:            payload,
	})
}

// Reset detaches every route subscription without issuing
// Binding.Unsubscribe calls, for use when the Manager is stopping and
// the Binding is already unjoining.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make(map[string]*sourceRow)
	r.actorTable = make(map[string]map[string]map[string]bool)
	r.actorRoute = make(map[string]string)
	r.actorRaw = make(map[string]bool)
	r.routeDetach = make(map[string]reactive.Unsubscribe)
}
