// Package registry is the subscription registry (component D): it
// turns the Manager's observeX/publishX calls into Binding
// Subscribe/Unsubscribe calls, tracking exactly two kinds of live
// stream.
//
//   - A request stream is indexed by (eventType, eventTypeFilter) and
//     stays alive across any number of subscribers arriving and
//     leaving over the agent's lifetime — e.g. observing inbound
//     Advertise events for a given object type. The underlying
//     [binding.Binding] subscription is installed on the first
//     observer and torn down on the last. Raw request streams are
//     indexed by their raw topic filter and matched against inbound
//     raw topics with transport wildcard rules instead of exact keys.
//   - A response stream is indexed by a single correlationId and is
//     one-shot: the Binding is subscribed to the response event type
//     pinned to that correlationId and the request event is published
//     lazily, only once a first observer attaches (P3). Once its last
//     observer detaches the subscription is removed and the stream is
//     permanently closed, so a late caller asking to observe the same
//     correlationId again gets a clear error instead of silently
//     missing the response (P4).
//
// Both kinds are built on [reactive.Multicast], which already
// implements the ref-counted onFirst/onLast and closed-rejection
// semantics; this package supplies the indexing and the Binding calls
// that happen at those transitions.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/topic"
)

// responseEntry pairs a live response stream with the event type that
// is allowed to flow into it, so a mismatched response kind for a
// known correlationId can be rejected instead of mis-decoded.
type responseEntry struct {
	stream   *reactive.Multicast[binding.EventLike]
	respType topic.EventType
}

// Registry owns the request and response stream tables for one joined
// agent and installs itself as the Binding's inbound handler.
type Registry struct {
	ctx            context.Context
	b              binding.Binding
	logger         *slog.Logger
	namespace      string
	crossNamespace bool

	mu        sync.Mutex
	requests  map[string]*reactive.Multicast[binding.EventLike]
	raws      map[string]*reactive.Multicast[binding.EventLike] // keyed by raw topic filter
	responses map[string]*responseEntry
	// retired holds every correlationId whose response stream has closed.
	retired map[string]bool
}

// New creates a Registry bound to b and installs its dispatch loop as
// b's inbound handler. ctx bounds the lifetime of any Subscribe or
// Unsubscribe calls the registry issues on the Binding in reaction to
// observer churn; it should be the same context the Manager uses for
// the joined session. A nil logger is replaced with [slog.Default].
func New(ctx context.Context, b binding.Binding, namespace string, crossNamespace bool, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		ctx:            ctx,
		b:              b,
		logger:         logger,
		namespace:      namespace,
		crossNamespace: crossNamespace,
		requests:       make(map[string]*reactive.Multicast[binding.EventLike]),
		raws:           make(map[string]*reactive.Multicast[binding.EventLike]),
		responses:      make(map[string]*responseEntry),
		retired:        make(map[string]bool),
	}
	b.SetInboundHandler(r.dispatch)
	return r
}

// dispatch routes one decoded inbound event to its matching request
// stream (by event type + eventTypeFilter; for raw events, by wildcard
// match against each raw filter) and, if it carries a correlationId,
// to the matching response stream. A message can legitimately match
// both: an agent can be observing all Update events for an object type
// while also awaiting one specific Complete response.
func (r *Registry) dispatch(e binding.EventLike) {
	if e.EventType == topic.Raw {
		r.dispatchRaw(e)
		return
	}

	reqKey := binding.Filter{EventType: e.EventType, EventTypeFilter: e.EventTypeFilter}.Key()

	r.mu.Lock()
	reqStream := r.requests[reqKey]
	var entry *responseEntry
	if e.CorrelationId != "" {
		entry = r.responses[e.CorrelationId]
	}
	r.mu.Unlock()

	if reqStream != nil {
		reqStream.Dispatch(e)
	}
	if entry != nil {
		switch {
		case e.EventType == entry.respType:
			entry.stream.Dispatch(e)
		case topic.IsResponseType(e.EventType):
			r.logger.Error("registry: response event kind does not match request kind; dropped",
				"correlationId", e.CorrelationId, "got", e.EventType, "want", entry.respType)
		default:
			// The echoed request itself, or an unrelated event reusing
			// the id; not a response, so not an error.
		}
	} else if e.CorrelationId != "" && topic.IsResponseType(e.EventType) {
		r.logger.Error("registry: response for unknown correlationId; dropped",
			"correlationId", e.CorrelationId, "eventType", e.EventType)
	}
}

// dispatchRaw fans an inbound raw message (EventTypeFilter holds the
// actual transport topic) out to every raw request stream whose filter
// matches it.
func (r *Registry) dispatchRaw(e binding.EventLike) {
	r.mu.Lock()
	matched := make([]*reactive.Multicast[binding.EventLike], 0, len(r.raws))
	for filter, stream := range r.raws {
		if topic.MatchesFilter(filter, e.EventTypeFilter) {
			matched = append(matched, stream)
		}
	}
	r.mu.Unlock()

	for _, s := range matched {
		s.Dispatch(e)
	}
}

// ObserveRequest returns the long-lived request stream for f,
// subscribing on the Binding the moment the first observer attaches
// and unsubscribing once the last one detaches. Repeated calls for the
// same (EventType, EventTypeFilter) share the same underlying stream
// and Binding subscription. For Raw filters the EventTypeFilter is the
// raw topic filter itself.
func (r *Registry) ObserveRequest(f binding.Filter) *reactive.Multicast[binding.EventLike] {
	r.mu.Lock()
	table := r.requests
	key := f.Key()
	if f.EventType == topic.Raw {
		table = r.raws
		key = f.EventTypeFilter
	}
	if m, ok := table[key]; ok {
		r.mu.Unlock()
		return m
	}

	wire := f
	wire.Namespace = r.namespace
	wire.CrossNamespace = r.crossNamespace

	m := reactive.NewMulticast[binding.EventLike](
		func() {
			if err := r.b.Subscribe(r.ctx, wire); err != nil {
				r.logger.Error("registry: subscribe failed", "eventType", f.EventType, "filter", f.EventTypeFilter, "error", err)
			}
		},
		func() {
			r.mu.Lock()
			delete(table, key)
			r.mu.Unlock()
			if err := r.b.Unsubscribe(r.ctx, wire); err != nil {
				r.logger.Error("registry: unsubscribe failed", "eventType", f.EventType, "filter", f.EventTypeFilter, "error", err)
			}
		},
	)
	table[key] = m
	r.mu.Unlock()
	return m
}

// ObserveResponse returns the one-shot response stream for
// correlationId, answering requests of the kind that respType responds
// to. The moment the first observer attaches, the Binding is
// subscribed to respType pinned to correlationId and publish is
// invoked exactly once (P3's lazy publication); its error, if any, is
// delivered to the logger rather than the caller since by then
// Subscribe has already returned the stream. Once the last observer
// detaches, the subscription is removed and the stream closes
// permanently: a later ObserveResponse call for the same correlationId
// returns an error instead of a fresh, silently-never-fired stream
// (P4).
func (r *Registry) ObserveResponse(correlationId string, respType topic.EventType, publish func() error) (*reactive.Multicast[binding.EventLike], error) {
	r.mu.Lock()
	if r.retired[correlationId] {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry: correlationId %s has already completed; resubscribing is not supported", correlationId)
	}
	if entry, ok := r.responses[correlationId]; ok {
		if entry.stream.Closed() {
			r.mu.Unlock()
			return nil, fmt.Errorf("registry: correlationId %s has already completed; resubscribing is not supported", correlationId)
		}
		r.mu.Unlock()
		return entry.stream, nil
	}

	wire := binding.Filter{
		EventType:      respType,
		CorrelationId:  correlationId,
		Namespace:      r.namespace,
		CrossNamespace: r.crossNamespace,
	}

	var m *reactive.Multicast[binding.EventLike]
	m = reactive.NewMulticast[binding.EventLike](
		func() {
			if err := r.b.Subscribe(r.ctx, wire); err != nil {
				r.logger.Error("registry: response subscribe failed", "correlationId", correlationId, "error", err)
			}
			if err := publish(); err != nil {
				r.logger.Error("registry: lazy publish failed", "correlationId", correlationId, "error", err)
			}
		},
		func() {
			r.mu.Lock()
			delete(r.responses, correlationId)
			r.retired[correlationId] = true
			r.mu.Unlock()
			if err := r.b.Unsubscribe(r.ctx, wire); err != nil {
				r.logger.Error("registry: response unsubscribe failed", "correlationId", correlationId, "error", err)
			}
			m.Close()
		},
	)
	r.responses[correlationId] = &responseEntry{stream: m, respType: respType}
	r.mu.Unlock()
	return m, nil
}

// Reset tears down every live request and response stream without
// issuing Binding Unsubscribe calls, for use when the underlying
// Binding has already disconnected (e.g. on Manager stop). Subsequent
// ObserveResponse calls for any correlationId that was live at the
// time of Reset behave as a fresh correlationId, not a closed one,
// since the in-flight request was never completed.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = make(map[string]*reactive.Multicast[binding.EventLike])
	r.raws = make(map[string]*reactive.Multicast[binding.EventLike])
	r.responses = make(map[string]*responseEntry)
}
