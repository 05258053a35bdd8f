// Package binding defines the transport-agnostic contract every
// communication transport must implement (component C): join/unjoin,
// publish, subscribe/unsubscribe, and the diagnostic and inbound-event
// streams the Communication Manager consumes. It also provides the
// canonical MQTT implementation (built on Eclipse Paho v2's autopaho)
// and a pluggable NATS implementation, demonstrating that nothing
// above this package depends on a specific transport.
package binding

import (
	"context"
	"fmt"

	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/topic"
)

// State is the Binding connection lifecycle state.
type State int

const (
	Initialized State = iota
	Joining
	Joined
	Unjoining
	Unjoined
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "Initialized"
	case Joining:
		return "Joining"
	case Joined:
		return "Joined"
	case Unjoining:
		return "Unjoining"
	case Unjoined:
		return "Unjoined"
	default:
		return "Unknown"
	}
}

// CommunicationState reflects transport connectivity as observed by
// the Binding.
type CommunicationState int

const (
	Offline CommunicationState = iota
	Online
)

func (s CommunicationState) String() string {
	if s == Online {
		return "Online"
	}
	return "Offline"
}

// EventLike is the serialization-neutral boundary record the Manager
// hands to a Binding for publication, and the shape a Binding
// reconstructs an inbound message into before handing it back. Data
// is either a []byte payload (when IsDataRaw is true — Raw events and
// IoValue events for actors with UseRawIoValues) or a JSON-marshalable
// value (one of the coatyobj *XxxData structs, or an already-decoded
// map for inbound messages); each Binding implementation performs its
// own JSON encoding/decoding of Data, since "serialize the data
// record" is the one place per-variant logic reaches across the
// Manager/Binding boundary.
type EventLike struct {
	EventType       topic.EventType
	EventTypeFilter string
	SourceId        string
	CorrelationId   string
	IsDataRaw       bool
	Data            any
	Options         map[string]any
}

// Filter identifies a subscription at the level the registry tracks
// it: an event type plus an optional type-specific filter value
// (object type / channel id / operation / route) and, for two-way
// event types, an optional correlation id. Leaving EventTypeFilter or
// CorrelationId empty means "any" — translated to the transport's
// wildcard syntax by each Binding implementation.
type Filter struct {
	EventType       topic.EventType
	EventTypeFilter string
	CorrelationId   string
	Namespace       string
	CrossNamespace  bool
}

// Key returns the tuple the subscription registry indexes by. Two
// filters with the same Key address the same logical subscription.
func (f Filter) Key() string {
	return fmt.Sprintf("%d:%s:%s", f.EventType, f.EventTypeFilter, f.CorrelationId)
}

// JoinOptions configures a [Binding.Join] call.
type JoinOptions struct {
	AgentId        string
	Namespace      string
	CrossNamespace bool
	// JoinEvents are published, in order, on every (re-)connect.
	JoinEvents []EventLike
	// UnjoinEvent is registered as the transport's last-will so the
	// broker replays it on ungraceful disconnect, and is also
	// published explicitly by Unjoin on graceful shutdown.
	UnjoinEvent EventLike
}

// InboundHandler is invoked for every decoded inbound message. The
// Manager's subscription registry is the sole installer of this
// callback; implementations must not block for long since a Binding
// typically dispatches inbound messages from its own read loop.
type InboundHandler func(EventLike)

// Diagnostic is a single debug/info/error event emitted by a Binding.
type Diagnostic struct {
	Level   string // "debug", "info", or "error"
	Message string
	Err     error
}

// Binding is the transport-agnostic contract the Communication
// Manager drives. Implementations own the transport socket; no other
// component speaks to the transport directly.
type Binding interface {
	// Join connects and begins publishing JoinOptions.JoinEvents on
	// every (re-)connect, with JoinOptions.UnjoinEvent registered as
	// the last-will. Legal only when State is Initialized or
	// Unjoined.
	Join(ctx context.Context, opts JoinOptions) error

	// Unjoin publishes the unjoin event explicitly, flushes, and
	// disconnects.
	Unjoin(ctx context.Context) error

	// Publish encodes and sends a single event-like record.
	Publish(ctx context.Context, e EventLike) error

	// Subscribe installs a topic-filter subscription. The Manager
	// guarantees at most one Subscribe call per distinct Filter.Key
	// while it is active.
	Subscribe(ctx context.Context, f Filter) error

	// Unsubscribe removes a previously installed subscription.
	Unsubscribe(ctx context.Context, f Filter) error

	// SetInboundHandler registers the callback invoked for every
	// decoded inbound message. Must be called before Join.
	SetInboundHandler(h InboundHandler)

	// CommunicationState is a behavior-subject stream of transport
	// connectivity, always starting at Offline.
	CommunicationState() *reactive.BehaviorSubject[CommunicationState]

	// Diagnostics is a multicast stream of debug/info/error events.
	Diagnostics() *reactive.Multicast[Diagnostic]

	// State reports the current connection lifecycle state.
	State() State
}
