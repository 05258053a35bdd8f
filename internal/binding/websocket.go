package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/topic"
)

// WSOptions configures [NewWSBinding]: a hand-rolled WAMP-style
// pub/sub transport over a single persistent WebSocket connection to
// a relay/hub server. Demonstrates that the Binding contract is not
// MQTT-specific, with WAMP-style pub/sub as a pluggable alternative
// alongside the canonical MQTT one.
type WSOptions struct {
	// HubURL is the ws:// or wss:// endpoint of the pub/sub hub.
	HubURL string
	// ReconnectDelay is the pause between reconnect attempts; defaults
	// to 2 seconds.
	ReconnectDelay time.Duration
}

// wsEnvelope is the wire message exchanged with the hub: publish
// carries Topic+Payload, subscribe/unsubscribe carry only Topic (a
// subscription filter, which may contain "+"-translated wildcards).
type wsEnvelope struct {
	Kind    string `json:"kind"` // "pub", "sub", "unsub"
	Topic   string `json:"topic"`
	Payload []byte `json:"payload,omitempty"`
}

// WSBinding connects to a pub/sub hub over a single long-lived
// WebSocket (dial-then-readLoop connect sequence with no separate
// authentication step, subscription set
// restored on reconnect, one JSON message type dispatched by a
// discriminator field). The hub is assumed to be a bare fan-out
// relay: it has no concept of last-will, so the unjoin event is only
// delivered when WSBinding itself manages to publish it. This is a
// documented limitation of the WS binding, not a bug.
type WSBinding struct {
	opts   WSOptions
	logger *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	state         State
	subscriptions map[string]Filter
	inbound       InboundHandler
	joinOpts      JoinOptions
	cancel        context.CancelFunc

	commState *reactive.BehaviorSubject[CommunicationState]
	diag      *reactive.Multicast[Diagnostic]
}

// NewWSBinding creates a WSBinding in state Initialized.
func NewWSBinding(opts WSOptions, logger *slog.Logger) *WSBinding {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	return &WSBinding{
		opts:          opts,
		logger:        logger,
		state:         Initialized,
		subscriptions: make(map[string]Filter),
		commState:     reactive.NewBehaviorSubject(Offline),
		diag:          reactive.NewMulticast[Diagnostic](nil, nil),
	}
}

func (b *WSBinding) SetInboundHandler(h InboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inbound = h
}

func (b *WSBinding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *WSBinding) CommunicationState() *reactive.BehaviorSubject[CommunicationState] {
	return b.commState
}

func (b *WSBinding) Diagnostics() *reactive.Multicast[Diagnostic] { return b.diag }

func (b *WSBinding) Join(ctx context.Context, opts JoinOptions) error {
	b.mu.Lock()
	if b.state != Initialized && b.state != Unjoined {
		s := b.state
		b.mu.Unlock()
		return fmt.Errorf("binding: Join illegal from state %s", s)
	}
	b.state = Joining
	b.joinOpts = opts
	b.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	if err := b.connect(runCtx); err != nil {
		cancel()
		b.setState(Initialized)
		return err
	}

	go b.reconnectLoop(runCtx)

	b.setState(Joined)
	return nil
}

func (b *WSBinding) connect(ctx context.Context) error {
	u, err := url.Parse(b.opts.HubURL)
	if err != nil {
		return fmt.Errorf("ws binding: parse hub url: %w", err)
	}
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("ws binding: dial: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	go b.readLoop(conn)

	for _, ev := range b.joinOpts.JoinEvents {
		if err := b.Publish(ctx, ev); err != nil {
			b.diag.Dispatch(Diagnostic{Level: "error", Message: "ws binding: join event publish failed", Err: err})
		}
	}
	b.restoreSubscriptions(conn)

	b.commState.Next(Online)
	b.diag.Dispatch(Diagnostic{Level: "info", Message: "ws binding connected to " + b.opts.HubURL})
	return nil
}

func (b *WSBinding) restoreSubscriptions(conn *websocket.Conn) {
	b.mu.Lock()
	filters := make([]string, 0, len(b.subscriptions))
	for wire := range b.subscriptions {
		filters = append(filters, wire)
	}
	b.mu.Unlock()

	for _, wire := range filters {
		_ = conn.WriteJSON(wsEnvelope{Kind: "sub", Topic: wire})
	}
}

// reconnectLoop watches for the connection dropping (signaled by
// readLoop clearing b.conn) and retries until ctx is done.
func (b *WSBinding) reconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(b.opts.ReconnectDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			down := b.conn == nil && b.state == Joined
			b.mu.Unlock()
			if !down {
				continue
			}
			b.commState.Next(Offline)
			since := time.Now()
			if err := b.connect(ctx); err != nil {
				b.diag.Dispatch(Diagnostic{Level: "error", Message: "ws binding: reconnect failed", Err: err})
				continue
			}
			b.diag.Dispatch(Diagnostic{Level: "info", Message: "ws binding: reconnected after " + humanize.Time(since)})
		}
	}
}

func (b *WSBinding) readLoop(conn *websocket.Conn) {
	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
			}
			b.mu.Unlock()
			b.commState.Next(Offline)
			return
		}
		if env.Kind != "pub" {
			continue
		}
		e, err := decodeWSTopic(env.Topic, env.Payload)
		if err != nil {
			b.diag.Dispatch(Diagnostic{Level: "error", Message: "ws binding: malformed inbound topic", Err: err})
			continue
		}
		b.mu.Lock()
		h := b.inbound
		b.mu.Unlock()
		if h != nil {
			h(e)
		}
	}
}

func (b *WSBinding) Unjoin(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Joined {
		s := b.state
		b.mu.Unlock()
		return fmt.Errorf("binding: Unjoin illegal from state %s", s)
	}
	b.state = Unjoining
	conn := b.conn
	unjoin := b.joinOpts.UnjoinEvent
	cancel := b.cancel
	b.mu.Unlock()

	if conn != nil {
		_ = b.Publish(ctx, unjoin)
		conn.Close()
	}
	if cancel != nil {
		cancel()
	}

	b.commState.Next(Offline)
	b.setState(Unjoined)
	return nil
}

func (b *WSBinding) Publish(ctx context.Context, e EventLike) error {
	wireTopic, payload, err := encodeWSTopic(e)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return fmt.Errorf("ws binding: not connected")
	}
	return b.conn.WriteJSON(wsEnvelope{Kind: "pub", Topic: wireTopic, Payload: payload})
}

func (b *WSBinding) Subscribe(ctx context.Context, f Filter) error {
	wire := wsFilterTopic(f)
	b.mu.Lock()
	b.subscriptions[wire] = f
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.WriteJSON(wsEnvelope{Kind: "sub", Topic: wire})
}

func (b *WSBinding) Unsubscribe(ctx context.Context, f Filter) error {
	wire := wsFilterTopic(f)
	b.mu.Lock()
	delete(b.subscriptions, wire)
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.WriteJSON(wsEnvelope{Kind: "unsub", Topic: wire})
}

func (b *WSBinding) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// encodeWSTopic / decodeWSTopic reuse the canonical topic codec's
// event-level table so the hub-facing wire topic stays consistent
// with the MQTT binding's publication topic, minus the coaty/<v>
// prefix the hub doesn't need.
func encodeWSTopic(e EventLike) (string, []byte, error) {
	if e.EventType == topic.Raw {
		raw, ok := e.Data.([]byte)
		if !ok {
			return "", nil, fmt.Errorf("ws binding: Raw event data must be []byte")
		}
		return e.EventTypeFilter, raw, nil
	}
	level, err := topic.LevelCode(e.EventType)
	if err != nil {
		return "", nil, fmt.Errorf("ws binding: %w", err)
	}
	parts := []string{level}
	if topic.HasEventTypeFilter(e.EventType) {
		parts = append(parts, e.EventTypeFilter)
	}
	parts = append(parts, e.SourceId)
	if topic.IsTwoWay(e.EventType) {
		parts = append(parts, e.CorrelationId)
	}

	var payload []byte
	if e.IsDataRaw {
		raw, _ := e.Data.([]byte)
		payload = raw
	} else {
		p, err := json.Marshal(e.Data)
		if err != nil {
			return "", nil, fmt.Errorf("ws binding: encode payload: %w", err)
		}
		payload = p
	}
	return strings.Join(parts, "/"), payload, nil
}

func decodeWSTopic(wireTopic string, payload []byte) (EventLike, error) {
	parts := strings.Split(wireTopic, "/")
	eventType, ok := topic.EventTypeForCode(parts[0])
	if !ok {
		// Any topic not led by a known event level is a raw topic.
		return EventLike{
			EventType:       topic.Raw,
			EventTypeFilter: wireTopic,
			IsDataRaw:       true,
			Data:            payload,
		}, nil
	}
	if len(parts) < 2 {
		return EventLike{}, fmt.Errorf("ws binding: malformed topic %q", wireTopic)
	}
	idx := 1
	var filter string
	if topic.HasEventTypeFilter(eventType) {
		filter = parts[idx]
		idx++
	}
	if idx >= len(parts) {
		return EventLike{}, fmt.Errorf("ws binding: topic %q missing sourceId", wireTopic)
	}
	sourceId := parts[idx]
	idx++
	var correlationId string
	if topic.IsTwoWay(eventType) && idx < len(parts) {
		correlationId = parts[idx]
	}

	// IoValue payloads stay opaque; whether they are raw bytes or JSON
	// is decided per receiving actor, not by the transport.
	if eventType == topic.IoValue {
		return EventLike{
			EventType:       eventType,
			EventTypeFilter: filter,
			SourceId:        sourceId,
			CorrelationId:   correlationId,
			IsDataRaw:       true,
			Data:            payload,
		}, nil
	}

	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		data = payload
	}

	return EventLike{
		EventType:       eventType,
		EventTypeFilter: filter,
		SourceId:        sourceId,
		CorrelationId:   correlationId,
		Data:            data,
	}, nil
}

func wsFilterTopic(f Filter) string {
	if f.EventType == topic.Raw {
		return f.EventTypeFilter
	}
	level, _ := topic.LevelCode(f.EventType)
	parts := []string{level}
	if topic.HasEventTypeFilter(f.EventType) {
		if f.EventTypeFilter == "" {
			parts = append(parts, "+")
		} else {
			parts = append(parts, f.EventTypeFilter)
		}
	}
	parts = append(parts, "+")
	if topic.IsTwoWay(f.EventType) {
		if f.CorrelationId == "" {
			parts = append(parts, "+")
		} else {
			parts = append(parts, f.CorrelationId)
		}
	}
	return strings.Join(parts, "/")
}
