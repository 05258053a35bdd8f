package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/topic"
)

// NATSOptions configures [NewNATSBinding].
type NATSOptions struct {
	Url      string
	Name     string
	Username string
	Password string
	Token    string
}

// NATSBinding is a pluggable alternative to [MQTTBinding], demonstrating
// that the Manager's public API does not depend on MQTT specifically.
// NATS subjects are dot-separated where coaty topics are slash
// separated, so every level is translated; "+" becomes the NATS
// single-token wildcard "*". NATS core has no broker-held last-will
// message (that is an MQTT-specific feature built on persistent
// sessions), so the unjoin event here is only ever published
// explicitly by [NATSBinding.Unjoin] — P9 (last-will crash semantics)
// does not hold for this binding unless the application layers an
// external liveness check on top. This is a documented limitation,
// not a bug.
type NATSBinding struct {
	opts   NATSOptions
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	conn     *nats.Conn
	handler  InboundHandler
	joinOpts JoinOptions
	subs     map[string]*nats.Subscription

	commState *reactive.BehaviorSubject[CommunicationState]
	diag      *reactive.Multicast[Diagnostic]
}

func (b *NATSBinding) SetInboundHandler(h InboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *NATSBinding) CommunicationState() *reactive.BehaviorSubject[CommunicationState] {
	return b.commState
}
func (b *NATSBinding) Diagnostics() *reactive.Multicast[Diagnostic] { return b.diag }

func (b *NATSBinding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// NewNATSBinding creates a NATSBinding. A nil logger is replaced with
// [slog.Default].
func NewNATSBinding(opts NATSOptions, logger *slog.Logger) *NATSBinding {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBinding{
		opts:      opts,
		logger:    logger,
		state:     Initialized,
		subs:      make(map[string]*nats.Subscription),
		commState: reactive.NewBehaviorSubject(Offline),
		diag:      reactive.NewMulticast[Diagnostic](nil, nil),
	}
}

func (b *NATSBinding) emit(level, msg string, err error) {
	b.diag.Dispatch(Diagnostic{Level: level, Message: msg, Err: err})
	switch level {
	case "error":
		b.logger.Error(msg, "error", err)
	case "info":
		b.logger.Info(msg)
	default:
		b.logger.Debug(msg)
	}
}

func (b *NATSBinding) Join(ctx context.Context, opts JoinOptions) error {
	b.mu.Lock()
	if b.state != Initialized && b.state != Unjoined {
		s := b.state
		b.mu.Unlock()
		return fmt.Errorf("nats binding: Join illegal from state %s", s)
	}
	b.state = Joining
	b.joinOpts = opts
	b.mu.Unlock()

	natsOpts := []nats.Option{
		nats.Name(b.opts.Name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.commState.Next(Offline)
			if err != nil {
				b.emit("error", "nats binding disconnected", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.mu.Lock()
			b.state = Joined
			b.mu.Unlock()
			b.commState.Next(Online)
			b.emit("info", "nats binding reconnected", nil)
			b.republish(ctx)
			b.resubscribeAll()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			b.commState.Next(Offline)
		}),
	}
	if b.opts.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(b.opts.Username, b.opts.Password))
	}
	if b.opts.Token != "" {
		natsOpts = append(natsOpts, nats.Token(b.opts.Token))
	}

	conn, err := nats.Connect(b.opts.Url, natsOpts...)
	if err != nil {
		b.mu.Lock()
		b.state = Initialized
		b.mu.Unlock()
		return fmt.Errorf("nats binding: connect: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.state = Joined
	b.mu.Unlock()
	b.commState.Next(Online)
	b.emit("info", "nats binding connected", nil)

	b.republish(ctx)
	b.resubscribeAll()
	return nil
}

func (b *NATSBinding) republish(ctx context.Context) {
	b.mu.Lock()
	events := b.joinOpts.JoinEvents
	b.mu.Unlock()
	for _, ev := range events {
		if err := b.Publish(ctx, ev); err != nil {
			b.emit("error", "nats binding join event publish failed", err)
		}
	}
}

func (b *NATSBinding) Unjoin(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Joined {
		s := b.state
		b.mu.Unlock()
		return fmt.Errorf("nats binding: Unjoin illegal from state %s", s)
	}
	b.state = Unjoining
	conn := b.conn
	unjoinEvent := b.joinOpts.UnjoinEvent
	b.mu.Unlock()

	if conn != nil {
		if err := b.Publish(ctx, unjoinEvent); err != nil {
			b.emit("error", "nats binding unjoin publish failed", err)
		}
		_ = conn.Flush()
		conn.Close()
	}

	b.mu.Lock()
	b.state = Unjoined
	b.conn = nil
	b.mu.Unlock()
	b.commState.Next(Offline)
	return nil
}

func (b *NATSBinding) Publish(_ context.Context, e EventLike) error {
	b.mu.Lock()
	conn := b.conn
	agentId := b.joinOpts.AgentId
	namespace := b.joinOpts.Namespace
	b.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("nats binding: not joined")
	}

	if e.EventType == topic.Raw {
		raw, ok := e.Data.([]byte)
		if !ok {
			return fmt.Errorf("nats binding: Raw event data must be []byte")
		}
		return conn.Publish(topicToSubject(e.EventTypeFilter), raw)
	}

	if namespace == "" {
		namespace = "-"
	}
	sourceId := e.SourceId
	if sourceId == "" {
		sourceId = agentId
	}

	wireTopic, err := topic.Encode(topic.Publication{
		Version:         topic.CurrentVersion,
		Namespace:       namespace,
		EventType:       e.EventType,
		EventTypeFilter: e.EventTypeFilter,
		SourceId:        sourceId,
		CorrelationId:   e.CorrelationId,
	})
	if err != nil {
		return err
	}

	var payload []byte
	if e.IsDataRaw {
		raw, ok := e.Data.([]byte)
		if !ok {
			return fmt.Errorf("nats binding: IsDataRaw set but Data is not []byte")
		}
		payload = raw
	} else {
		payload, err = json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("nats binding: marshal event data: %w", err)
		}
	}

	return conn.Publish(topicToSubject(wireTopic), payload)
}

func (b *NATSBinding) Subscribe(_ context.Context, f Filter) error {
	subject, err := wireSubject(f)
	if err != nil {
		return err
	}

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		b.mu.Lock()
		b.subs[subject] = nil
		b.mu.Unlock()
		return nil
	}
	return b.subscribeSubject(subject)
}

func (b *NATSBinding) subscribeSubject(subject string) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		b.dispatchInbound(subjectToTopic(msg.Subject), msg.Data)
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.subs[subject] = sub
	b.mu.Unlock()
	return nil
}

// wireSubject translates a registry-level Filter into the NATS subject
// to subscribe. Raw filters are the raw topic filter run through the
// same slash-to-dot translation Publish applies; everything else goes
// through the topic codec first.
func wireSubject(f Filter) (string, error) {
	if f.EventType == topic.Raw {
		if f.EventTypeFilter == "" {
			return "", fmt.Errorf("nats binding: Raw filter requires a topic")
		}
		return topicToSubject(f.EventTypeFilter), nil
	}
	filterStr, err := topic.BuildFilter(topic.Filter{
		Version:         topic.CurrentVersion,
		Namespace:       f.Namespace,
		CrossNamespace:  f.CrossNamespace,
		EventType:       f.EventType,
		EventTypeFilter: f.EventTypeFilter,
		CorrelationId:   f.CorrelationId,
	})
	if err != nil {
		return "", err
	}
	return topicToSubject(filterStr), nil
}

func (b *NATSBinding) Unsubscribe(_ context.Context, f Filter) error {
	subject, err := wireSubject(f)
	if err != nil {
		return err
	}

	b.mu.Lock()
	sub := b.subs[subject]
	delete(b.subs, subject)
	b.mu.Unlock()
	if sub != nil {
		return sub.Unsubscribe()
	}
	return nil
}

func (b *NATSBinding) resubscribeAll() {
	b.mu.Lock()
	subjects := make([]string, 0, len(b.subs))
	for s := range b.subs {
		subjects = append(subjects, s)
	}
	b.mu.Unlock()
	for _, s := range subjects {
		if err := b.subscribeSubject(s); err != nil {
			b.emit("error", "nats binding resubscribe failed", err)
		}
	}
}

func (b *NATSBinding) dispatchInbound(rawTopic string, payload []byte) {
	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()
	if handler == nil {
		return
	}

	if topic.IsRawTopic(rawTopic) {
		handler(EventLike{
			EventType:       topic.Raw,
			EventTypeFilter: rawTopic,
			IsDataRaw:       true,
			Data:            payload,
		})
		return
	}

	pub, err := topic.Decode(rawTopic)
	if err != nil {
		b.emit("error", "nats binding received undecodable subject", err)
		return
	}

	el := EventLike{
		EventType:       pub.EventType,
		EventTypeFilter: pub.EventTypeFilter,
		SourceId:        pub.SourceId,
		CorrelationId:   pub.CorrelationId,
	}
	if pub.EventType == topic.IoValue {
		el.IsDataRaw = true
		el.Data = payload
	} else {
		var decoded any
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &decoded); err != nil {
				b.emit("error", "nats binding received malformed JSON payload", err)
				return
			}
		}
		el.Data = decoded
	}
	handler(el)
}

var (
	subjectLevelEscaper   = strings.NewReplacer("%", "%25", ".", "%2E")
	subjectLevelUnescaper = strings.NewReplacer("%2E", ".", "%25", "%")
)

// topicToSubject translates a slash-delimited coaty topic (or
// wildcard filter) into a dot-delimited NATS subject, escaping "%" and
// "." inside each level as "%25" and "%2E" and mapping the MQTT "+"
// single-level wildcard onto the NATS "*" equivalent.
func topicToSubject(t string) string {
	levels := strings.Split(t, "/")
	for i, l := range levels {
		levels[i] = strings.ReplaceAll(subjectLevelEscaper.Replace(l), "+", "*")
	}
	return strings.Join(levels, ".")
}

// subjectToTopic is the inverse of topicToSubject, applied to inbound
// message subjects (which never carry wildcards): it splits on "." and
// unescapes "%2E" and "%25" within each token.
func subjectToTopic(s string) string {
	tokens := strings.Split(s, ".")
	for i, tok := range tokens {
		tokens[i] = subjectLevelUnescaper.Replace(tok)
	}
	return strings.Join(tokens, "/")
}
