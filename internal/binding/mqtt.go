package binding

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/topic"
)

// MQTTOptions configures [NewMQTTBinding]. This mirrors the shape the
// teacher's internal/mqtt.Publisher took from config.MQTTConfig:
// broker URL plus optional credentials and TLS.
type MQTTOptions struct {
	BrokerUrl string
	Username  string
	Password  string
	TLS       *tls.Config
	KeepAlive uint16 // seconds; defaults to 30
	// PublishQoS is the default QoS for every publication, Raw
	// included; a Raw event may override it via EventLike.Options["qos"].
	PublishQoS byte
}

// MQTTBinding is the canonical Binding implementation, connecting via
// Eclipse Paho v2's autopaho connection manager for automatic
// reconnection with last-will support.
type MQTTBinding struct {
	opts   MQTTOptions
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	cm       *autopaho.ConnectionManager
	handler  InboundHandler
	joinOpts JoinOptions
	active   map[string]Filter // keyed by wire-level filter string

	commState *reactive.BehaviorSubject[CommunicationState]
	diag      *reactive.Multicast[Diagnostic]
}

// NewMQTTBinding creates an MQTTBinding. A nil logger is replaced with
// [slog.Default].
func NewMQTTBinding(opts MQTTOptions, logger *slog.Logger) *MQTTBinding {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTBinding{
		opts:      opts,
		logger:    logger,
		state:     Initialized,
		active:    make(map[string]Filter),
		commState: reactive.NewBehaviorSubject(Offline),
		diag:      reactive.NewMulticast[Diagnostic](nil, nil),
	}
}

func (b *MQTTBinding) SetInboundHandler(h InboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *MQTTBinding) CommunicationState() *reactive.BehaviorSubject[CommunicationState] {
	return b.commState
}

func (b *MQTTBinding) Diagnostics() *reactive.Multicast[Diagnostic] {
	return b.diag
}

func (b *MQTTBinding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *MQTTBinding) emit(level, msg string, err error) {
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

// Join connects to the broker. Legal only from Initialized or
// Unjoined.
func (b *MQTTBinding) Join(ctx context.Context, opts JoinOptions) error {
	b.mu.Lock()
	if b.state != Initialized && b.state != Unjoined {
		s := b.state
		b.mu.Unlock()
		return fmt.Errorf("mqtt binding: Join illegal from state %s", s)
	}
	b.state = Joining
	b.joinOpts = opts
	b.mu.Unlock()

	brokerURL, err := url.Parse(b.opts.BrokerUrl)
	if err != nil {
		return fmt.Errorf("mqtt binding: parse broker url: %w", err)
	}

	willTopic, willPayload, err := b.encodeTopicAndPayload(opts.UnjoinEvent)
	if err != nil {
		return fmt.Errorf("mqtt binding: encode unjoin event: %w", err)
	}

	keepAlive := b.opts.KeepAlive
	if keepAlive == 0 {
		keepAlive = 30
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       keepAlive,
		ConnectUsername: b.opts.Username,
		ConnectPassword: []byte(b.opts.Password),
		WillMessage: &paho.WillMessage{
			Topic:   willTopic,
			Payload: willPayload,
			QoS:     1,
			Retain:  false,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.mu.Lock()
			b.state = Joined
			b.mu.Unlock()
			b.commState.Next(Online)
			b.emit("info", "mqtt binding connected", nil)

			publishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, ev := range opts.JoinEvents {
				if err := b.publishWith(publishCtx, cm, ev); err != nil {
					b.emit("error", "mqtt binding join event publish failed", err)
				}
			}
			b.resubscribeAll(publishCtx, cm)
		},
		OnConnectError: func(err error) {
			b.commState.Next(Offline)
			b.emit("error", "mqtt binding connect error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "coaty-" + opts.AgentId,
		},
	}

	if b.opts.TLS != nil {
		cfg.TlsCfg = b.opts.TLS
	} else if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		b.mu.Lock()
		b.state = Initialized
		b.mu.Unlock()
		return fmt.Errorf("mqtt binding: connect: %w", err)
	}

	b.mu.Lock()
	b.cm = cm
	b.mu.Unlock()

	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		b.dispatchInbound(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		b.emit("error", "mqtt binding initial connection timed out, retrying in background", err)
	}
	return nil
}

func (b *MQTTBinding) dispatchInbound(rawTopic string, payload []byte) {
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
		b.emit("error", "mqtt binding received undecodable topic", err)
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
				b.emit("error", "mqtt binding received malformed JSON payload", err)
				return
			}
		}
		el.Data = decoded
	}

	handler(el)
}

// Unjoin publishes the unjoin event, then disconnects.
func (b *MQTTBinding) Unjoin(ctx context.Context) error {
	b.mu.Lock()
	if b.state != Joined {
		s := b.state
		b.mu.Unlock()
		return fmt.Errorf("mqtt binding: Unjoin illegal from state %s", s)
	}
	b.state = Unjoining
	cm := b.cm
	unjoinEvent := b.joinOpts.UnjoinEvent
	b.mu.Unlock()

	if cm != nil {
		if err := b.publishWith(ctx, cm, unjoinEvent); err != nil {
			b.emit("error", "mqtt binding unjoin publish failed", err)
		}
	}

	var err error
	if cm != nil {
		err = cm.Disconnect(ctx)
	}

	b.mu.Lock()
	b.state = Unjoined
	b.cm = nil
	b.mu.Unlock()
	b.commState.Next(Offline)
	return err
}

func (b *MQTTBinding) Publish(ctx context.Context, e EventLike) error {
	b.mu.Lock()
	cm := b.cm
	b.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("mqtt binding: not joined")
	}
	return b.publishWith(ctx, cm, e)
}

func (b *MQTTBinding) publishWith(ctx context.Context, cm *autopaho.ConnectionManager, e EventLike) error {
	wireTopic, payload, err := b.encodeTopicAndPayload(e)
	if err != nil {
		return err
	}

	qos := b.opts.PublishQoS
	retain := false
	if e.Options != nil {
		switch v := e.Options["qos"].(type) {
		case byte:
			qos = v
		case int:
			qos = byte(v)
		case float64:
			qos = byte(v)
		}
		if v, ok := e.Options["retain"].(bool); ok {
			retain = v
		}
	}

	_, err = cm.Publish(ctx, &paho.Publish{
		Topic:   wireTopic,
		Payload: payload,
		QoS:     qos,
		Retain:  retain,
	})
	return err
}

func (b *MQTTBinding) encodeTopicAndPayload(e EventLike) (string, []byte, error) {
	var wireTopic string
	if e.EventType == topic.Raw {
		raw, ok := e.Data.([]byte)
		if !ok {
			return "", nil, fmt.Errorf("mqtt binding: Raw event data must be []byte")
		}
		return e.EventTypeFilter, raw, nil
	}

	b.mu.Lock()
	agentId := b.joinOpts.AgentId
	namespace := b.joinOpts.Namespace
	b.mu.Unlock()
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
		return "", nil, err
	}

	if e.IsDataRaw {
		raw, ok := e.Data.([]byte)
		if !ok {
			return "", nil, fmt.Errorf("mqtt binding: IsDataRaw set but Data is not []byte")
		}
		return wireTopic, raw, nil
	}

	payload, err := json.Marshal(e.Data)
	if err != nil {
		return "", nil, fmt.Errorf("mqtt binding: marshal event data: %w", err)
	}
	return wireTopic, payload, nil
}

func (b *MQTTBinding) Subscribe(ctx context.Context, f Filter) error {
	filterStr, err := b.wireFilter(f)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.active[filterStr] = f
	cm := b.cm
	b.mu.Unlock()

	if cm == nil {
		return nil // queued; installed on next (re-)connect via resubscribeAll
	}
	_, err = cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filterStr, QoS: 0}},
	})
	return err
}

// wireFilter translates a registry-level Filter into the MQTT topic
// filter string to subscribe. Raw filters are the raw topic filter
// verbatim; everything else goes through the topic codec.
func (b *MQTTBinding) wireFilter(f Filter) (string, error) {
	if f.EventType == topic.Raw {
		if f.EventTypeFilter == "" {
			return "", fmt.Errorf("mqtt binding: Raw filter requires a topic")
		}
		return f.EventTypeFilter, nil
	}
	return topic.BuildFilter(topic.Filter{
		Version:         topic.CurrentVersion,
		Namespace:       f.Namespace,
		CrossNamespace:  f.CrossNamespace,
		EventType:       f.EventType,
		EventTypeFilter: f.EventTypeFilter,
		CorrelationId:   f.CorrelationId,
	})
}

func (b *MQTTBinding) Unsubscribe(ctx context.Context, f Filter) error {
	filterStr, err := b.wireFilter(f)
	if err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.active, filterStr)
	cm := b.cm
	b.mu.Unlock()

	if cm == nil {
		return nil
	}
	_, err = cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filterStr}})
	return err
}

// resubscribeAll reinstalls every currently active subscription.
// autopaho does not automatically resubscribe on reconnect, so this
// runs from OnConnectionUp.
func (b *MQTTBinding) resubscribeAll(ctx context.Context, cm *autopaho.ConnectionManager) {
	b.mu.Lock()
	filters := make([]string, 0, len(b.active))
	for f := range b.active {
		filters = append(filters, f)
	}
	b.mu.Unlock()
	if len(filters) == 0 {
		return
	}

	opts := make([]paho.SubscribeOptions, 0, len(filters))
	for _, f := range filters {
		opts = append(opts, paho.SubscribeOptions{Topic: f, QoS: 0})
	}
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		b.emit("error", "mqtt binding resubscribe failed", err)
	}
}
