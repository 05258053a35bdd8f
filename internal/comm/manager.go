// Package comm implements the Communication Manager (component E): the
// single public surface application code drives — publishX/observeX
// for all eleven event patterns, join/unjoin lifecycle, and the
// operating-state and communication-state behavior streams. It wires
// together the event model (coatyobj), the topic codec indirectly via
// the Binding, the subscription registry (component D), and the IO
// routing core (component F) behind one object per running agent.
package comm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/iorouting"
	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/registry"
)

// OperatingState is the Manager's own lifecycle state, distinct from
// the Binding's connection State and from CommunicationState.
type OperatingState int

const (
	Stopped OperatingState = iota
	Starting
	Started
	Stopping
)

func (s OperatingState) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Started:
		return "Started"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// Options configures one Start call. Binding, if nil, is constructed
// as a default [binding.MQTTBinding] from BrokerUrl/MQTTOptions.
// Merging a partial options override on top of a prior configuration
// is the config package's job: by the time Options reaches Start, it
// is already fully resolved.
type Options struct {
	Binding        binding.Binding
	BrokerUrl      string
	MQTTOptions    *binding.MQTTOptions
	Namespace      string
	CrossNamespace bool
	Identity       coatyobj.Identity
	IoNodes        []coatyobj.IoNode
}

// Manager is a single long-lived object per running agent container;
// it owns no module-level mutable state.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	state   OperatingState
	last    Options
	hasLast bool
	ctx     context.Context
	cancel  context.CancelFunc

	b   binding.Binding
	reg *registry.Registry
	io  *iorouting.Router

	identity  coatyobj.Identity
	ioNodes   []coatyobj.IoNode
	namespace string
	crossNS   bool

	opState   *reactive.BehaviorSubject[OperatingState]
	commState *reactive.BehaviorSubject[binding.CommunicationState]

	commRelay     reactive.Unsubscribe
	joinObservers []reactive.Unsubscribe
}

// New creates a Manager in the Stopped state. A nil logger is replaced
// with [slog.Default].
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		state:     Stopped,
		opState:   reactive.NewBehaviorSubject(Stopped),
		commState: reactive.NewBehaviorSubject(binding.Offline),
	}
}

// ObserveOperatingState returns the behavior-subject stream of
// Stopped/Starting/Started/Stopping transitions.
func (m *Manager) ObserveOperatingState() *reactive.BehaviorSubject[OperatingState] {
	return m.opState
}

// ObserveCommunicationState returns the behavior-subject stream of
// transport connectivity, relayed from the active Binding with
// distinct-until-changed semantics and surviving across restarts.
func (m *Manager) ObserveCommunicationState() *reactive.BehaviorSubject[binding.CommunicationState] {
	return m.commState
}

// Start (re)connects the Manager. If opts is nil and the Manager is
// already Started, Start is a no-op. If opts is nil, the Manager is
// Stopped, and the last Binding used is still in a non-Initialized
// state (i.e. a prior Start/Stop cycle already ran and left transport
// state behind it expects to resume from), Start is also a no-op — a
// bare restart request is not a license to re-join with stale
// resolved options. Otherwise the Manager stops if running and
// (re)starts with opts.
func (m *Manager) Start(ctx context.Context, opts *Options) error {
	m.mu.Lock()
	if opts == nil {
		if m.state == Started {
			m.mu.Unlock()
			return nil
		}
		if m.state == Stopped && m.b != nil && m.b.State() != binding.Initialized {
			m.mu.Unlock()
			return nil
		}
		if !m.hasLast {
			m.mu.Unlock()
			return fmt.Errorf("comm: Start called with no options and no prior configuration to resume")
		}
		resolved := m.last
		opts = &resolved
	}
	wasStarted := m.state == Started
	m.mu.Unlock()

	if wasStarted {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}

	return m.startWith(ctx, *opts)
}

func (m *Manager) startWith(ctx context.Context, opts Options) error {
	m.mu.Lock()
	m.state = Starting
	m.mu.Unlock()
	m.opState.Next(Starting)

	b := opts.Binding
	if b == nil {
		if opts.BrokerUrl == "" && opts.MQTTOptions == nil {
			m.setStopped()
			return fmt.Errorf("comm: no Binding and no BrokerUrl/MQTTOptions to construct the default MQTT binding")
		}
		mqttOpts := binding.MQTTOptions{BrokerUrl: opts.BrokerUrl}
		if opts.MQTTOptions != nil {
			mqttOpts = *opts.MQTTOptions
			if mqttOpts.BrokerUrl == "" {
				mqttOpts.BrokerUrl = opts.BrokerUrl
			}
		}
		b = binding.NewMQTTBinding(mqttOpts, m.logger)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "-"
	}

	runCtx, cancel := context.WithCancel(ctx)
	reg := registry.New(runCtx, b, namespace, opts.CrossNamespace, m.logger)
	io := iorouting.New(runCtx, b, reg, opts.Identity.ObjectId, opts.IoNodes)

	joinEvents, unjoinEvent, err := m.buildJoinEvents(opts.Identity, opts.IoNodes)
	if err != nil {
		cancel()
		m.setStopped()
		return err
	}

	m.mu.Lock()
	m.b, m.reg, m.io = b, reg, io
	m.identity, m.ioNodes = opts.Identity, opts.IoNodes
	m.namespace, m.crossNS = namespace, opts.CrossNamespace
	m.ctx, m.cancel = runCtx, cancel
	m.last, m.hasLast = opts, true
	m.mu.Unlock()

	m.commRelay = relayDistinct(b.CommunicationState(), m.commState)

	if err := b.Join(runCtx, binding.JoinOptions{
		AgentId:        opts.Identity.ObjectId,
		Namespace:      namespace,
		CrossNamespace: opts.CrossNamespace,
		JoinEvents:     joinEvents,
		UnjoinEvent:    unjoinEvent,
	}); err != nil {
		m.commRelay()
		cancel()
		m.setStopped()
		return fmt.Errorf("comm: join failed: %w", err)
	}

	m.installJoinTimeObservers()

	m.mu.Lock()
	m.state = Started
	m.mu.Unlock()
	m.opState.Next(Started)
	return nil
}

// relayDistinct subscribes to src and forwards only value changes
// (including the first observed value) into dst, returning the
// detach function.
func relayDistinct[T comparable](src *reactive.BehaviorSubject[T], dst *reactive.BehaviorSubject[T]) reactive.Unsubscribe {
	first := true
	var last T
	return src.Subscribe(func(v T) {
		if first || v != last {
			first = false
			last = v
			dst.Next(v)
		}
	})
}

func (m *Manager) setStopped() {
	m.mu.Lock()
	m.state = Stopped
	m.mu.Unlock()
	m.opState.Next(Stopped)
}

// Stop tears down all observables and unjoins the Binding. A no-op
// (returns nil) when already Stopped.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == Stopped {
		m.mu.Unlock()
		return nil
	}
	if m.state != Started {
		s := m.state
		m.mu.Unlock()
		return fmt.Errorf("comm: Stop illegal from state %s", s)
	}
	m.state = Stopping
	b, reg, io, cancel := m.b, m.reg, m.io, m.cancel
	observers := m.joinObservers
	m.joinObservers = nil
	relay := m.commRelay
	m.mu.Unlock()
	m.opState.Next(Stopping)

	for _, detach := range observers {
		detach()
	}
	if relay != nil {
		relay()
	}
	if reg != nil {
		reg.Reset()
	}
	if io != nil {
		io.Reset()
	}

	var err error
	if b != nil {
		err = b.Unjoin(ctx)
	}
	if cancel != nil {
		cancel()
	}

	m.mu.Lock()
	m.state = Stopped
	m.mu.Unlock()
	m.opState.Next(Stopped)
	return err
}

func (m *Manager) buildJoinEvents(identity coatyobj.Identity, ioNodes []coatyobj.IoNode) ([]binding.EventLike, binding.EventLike, error) {
	var joinEvents []binding.EventLike

	idAdv, err := coatyobj.NewAdvertiseEvent(identity.ObjectId, identity.CoatyObject, nil)
	if err != nil {
		return nil, binding.EventLike{}, err
	}
	joinEvents = append(joinEvents, toEventLike(idAdv))

	deadvertiseIds := []string{identity.ObjectId}
	for _, node := range ioNodes {
		nodeAdv, err := coatyobj.NewAdvertiseEvent(identity.ObjectId, node.CoatyObject, nil)
		if err != nil {
			return nil, binding.EventLike{}, err
		}
		joinEvents = append(joinEvents, toEventLike(nodeAdv))
		deadvertiseIds = append(deadvertiseIds, node.ObjectId)
	}

	dead, err := coatyobj.NewDeadvertiseEvent(identity.ObjectId, deadvertiseIds)
	if err != nil {
		return nil, binding.EventLike{}, err
	}
	return joinEvents, toEventLike(dead), nil
}

// sourceId returns the locally joined agent's Identity objectId, used
// as every locally-published event's sourceId.
func (m *Manager) sourceId() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity.ObjectId
}

func (m *Manager) runtime() (ctx context.Context, b binding.Binding, reg *registry.Registry, io *iorouting.Router, ns string, crossNS bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Started {
		return nil, nil, nil, nil, "", false, fmt.Errorf("comm: not started")
	}
	return m.ctx, m.b, m.reg, m.io, m.namespace, m.crossNS, nil
}
