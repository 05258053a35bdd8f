package comm

import (
	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/iorouting"
	"github.com/coatyio/coaty-go/internal/reactive"
	"github.com/coatyio/coaty-go/internal/topic"
)

// TypeFilter selects which Advertise/Update stream to observe: either
// every object of a well-known CoreType, or every object carrying a
// specific application ObjectType. Exactly one of the two must be set.
type TypeFilter struct {
	CoreType   string
	ObjectType string
}

// filterValue resolves the wire eventTypeFilter this TypeFilter
// observes, applying the same canonical/colon-prefixed distinction
// PublishAdvertise uses when publishing. Observing by an ObjectType
// that happens to be some coreType's canonical value subscribes to the
// plain core-type filter — the only filter such objects are ever
// published under — but that filter also carries every application
// subtype of the same core type, so matchType is returned non-empty
// whenever an ObjectType was requested: the decode closure must drop
// events whose object carries a different ObjectType.
func (f TypeFilter) filterValue() (wireFilter, matchType string, err error) {
	hasCore := f.CoreType != ""
	hasObj := f.ObjectType != ""
	if hasCore == hasObj {
		return "", "", &coatyobj.ValidationError{Field: "TypeFilter", Msg: "exactly one of CoreType or ObjectType must be set"}
	}
	if hasCore {
		canonical, ok := coatyobj.CanonicalObjectType(f.CoreType)
		if !ok {
			return "", "", &coatyobj.ValidationError{Field: "CoreType", Msg: "not a well-known core type"}
		}
		return canonical, "", nil
	}
	if coatyobj.IsCanonicalObjectType(f.ObjectType) {
		return f.ObjectType, f.ObjectType, nil
	}
	return ":" + f.ObjectType, f.ObjectType, nil
}

// ObserveAdvertise returns the request stream of inbound Advertise
// events matching filter.
func (m *Manager) ObserveAdvertise(filter TypeFilter) (*RequestStream[*coatyobj.AdvertiseData], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	fv, matchType, err := filter.filterValue()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Advertise, EventTypeFilter: fv})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*coatyobj.AdvertiseData, bool, error) {
		var d coatyobj.AdvertiseData
		if err := decodeData(e, &d); err != nil {
			return nil, false, err
		}
		if matchType != "" && d.Object.ObjectType != matchType {
			return nil, false, nil
		}
		return &d, true, nil
	}), nil
}

// ObserveDeadvertise returns the request stream of inbound Deadvertise
// events, unfiltered by type since an objectId alone determines what
// to forget.
func (m *Manager) ObserveDeadvertise() (*RequestStream[*coatyobj.DeadvertiseData], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Deadvertise})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*coatyobj.DeadvertiseData, bool, error) {
		var d coatyobj.DeadvertiseData
		if err := decodeData(e, &d); err != nil {
			return nil, false, err
		}
		return &d, true, nil
	}), nil
}

// ObserveChannel returns the request stream of inbound Channel events
// published under channelId.
func (m *Manager) ObserveChannel(channelId string) (*RequestStream[*coatyobj.ChannelData], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Channel, EventTypeFilter: channelId})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*coatyobj.ChannelData, bool, error) {
		var d coatyobj.ChannelData
		if err := decodeData(e, &d); err != nil {
			return nil, false, err
		}
		return &d, true, nil
	}), nil
}

// ObserveDiscover returns the request stream of inbound Discover
// events, each paired with the Resolve responder bound to its
// correlationId.
func (m *Manager) ObserveDiscover() (*RequestStream[*DiscoverRequest], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Discover})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*DiscoverRequest, bool, error) {
		var d coatyobj.DiscoverData
		if err := decodeData(e, &d); err != nil {
			return nil, false, err
		}
		return &DiscoverRequest{
			Data:    d,
			Resolve: m.publishResolveResponder(e.SourceId, e.CorrelationId),
		}, true, nil
	}), nil
}

// ObserveQuery returns the request stream of inbound Query events,
// each paired with the Retrieve responder bound to its correlationId.
func (m *Manager) ObserveQuery() (*RequestStream[*QueryRequest], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Query})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*QueryRequest, bool, error) {
		var d coatyobj.QueryData
		if err := decodeData(e, &d); err != nil {
			return nil, false, err
		}
		return &QueryRequest{
			Data:     d,
			Retrieve: m.publishRetrieve(e.SourceId, e.CorrelationId),
		}, true, nil
	}), nil
}

// ObserveUpdate returns the request stream of inbound Update events
// matching filter, each paired with the Complete responder bound to
// its correlationId.
func (m *Manager) ObserveUpdate(filter TypeFilter) (*RequestStream[*UpdateRequest], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	fv, matchType, err := filter.filterValue()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Update, EventTypeFilter: fv})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*UpdateRequest, bool, error) {
		var d coatyobj.UpdateData
		if err := decodeData(e, &d); err != nil {
			return nil, false, err
		}
		if matchType != "" && d.Object.ObjectType != matchType {
			return nil, false, nil
		}
		return &UpdateRequest{
			Object:   d.Object,
			Complete: m.publishComplete(e.SourceId, e.CorrelationId),
		}, true, nil
	}), nil
}

// ObserveCall returns the request stream of inbound Call events for
// operation, each paired with the Return responder bound to its
// correlationId. A non-nil execContext is evaluated against each
// call's context filter; calls whose filter this agent's context does
// not satisfy are dropped before reaching the observer. With a nil
// execContext every call is delivered and the observer evaluates
// Filter.Matches itself.
func (m *Manager) ObserveCall(operation string, execContext map[string]any) (*RequestStream[*CallRequest], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Call, EventTypeFilter: operation})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*CallRequest, bool, error) {
		var d coatyobj.CallData
		if err := decodeData(e, &d); err != nil {
			return nil, false, err
		}
		if execContext != nil && d.Filter != nil && !d.Filter.Matches(execContext) {
			return nil, false, nil
		}
		return &CallRequest{
			Operation:  operation,
			Parameters: d.Parameters,
			Filter:     d.Filter,
			Return:     m.publishReturn(e.SourceId, e.CorrelationId),
		}, true, nil
	}), nil
}

// ObserveRaw returns the request stream of inbound Raw messages
// matching rawTopic, an arbitrary binding-level topic filter rather
// than an event-model filter (transport wildcards allowed). Each
// emission carries the actual publication topic alongside the opaque
// payload.
func (m *Manager) ObserveRaw(rawTopic string) (*RequestStream[*coatyobj.RawData], error) {
	_, _, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	raw := reg.ObserveRequest(binding.Filter{EventType: topic.Raw, EventTypeFilter: rawTopic})
	return newRequestStream(raw, m.logger, func(e binding.EventLike) (*coatyobj.RawData, bool, error) {
		payload, ok := e.Data.([]byte)
		if !ok {
			return nil, false, &coatyobj.ValidationError{Field: "data", Msg: "Raw event data is not []byte"}
		}
		return &coatyobj.RawData{Topic: e.EventTypeFilter, Payload: payload}, true, nil
	}), nil
}

// ObserveIoValue returns the persistent stream of inbound IO values
// for the local actor identified by actorId.
func (m *Manager) ObserveIoValue(actorId string) (*reactive.Multicast[coatyobj.IoValueData], error) {
	_, _, _, io, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	return io.ObserveIoValue(actorId), nil
}

// ObserveIoState returns the behavior-subject IO-state stream for the
// local source or actor identified by pointId.
func (m *Manager) ObserveIoState(pointId string) (*reactive.BehaviorSubject[iorouting.IoState], error) {
	_, _, _, io, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	return io.ObserveIoState(pointId), nil
}
