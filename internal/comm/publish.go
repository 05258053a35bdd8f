package comm

import (
	"context"
	"fmt"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/topic"
)

// PublishAdvertise makes object known to the network. The event is
// published once under object's canonical core-type filter and, only
// if object.ObjectType differs from that canonical
// value (i.e. it is an application subtype), a second time under a
// colon-prefixed object-type filter so observers can distinguish the
// two kinds of filter on the wire.
func (m *Manager) PublishAdvertise(ctx context.Context, object coatyobj.CoatyObject, privateData map[string]any) error {
	_, b, _, _, _, _, err := m.runtime()
	if err != nil {
		return err
	}

	ev, err := coatyobj.NewAdvertiseEvent(m.sourceId(), object, privateData)
	if err != nil {
		return err
	}

	for _, filter := range dualFilters(object) {
		ev.EventTypeFilter = filter
		if err := b.Publish(ctx, toEventLike(ev)); err != nil {
			return fmt.Errorf("comm: publish Advertise under filter %q: %w", filter, err)
		}
	}
	return nil
}

// dualFilters resolves the wire filter(s) an Advertise or Update of
// object is published under: the canonical core-type filter, plus a
// colon-prefixed object-type filter when object's own ObjectType is an
// application subtype of a well-known core type. Objects of an
// application-defined core type are only ever addressable by object
// type.
func dualFilters(object coatyobj.CoatyObject) []string {
	canonical, known := coatyobj.CanonicalObjectType(object.CoreType)
	if !known {
		return []string{":" + object.ObjectType}
	}
	if object.ObjectType == canonical {
		return []string{canonical}
	}
	return []string{canonical, ":" + object.ObjectType}
}

// PublishDeadvertise announces that the objects identified by objectIds
// are no longer available.
func (m *Manager) PublishDeadvertise(ctx context.Context, objectIds []string) error {
	_, b, _, _, _, _, err := m.runtime()
	if err != nil {
		return err
	}
	ev, err := coatyobj.NewDeadvertiseEvent(m.sourceId(), objectIds)
	if err != nil {
		return err
	}
	return b.Publish(ctx, toEventLike(ev))
}

// PublishChannel sends object or objects to every Channel observer
// subscribed to channelId.
func (m *Manager) PublishChannel(ctx context.Context, channelId string, object *coatyobj.CoatyObject, objects []coatyobj.CoatyObject, privateData map[string]any) error {
	_, b, _, _, _, _, err := m.runtime()
	if err != nil {
		return err
	}
	ev, err := coatyobj.NewChannelEvent(m.sourceId(), channelId, object, objects, privateData)
	if err != nil {
		return err
	}
	return b.Publish(ctx, toEventLike(ev))
}

// PublishAssociate (dis)connects an IoSource/IoActor pair under
// contextName. Used by the component that owns IO context association
// decisions (e.g. a context node deciding which actor should currently
// receive a source's values) rather than by the IO routing core itself,
// which only ever consumes Associate events, never originates them.
func (m *Manager) PublishAssociate(ctx context.Context, contextName string, data coatyobj.AssociateData) error {
	_, b, _, _, _, _, err := m.runtime()
	if err != nil {
		return err
	}
	ev, err := coatyobj.NewAssociateEvent(m.sourceId(), contextName, data)
	if err != nil {
		return err
	}
	return b.Publish(ctx, toEventLike(ev))
}

// PublishRaw sends an opaque payload on a binding-specific topic,
// bypassing the event model entirely.
func (m *Manager) PublishRaw(ctx context.Context, rawTopic string, payload []byte, options coatyobj.RawOptions) error {
	_, b, _, _, _, _, err := m.runtime()
	if err != nil {
		return err
	}
	ev, err := coatyobj.NewRawEvent(m.sourceId(), rawTopic, payload, options)
	if err != nil {
		return err
	}
	return b.Publish(ctx, toEventLike(ev))
}

// PublishIoValue publishes value on the active route of local IoSource
// sourceId, silently dropping it if the source currently has no
// associated actor. With isRaw set, value must be []byte and is sent
// unmodified; otherwise value is JSON-encoded.
func (m *Manager) PublishIoValue(ctx context.Context, sourceId string, value any, isRaw bool) error {
	_, _, _, io, _, _, err := m.runtime()
	if err != nil {
		return err
	}
	return io.PublishIoValue(ctx, sourceId, value, isRaw)
}

// PublishDiscover sends a Discover request and returns a response
// stream of every matching Resolve, lazily published only once a
// first observer attaches (P3).
func (m *Manager) PublishDiscover(ctx context.Context, data coatyobj.DiscoverData) (*ResponseStream[*coatyobj.ResolveData], error) {
	_, b, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	correlationId := coatyobj.NewObjectId()
	ev, err := coatyobj.NewDiscoverEvent(m.sourceId(), correlationId, data)
	if err != nil {
		return nil, err
	}
	raw, err := reg.ObserveResponse(correlationId, topic.Resolve, func() error {
		return b.Publish(ctx, toEventLike(ev))
	})
	if err != nil {
		return nil, err
	}
	return newResponseStream(raw, func(e binding.EventLike) (*coatyobj.ResolveData, error) {
		var resp coatyobj.ResolveData
		if err := decodeData(e, &resp); err != nil {
			return nil, err
		}
		if err := validateResolveConsistency(data, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}), nil
}

// PublishQuery sends a Query request and returns a response stream of
// every matching Retrieve.
func (m *Manager) PublishQuery(ctx context.Context, data coatyobj.QueryData) (*ResponseStream[*coatyobj.RetrieveData], error) {
	_, b, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	correlationId := coatyobj.NewObjectId()
	ev, err := coatyobj.NewQueryEvent(m.sourceId(), correlationId, data)
	if err != nil {
		return nil, err
	}
	raw, err := reg.ObserveResponse(correlationId, topic.Retrieve, func() error {
		return b.Publish(ctx, toEventLike(ev))
	})
	if err != nil {
		return nil, err
	}
	return newResponseStream(raw, func(e binding.EventLike) (*coatyobj.RetrieveData, error) {
		var resp coatyobj.RetrieveData
		if err := decodeData(e, &resp); err != nil {
			return nil, err
		}
		if err := validateRetrieveConsistency(data, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}), nil
}

// PublishUpdate sends an Update request and returns a response stream
// of every matching Complete.
func (m *Manager) PublishUpdate(ctx context.Context, object coatyobj.CoatyObject) (*ResponseStream[*coatyobj.CompleteData], error) {
	_, b, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	correlationId := coatyobj.NewObjectId()
	ev, err := coatyobj.NewUpdateEvent(m.sourceId(), correlationId, object)
	if err != nil {
		return nil, err
	}
	// The same dual-filter rule as PublishAdvertise, under one
	// correlationId: observers keyed by either filter see the request.
	filters := dualFilters(object)
	raw, err := reg.ObserveResponse(correlationId, topic.Complete, func() error {
		for _, filter := range filters {
			ev.EventTypeFilter = filter
			if err := b.Publish(ctx, toEventLike(ev)); err != nil {
				return fmt.Errorf("comm: publish Update under filter %q: %w", filter, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	objectId := object.ObjectId
	return newResponseStream(raw, func(e binding.EventLike) (*coatyobj.CompleteData, error) {
		var resp coatyobj.CompleteData
		if err := decodeData(e, &resp); err != nil {
			return nil, err
		}
		if err := validateCompleteConsistency(objectId, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}), nil
}

// PublishCall sends a Call request and returns a response stream of
// every matching Return from an executor whose context satisfied the
// call's filter.
func (m *Manager) PublishCall(ctx context.Context, operation string, parameters any, filter coatyobj.ContextFilter) (*ResponseStream[*coatyobj.ReturnData], error) {
	_, b, reg, _, _, _, err := m.runtime()
	if err != nil {
		return nil, err
	}
	correlationId := coatyobj.NewObjectId()
	ev, err := coatyobj.NewCallEvent(m.sourceId(), correlationId, operation, parameters, filter)
	if err != nil {
		return nil, err
	}
	raw, err := reg.ObserveResponse(correlationId, topic.Return, func() error {
		return b.Publish(ctx, toEventLike(ev))
	})
	if err != nil {
		return nil, err
	}
	return newResponseStream(raw, func(e binding.EventLike) (*coatyobj.ReturnData, error) {
		var resp coatyobj.ReturnData
		if err := decodeData(e, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}), nil
}
