package comm

import (
	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/topic"
)

// installJoinTimeObservers subscribes the always-on request observers
// every joined agent keeps alive for its own lifetime: one Associate
// observer per local IoNode's context, and one Discover observer
// resolving local IoNodes and the local Identity.
// Must be called after m.b/m.reg/m.io are set and the Binding has
// joined.
func (m *Manager) installJoinTimeObservers() {
	m.mu.Lock()
	reg, io, nodes, identity := m.reg, m.io, m.ioNodes, m.identity
	m.mu.Unlock()

	var all []func()
	for _, node := range nodes {
		node := node
		stream := reg.ObserveRequest(binding.Filter{EventType: topic.Associate, EventTypeFilter: node.Name})
		detach := stream.Subscribe(func(e binding.EventLike) {
			var data coatyobj.AssociateData
			if err := decodeData(e, &data); err != nil {
				m.logger.Error("comm: malformed inbound Associate event", "error", err)
				return
			}
			io.HandleAssociate(&data)
		})
		all = append(all, func() { detach() })
	}

	discoverStream := reg.ObserveRequest(binding.Filter{EventType: topic.Discover})
	discoverDetach := discoverStream.Subscribe(func(e binding.EventLike) {
		m.respondToJoinTimeDiscover(e, identity, nodes)
	})
	all = append(all, func() { discoverDetach() })

	m.mu.Lock()
	for _, fn := range all {
		m.joinObservers = append(m.joinObservers, fn)
	}
	m.mu.Unlock()
}

func (m *Manager) respondToJoinTimeDiscover(e binding.EventLike, identity coatyobj.Identity, nodes []coatyobj.IoNode) {
	var data coatyobj.DiscoverData
	if err := decodeData(e, &data); err != nil {
		m.logger.Error("comm: malformed inbound Discover event", "error", err)
		return
	}

	if discoverMatchesObject(data, identity.CoatyObject) {
		m.publishResolve(e.SourceId, e.CorrelationId, &identity.CoatyObject, nil, nil)
	}
	for _, node := range nodes {
		if discoverMatchesObject(data, node.CoatyObject) {
			obj := node.CoatyObject
			m.publishResolve(e.SourceId, e.CorrelationId, &obj, nil, nil)
		}
	}
}

// discoverMatchesObject reports whether a Discover request matches
// obj, per the four Discover modes.
func discoverMatchesObject(data coatyobj.DiscoverData, obj coatyobj.CoatyObject) bool {
	switch data.Mode() {
	case coatyobj.DiscoverByObjectId:
		return data.ObjectId == obj.ObjectId
	case coatyobj.DiscoverByExternalId:
		return obj.ExternalId != "" && data.ExternalId == obj.ExternalId && matchesOptionalTypes(data, obj)
	case coatyobj.DiscoverByBoth:
		return data.ObjectId == obj.ObjectId && obj.ExternalId != "" && data.ExternalId == obj.ExternalId
	case coatyobj.DiscoverByType:
		return matchesOptionalTypes(data, obj)
	default:
		return false
	}
}

func matchesOptionalTypes(data coatyobj.DiscoverData, obj coatyobj.CoatyObject) bool {
	if len(data.CoreTypes) > 0 {
		return containsString(data.CoreTypes, obj.CoreType)
	}
	if len(data.ObjectTypes) > 0 {
		return containsString(data.ObjectTypes, obj.ObjectType)
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// publishResolve sends an unsolicited Resolve in response to a
// join-time Discover match. Errors are logged, not returned, since the
// caller is an inbound-event handler with nothing to propagate to.
func (m *Manager) publishResolve(targetSourceId, correlationId string, object *coatyobj.CoatyObject, relatedObjects []coatyobj.CoatyObject, privateData map[string]any) {
	ctx, b, _, _, _, _, err := m.runtime()
	if err != nil {
		return
	}
	ev, err := coatyobj.NewResolveEvent(m.sourceId(), correlationId, object, relatedObjects, privateData)
	if err != nil {
		m.logger.Error("comm: failed to construct join-time Resolve", "error", err)
		return
	}
	if err := b.Publish(ctx, toEventLike(ev)); err != nil {
		m.logger.Error("comm: failed to publish join-time Resolve", "error", err)
	}
}
