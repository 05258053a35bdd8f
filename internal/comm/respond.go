package comm

import (
	"context"

	"github.com/coatyio/coaty-go/internal/coatyobj"
)

// Responders returned alongside each inbound request carry the
// correlationId closed over so the response event is correctly
// correlated without the observer needing to thread it through by
// hand.

// DiscoverRequest pairs an inbound Discover's data with the Resolve
// responder bound to it.
type DiscoverRequest struct {
	Data    coatyobj.DiscoverData
	Resolve func(ctx context.Context, object *coatyobj.CoatyObject, relatedObjects []coatyobj.CoatyObject, privateData map[string]any) error
}

// QueryRequest pairs an inbound Query's data with the Retrieve
// responder bound to it.
type QueryRequest struct {
	Data     coatyobj.QueryData
	Retrieve func(ctx context.Context, objects []coatyobj.CoatyObject, privateData map[string]any) error
}

// UpdateRequest pairs an inbound Update's data with the Complete
// responder bound to it.
type UpdateRequest struct {
	Object   coatyobj.CoatyObject
	Complete func(ctx context.Context, object coatyobj.CoatyObject, privateData map[string]any) error
}

// CallRequest pairs an inbound Call's data with the Return responder
// bound to it. Filter is the Call's context filter; [Manager.ObserveCall]
// evaluates it against the execution context the observer supplied,
// and a Call whose filter does not match is not delivered (it is
// simply not actionable by this agent).
type CallRequest struct {
	Operation  string
	Parameters any
	Filter     coatyobj.ContextFilter
	Return     func(ctx context.Context, result any, errPayload *coatyobj.ReturnError) error
}

func (m *Manager) publishResolveResponder(targetSourceId, correlationId string) func(ctx context.Context, object *coatyobj.CoatyObject, relatedObjects []coatyobj.CoatyObject, privateData map[string]any) error {
	return func(ctx context.Context, object *coatyobj.CoatyObject, relatedObjects []coatyobj.CoatyObject, privateData map[string]any) error {
		_, b, _, _, _, _, err := m.runtime()
		if err != nil {
			return err
		}
		ev, err := coatyobj.NewResolveEvent(m.sourceId(), correlationId, object, relatedObjects, privateData)
		if err != nil {
			return err
		}
		return b.Publish(ctx, toEventLike(ev))
	}
}

func (m *Manager) publishRetrieve(targetSourceId, correlationId string) func(ctx context.Context, objects []coatyobj.CoatyObject, privateData map[string]any) error {
	return func(ctx context.Context, objects []coatyobj.CoatyObject, privateData map[string]any) error {
		_, b, _, _, _, _, err := m.runtime()
		if err != nil {
			return err
		}
		ev, err := coatyobj.NewRetrieveEvent(m.sourceId(), correlationId, objects, privateData)
		if err != nil {
			return err
		}
		return b.Publish(ctx, toEventLike(ev))
	}
}

func (m *Manager) publishComplete(targetSourceId, correlationId string) func(ctx context.Context, object coatyobj.CoatyObject, privateData map[string]any) error {
	return func(ctx context.Context, object coatyobj.CoatyObject, privateData map[string]any) error {
		_, b, _, _, _, _, err := m.runtime()
		if err != nil {
			return err
		}
		ev, err := coatyobj.NewCompleteEvent(m.sourceId(), correlationId, object, privateData)
		if err != nil {
			return err
		}
		return b.Publish(ctx, toEventLike(ev))
	}
}

func (m *Manager) publishReturn(targetSourceId, correlationId string) func(ctx context.Context, result any, errPayload *coatyobj.ReturnError) error {
	return func(ctx context.Context, result any, errPayload *coatyobj.ReturnError) error {
		_, b, _, _, _, _, err := m.runtime()
		if err != nil {
			return err
		}
		ev, err := coatyobj.NewReturnEvent(m.sourceId(), correlationId, result, errPayload)
		if err != nil {
			return err
		}
		return b.Publish(ctx, toEventLike(ev))
	}
}
