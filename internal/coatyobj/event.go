package coatyobj

import (
	"github.com/coatyio/coaty-go/internal/topic"
)

// Event is the immutable, tagged-sum representation of one of the
// eleven communication event patterns. Data holds the variant-specific
// payload (*AdvertiseData, *DeadvertiseData, ... *ReturnData,
// *RawData, *IoValueData); callers that need the concrete type use
// the typed accessor on the constructing side, since Go events are
// always consumed through the same code path that built them.
type Event struct {
	EventType     topic.EventType
	// EventTypeFilter holds the object-type/channel-id/operation/route
	// value for event types that carry one (Advertise, Channel,
	// Associate, Call, Update, IoValue); empty otherwise.
	EventTypeFilter string
	SourceId        string
	CorrelationId   string
	Data            any
}

// validateChannelId checks that channelId passes topic-level
// validation, since it is used verbatim as the Channel event's
// EventTypeFilter.
func validateChannelId(channelId string) error {
	if !topic.IsValidTopicLevel(channelId) {
		return &ValidationError{Field: "channelId", Msg: "fails topic-level validation"}
	}
	return nil
}

// NewAdvertiseEvent constructs an Advertise event. object must be
// valid; privateData, if non-nil, is carried as-is.
func NewAdvertiseEvent(sourceId string, object CoatyObject, privateData map[string]any) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if err := object.Validate(); err != nil {
		return nil, err
	}
	return &Event{
		EventType:       topic.Advertise,
		EventTypeFilter: object.ObjectType,
		SourceId:        sourceId,
		Data:            &AdvertiseData{Object: object, PrivateData: privateData},
	}, nil
}

// NewDeadvertiseEvent constructs a Deadvertise event. objectIds must
// be non-empty and every entry non-empty.
func NewDeadvertiseEvent(sourceId string, objectIds []string) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if len(objectIds) == 0 {
		return nil, &ValidationError{Field: "objectIds", Msg: "must be non-empty"}
	}
	for _, id := range objectIds {
		if id == "" {
			return nil, &ValidationError{Field: "objectIds", Msg: "entries must be non-empty"}
		}
	}
	return &Event{
		EventType: topic.Deadvertise,
		SourceId:  sourceId,
		Data:      &DeadvertiseData{ObjectIds: objectIds},
	}, nil
}

// NewChannelEvent constructs a Channel event. Exactly one of object
// or objects must be set.
func NewChannelEvent(sourceId, channelId string, object *CoatyObject, objects []CoatyObject, privateData map[string]any) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if err := validateChannelId(channelId); err != nil {
		return nil, err
	}
	if (object == nil) == (len(objects) == 0) {
		return nil, &ValidationError{Field: "data", Msg: "exactly one of object or objects must be set"}
	}
	return &Event{
		EventType:       topic.Channel,
		EventTypeFilter: channelId,
		SourceId:        sourceId,
		Data:            &ChannelData{Object: object, Objects: objects, PrivateData: privateData},
	}, nil
}

// NewAssociateEvent constructs an Associate event, published by an IO
// router to (dis)connect an IoSource/IoActor pair under contextName
// (the IoNode context the pair belongs to). data.AssociatingRoute
// empty signals disassociation.
func NewAssociateEvent(sourceId, contextName string, data AssociateData) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !topic.IsValidTopicLevel(contextName) {
		return nil, &ValidationError{Field: "contextName", Msg: "fails topic-level validation"}
	}
	if !IsValidUUID(data.IoSourceId) {
		return nil, &ValidationError{Field: "ioSourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(data.IoActorId) {
		return nil, &ValidationError{Field: "ioActorId", Msg: "must be a valid UUID"}
	}
	return &Event{
		EventType:       topic.Associate,
		EventTypeFilter: contextName,
		SourceId:        sourceId,
		Data:            &data,
	}, nil
}

// NewDiscoverEvent constructs a Discover event. data must match one of
// the four valid combinations described by [DiscoverMode].
func NewDiscoverEvent(sourceId, correlationId string, data DiscoverData) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if data.Mode() == 0 {
		return nil, &ValidationError{Field: "data", Msg: "objectId/externalId/coreTypes/objectTypes combination is not one of the four valid Discover modes"}
	}
	return &Event{
		EventType:     topic.Discover,
		SourceId:      sourceId,
		CorrelationId: correlationId,
		Data:          &data,
	}, nil
}

// NewResolveEvent constructs a Resolve event responding to a Discover
// with the given correlationId. At least one of object or
// relatedObjects must be set.
func NewResolveEvent(sourceId, correlationId string, object *CoatyObject, relatedObjects []CoatyObject, privateData map[string]any) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if object == nil && len(relatedObjects) == 0 {
		return nil, &ValidationError{Field: "data", Msg: "at least one of object or relatedObjects must be set"}
	}
	return &Event{
		EventType:     topic.Resolve,
		SourceId:      sourceId,
		CorrelationId: correlationId,
		Data:          &ResolveData{Object: object, RelatedObjects: relatedObjects, PrivateData: privateData},
	}, nil
}

// NewQueryEvent constructs a Query event. Exactly one of
// data.ObjectTypes or data.CoreTypes must be set.
func NewQueryEvent(sourceId, correlationId string, data QueryData) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if (len(data.ObjectTypes) > 0) == (len(data.CoreTypes) > 0) {
		return nil, &ValidationError{Field: "data", Msg: "exactly one of objectTypes or coreTypes must be set"}
	}
	return &Event{
		EventType:     topic.Query,
		SourceId:      sourceId,
		CorrelationId: correlationId,
		Data:          &data,
	}, nil
}

// NewRetrieveEvent constructs a Retrieve event responding to a Query.
// objects may be empty (no matches found).
func NewRetrieveEvent(sourceId, correlationId string, objects []CoatyObject, privateData map[string]any) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if objects == nil {
		objects = []CoatyObject{}
	}
	return &Event{
		EventType:     topic.Retrieve,
		SourceId:      sourceId,
		CorrelationId: correlationId,
		Data:          &RetrieveData{Objects: objects, PrivateData: privateData},
	}, nil
}

// NewUpdateEvent constructs an Update event.
func NewUpdateEvent(sourceId, correlationId string, object CoatyObject) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if err := object.Validate(); err != nil {
		return nil, err
	}
	return &Event{
		EventType:       topic.Update,
		EventTypeFilter: object.ObjectType,
		SourceId:        sourceId,
		CorrelationId:   correlationId,
		Data:            &UpdateData{Object: object},
	}, nil
}

// NewCompleteEvent constructs a Complete event responding to an
// Update.
func NewCompleteEvent(sourceId, correlationId string, object CoatyObject, privateData map[string]any) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if err := object.Validate(); err != nil {
		return nil, err
	}
	return &Event{
		EventType:     topic.Complete,
		SourceId:      sourceId,
		CorrelationId: correlationId,
		Data:          &CompleteData{Object: object, PrivateData: privateData},
	}, nil
}

// NewCallEvent constructs a Call event. operation must pass
// event-filter validation; parameters may be nil, a positional slice,
// or a by-name map.
func NewCallEvent(sourceId, correlationId, operation string, parameters any, filter ContextFilter) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if !topic.IsValidTopicLevel(operation) {
		return nil, &ValidationError{Field: "operation", Msg: "fails event-filter validation"}
	}
	return &Event{
		EventType:       topic.Call,
		EventTypeFilter: operation,
		SourceId:        sourceId,
		CorrelationId:   correlationId,
		Data:            &CallData{Operation: operation, Parameters: parameters, Filter: filter},
	}, nil
}

// NewReturnEvent constructs a Return event responding to a Call.
// Exactly one of result or errPayload must be set. Application error
// codes must lie outside [ReturnErrorReservedLow,
// ReturnErrorReservedHigh].
func NewReturnEvent(sourceId, correlationId string, result any, errPayload *ReturnError) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !IsValidUUID(correlationId) {
		return nil, &ValidationError{Field: "correlationId", Msg: "must be a valid UUID"}
	}
	if (result == nil) == (errPayload == nil) {
		return nil, &ValidationError{Field: "data", Msg: "exactly one of result or error must be set"}
	}
	return &Event{
		EventType:     topic.Return,
		SourceId:      sourceId,
		CorrelationId: correlationId,
		Data:          &ReturnData{Result: result, Error: errPayload},
	}, nil
}

// NewRawEvent constructs a Raw event. rawTopic must be non-empty; no
// other check is made on it, here or by the Manager before it is
// handed to the active binding.
func NewRawEvent(sourceId, rawTopic string, payload []byte, options RawOptions) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if rawTopic == "" {
		return nil, &ValidationError{Field: "topic", Msg: "must not be empty"}
	}
	return &Event{
		EventType: topic.Raw,
		SourceId:  sourceId,
		Data:      &RawData{Topic: rawTopic, Payload: payload, Options: options},
	}, nil
}

// NewIoValueEvent constructs an IoValue event for publication on
// route. Manager.PublishIoValue does not use it: the IO routing core
// builds the wire record for an IoValue directly after consulting the
// IO source table.
func NewIoValueEvent(sourceId, route string, value []byte, isRaw bool) (*Event, error) {
	if !IsValidUUID(sourceId) {
		return nil, &ValidationError{Field: "sourceId", Msg: "must be a valid UUID"}
	}
	if !topic.IsValidTopicLevel(route) {
		return nil, &ValidationError{Field: "route", Msg: "fails topic-level validation"}
	}
	return &Event{
		EventType:       topic.IoValue,
		EventTypeFilter: route,
		SourceId:        sourceId,
		Data:            &IoValueData{Route: route, Value: value, IsRaw: isRaw},
	}, nil
}
