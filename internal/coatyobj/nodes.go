package coatyobj

import "github.com/coatyio/coaty-go/internal/topic"

// Identity is the CoatyObject that names a running agent container.
// Exactly one Identity exists per container, created at bootstrap and
// held constant until shutdown; its ObjectId is the agentId the
// Binding joins with.
type Identity struct {
	CoatyObject
}

// NewIdentity creates an Identity with a fresh ObjectId. name is
// typically the configured device/agent name.
func NewIdentity(name string) Identity {
	objectType, _ := CanonicalObjectType(CoreTypeIdentity)
	return Identity{CoatyObject{
		ObjectId:   NewObjectId(),
		ObjectType: objectType,
		CoreType:   CoreTypeIdentity,
		Name:       name,
	}}
}

// IoSource is a CoatyObject that can produce IoValue events. A source
// may declare ExternalRoute; the IO routing core does not read it: the
// route carried by an inbound Associate event is the one applied (see
// [Router.HandleAssociate]).
type IoSource struct {
	CoatyObject
	ValueType     string `json:"valueType"`
	ExternalRoute string `json:"externalRoute,omitempty"`
}

// IoActor is a CoatyObject that consumes IoValue events. UseRawIoValues
// selects whether its associated route delivers opaque bytes (true)
// or JSON-decoded values (false).
type IoActor struct {
	CoatyObject
	ValueType      string `json:"valueType"`
	UseRawIoValues bool   `json:"useRawIoValues,omitempty"`
}

// IoNode groups a set of IoSources and IoActors under a context name.
// Name must equal the context name and pass topic-level validation,
// since it is used as the eventTypeFilter of the Associate
// subscription the Manager installs for this node at join time.
type IoNode struct {
	CoatyObject
	IoSources       []IoSource        `json:"ioSources,omitempty"`
	IoActors        []IoActor         `json:"ioActors,omitempty"`
	Characteristics map[string]string `json:"characteristics,omitempty"`
}

// NewIoNode creates an IoNode for the given context name. Returns a
// validation error if contextName fails topic-level validation.
func NewIoNode(contextName string, sources []IoSource, actors []IoActor) (IoNode, error) {
	if !topic.IsValidTopicLevel(contextName) {
		return IoNode{}, &ValidationError{Field: "name", Msg: "context name fails topic-level validation"}
	}
	objectType, _ := CanonicalObjectType(CoreTypeIoNode)
	return IoNode{
		CoatyObject: CoatyObject{
			ObjectId:   NewObjectId(),
			ObjectType: objectType,
			CoreType:   CoreTypeIoNode,
			Name:       contextName,
		},
		IoSources: sources,
		IoActors:  actors,
	}, nil
}

// HasSource reports whether sourceId names one of this node's sources.
func (n IoNode) HasSource(sourceId string) bool {
	for _, s := range n.IoSources {
		if s.ObjectId == sourceId {
			return true
		}
	}
	return false
}

// HasActor reports whether actorId names one of this node's actors.
func (n IoNode) HasActor(actorId string) bool {
	for _, a := range n.IoActors {
		if a.ObjectId == actorId {
			return true
		}
	}
	return false
}

// Actor returns the actor with the given id and true, or a zero value
// and false if this node does not own that actor.
func (n IoNode) Actor(actorId string) (IoActor, bool) {
	for _, a := range n.IoActors {
		if a.ObjectId == actorId {
			return a, true
		}
	}
	return IoActor{}, false
}

// Source returns the source with the given id and true, or a zero
// value and false if this node does not own that source.
func (n IoNode) Source(sourceId string) (IoSource, bool) {
	for _, s := range n.IoSources {
		if s.ObjectId == sourceId {
			return s, true
		}
	}
	return IoSource{}, false
}
