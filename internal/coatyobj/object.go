// Package coatyobj implements the event model (component A): the
// CoatyObject value type and its specializations (Identity, IoNode,
// IoSource, IoActor), the eleven typed communication events built on
// top of them, and the construct-time validation that guarantees an
// event handed to a Binding can never be malformed.
package coatyobj

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/coatyio/coaty-go/internal/topic"
)

// Well-known core types. Application code may define additional
// coreTypes for its own domain objects; these six are the ones the
// communication and IO routing layers recognize structurally.
const (
	CoreTypeCoatyObject = "CoatyObject"
	CoreTypeIdentity    = "Identity"
	CoreTypeIoNode      = "IoNode"
	CoreTypeIoSource    = "IoSource"
	CoreTypeIoActor     = "IoActor"
	CoreTypeIoContext   = "IoContext"
)

// CoatyObject is the base value type every domain payload embeds.
// ObjectId must be a valid UUID (v4 for objects minted by this
// runtime; any well-formed UUID is accepted on decode since the
// originating agent may use a different version). ObjectType must
// pass event-filter validation because it is used verbatim as an
// eventTypeFilter topic segment.
type CoatyObject struct {
	ObjectId       string         `json:"objectId"`
	ObjectType     string         `json:"objectType"`
	CoreType       string         `json:"coreType"`
	Name           string         `json:"name"`
	ParentObjectId string         `json:"parentObjectId,omitempty"`
	ExternalId     string         `json:"externalId,omitempty"`
	IsDeactivated  bool           `json:"isDeactivated,omitempty"`
	Extra          map[string]any `json:"-"`
}

// canonicalObjectType maps each well-known coreType to the objectType
// an object of that exact core type carries when no application
// subtype narrows it further. Advertise/Update publish under both the
// core-type filter and, only when the object's own objectType differs
// from this canonical value, an additional object-type filter.
var canonicalObjectType = map[string]string{
	CoreTypeCoatyObject: "coaty.CoatyObject",
	CoreTypeIdentity:    "coaty.Identity",
	CoreTypeIoNode:      "coaty.IoNode",
	CoreTypeIoSource:    "coaty.IoSource",
	CoreTypeIoActor:     "coaty.IoActor",
	CoreTypeIoContext:   "coaty.IoContext",
}

// CanonicalObjectType returns the default objectType for coreType, and
// ok=false if coreType is not one of the well-known core types.
func CanonicalObjectType(coreType string) (string, bool) {
	t, ok := canonicalObjectType[coreType]
	return t, ok
}

var canonicalObjectTypeSet = func() map[string]bool {
	m := make(map[string]bool, len(canonicalObjectType))
	for _, t := range canonicalObjectType {
		m[t] = true
	}
	return m
}()

// IsCanonicalObjectType reports whether objectType is the canonical
// objectType of some well-known coreType.
func IsCanonicalObjectType(objectType string) bool {
	return canonicalObjectTypeSet[objectType]
}

// NewObjectId returns a fresh UUIDv4 string suitable for ObjectId,
// CorrelationId, or any other identifier required to be a UUIDv4.
func NewObjectId() string {
	return uuid.New().String()
}

// IsValidUUID reports whether s parses as a well-formed UUID of any
// version.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Validate checks the structural invariants of a CoatyObject:
// ObjectId is a UUID, ObjectType passes topic-level validation (it
// doubles as an eventTypeFilter segment), CoreType and Name are
// non-empty.
func (o CoatyObject) Validate() error {
	if !IsValidUUID(o.ObjectId) {
		return &ValidationError{Field: "objectId", Msg: fmt.Sprintf("not a valid UUID: %q", o.ObjectId)}
	}
	if !topic.IsValidTopicLevel(o.ObjectType) {
		return &ValidationError{Field: "objectType", Msg: fmt.Sprintf("fails event-filter validation: %q", o.ObjectType)}
	}
	if o.CoreType == "" {
		return &ValidationError{Field: "coreType", Msg: "must not be empty"}
	}
	if o.Name == "" {
		return &ValidationError{Field: "name", Msg: "must not be empty"}
	}
	return nil
}
