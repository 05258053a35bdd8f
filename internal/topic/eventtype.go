// Package topic implements the wire-level topic codec for the
// canonical MQTT binding: encoding and decoding of publication topics,
// construction of subscription filters, and the structural validation
// rules (topic levels, raw topics) that every Binding implementation
// must honor regardless of transport.
package topic

import "fmt"

// EventType identifies one of the eleven communication event patterns.
// The zero value is not a valid event type.
type EventType int

const (
	Advertise EventType = iota + 1
	Deadvertise
	Channel
	Associate
	IoValue
	Discover
	Resolve
	Query
	Retrieve
	Update
	Complete
	Call
	Return
	Raw
)

// levelCode is the three-letter wire code for each event type, per the
// fixed table in the topic format. Raw events never appear in this
// table because a raw topic is, by definition, any topic that does not
// start with the coaty/ prefix and therefore carries no event level at
// all.
var levelCode = map[EventType]string{
	Advertise:   "ADV",
	Deadvertise: "DAD",
	Channel:     "CHN",
	Associate:   "ASC",
	IoValue:     "IOV",
	Discover:    "DSC",
	Resolve:     "RSV",
	Query:       "QRY",
	Retrieve:    "RTV",
	Update:      "UPD",
	Complete:    "CPL",
	Call:        "CLL",
	Return:      "RTN",
}

var codeToType = func() map[string]EventType {
	m := make(map[string]EventType, len(levelCode))
	for t, c := range levelCode {
		m[c] = t
	}
	return m
}()

// oneWay is the set of event types that carry no correlation id and
// expect no response.
var oneWay = map[EventType]bool{
	Advertise:   true,
	Deadvertise: true,
	Channel:     true,
	Associate:   true,
	IoValue:     true,
	Raw:         true,
}

// hasFilter is the set of event types whose topic carries an
// eventTypeFilter segment. IoValue is included because its filter slot
// carries the IO route rather than an object-type-like discriminator.
var hasFilter = map[EventType]bool{
	Advertise: true,
	Channel:   true,
	Associate: true,
	Call:      true,
	Update:    true,
	IoValue:   true,
}

// responseType maps each two-way request event type to the event type
// that answers it.
var responseType = map[EventType]EventType{
	Discover: Resolve,
	Query:    Retrieve,
	Update:   Complete,
	Call:     Return,
}

// IsOneWay reports whether t is a one-way event (Advertise,
// Deadvertise, Channel, Associate, IoValue, Raw).
func IsOneWay(t EventType) bool { return oneWay[t] }

// ResponseTypeFor returns the event type that answers the two-way
// request type t, or ok=false if t is not a request type.
func ResponseTypeFor(t EventType) (EventType, bool) {
	r, ok := responseType[t]
	return r, ok
}

// IsResponseType reports whether t is the response side of a two-way
// pattern (Resolve, Retrieve, Complete, Return).
func IsResponseType(t EventType) bool {
	return t == Resolve || t == Retrieve || t == Complete || t == Return
}

// IsTwoWay reports whether t is a request/response event (Discover,
// Query, Update, Call and their response counterparts).
func IsTwoWay(t EventType) bool { return !oneWay[t] && t != 0 }

// HasEventTypeFilter reports whether t's topic carries an
// eventTypeFilter segment (Advertise, Channel, Associate, Call,
// Update, IoValue).
func HasEventTypeFilter(t EventType) bool { return hasFilter[t] }

// LevelCode returns the three-letter wire code for t, or an error if t
// is not a recognized, encodable event type (Raw has no level code —
// raw topics bypass the coaty/ envelope entirely).
func LevelCode(t EventType) (string, error) {
	c, ok := levelCode[t]
	if !ok {
		return "", fmt.Errorf("topic: event type %v has no wire level code", t)
	}
	return c, nil
}

// EventTypeForCode resolves a three-letter wire code back to its
// EventType, or reports ok=false if the code is not recognized.
func EventTypeForCode(code string) (EventType, bool) {
	t, ok := codeToType[code]
	return t, ok
}

func (t EventType) String() string {
	switch t {
	case Advertise:
		return "Advertise"
	case Deadvertise:
		return "Deadvertise"
	case Channel:
		return "Channel"
	case Associate:
		return "Associate"
	case IoValue:
		return "IoValue"
	case Discover:
		return "Discover"
	case Resolve:
		return "Resolve"
	case Query:
		return "Query"
	case Retrieve:
		return "Retrieve"
	case Update:
		return "Update"
	case Complete:
		return "Complete"
	case Call:
		return "Call"
	case Return:
		return "Return"
	case Raw:
		return "Raw"
	default:
		return "Unknown"
	}
}
