package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// CurrentVersion is the protocol version this codec encodes and the
// version new publication topics are stamped with.
const CurrentVersion = 3

// Publication describes the fields needed to build a single
// publication topic. EventTypeFilter is only consulted (and required
// non-empty) when [HasEventTypeFilter] reports true for EventType —
// this includes IoValue, whose filter slot carries the IO route
// rather than an event-type-name filter. CorrelationId is only
// consulted (and required non-empty) when [IsTwoWay] reports true.
type Publication struct {
	Version         int
	Namespace       string
	EventType       EventType
	EventTypeFilter string
	SourceId        string
	CorrelationId   string
}

// Encode builds a wire-format publication topic string from p, or
// returns a validation error describing the first problem found.
func Encode(p Publication) (string, error) {
	if p.Version <= 0 {
		return "", fmt.Errorf("topic: version must be positive, got %d", p.Version)
	}
	if !IsValidTopicLevel(p.Namespace) {
		return "", fmt.Errorf("topic: invalid namespace %q", p.Namespace)
	}
	if p.Namespace == "+" {
		return "", fmt.Errorf("topic: namespace wildcard is not valid in a publication topic")
	}
	code, err := LevelCode(p.EventType)
	if err != nil {
		return "", err
	}
	if !IsValidTopicLevel(p.SourceId) {
		return "", fmt.Errorf("topic: invalid sourceId %q", p.SourceId)
	}

	level := code
	if HasEventTypeFilter(p.EventType) {
		if !IsValidTopicLevel(p.EventTypeFilter) {
			return "", fmt.Errorf("topic: event type %v requires a valid eventTypeFilter, got %q", p.EventType, p.EventTypeFilter)
		}
		level = code + ":" + p.EventTypeFilter
	}

	var b strings.Builder
	b.WriteString("coaty/")
	b.WriteString(strconv.Itoa(p.Version))
	b.WriteByte('/')
	b.WriteString(p.Namespace)
	b.WriteByte('/')
	b.WriteString(level)
	b.WriteByte('/')
	b.WriteString(p.SourceId)

	if IsTwoWay(p.EventType) {
		if !IsValidTopicLevel(p.CorrelationId) {
			return "", fmt.Errorf("topic: event type %v requires a valid correlationId, got %q", p.EventType, p.CorrelationId)
		}
		b.WriteByte('/')
		b.WriteString(p.CorrelationId)
	}

	full := b.String()
	if len(full) > MaxTopicBytes {
		return "", fmt.Errorf("topic: encoded topic exceeds %d bytes", MaxTopicBytes)
	}
	return full, nil
}

// Decode parses a wire-format publication topic back into a
// [Publication]. It is the inverse of Encode for any topic Encode
// could have produced, and rejects malformed or raw topics.
func Decode(raw string) (*Publication, error) {
	if IsRawTopic(raw) {
		return nil, fmt.Errorf("topic: %q is a raw topic, not a coaty publication topic", raw)
	}
	if len(raw) > MaxTopicBytes {
		return nil, fmt.Errorf("topic: topic exceeds %d bytes", MaxTopicBytes)
	}

	levels := strings.Split(raw, "/")
	// coaty / v / namespace / level[:filter] / sourceId [/ correlationId]
	if len(levels) < 5 || len(levels) > 6 {
		return nil, fmt.Errorf("topic: %q has wrong segment count", raw)
	}

	version, err := strconv.Atoi(levels[1])
	if err != nil || version <= 0 {
		return nil, fmt.Errorf("topic: invalid version segment %q", levels[1])
	}

	namespace := levels[2]
	if !IsValidTopicLevel(namespace) {
		return nil, fmt.Errorf("topic: invalid namespace segment %q", namespace)
	}

	levelSeg := levels[3]
	code, filter, _ := strings.Cut(levelSeg, ":")
	eventType, ok := EventTypeForCode(code)
	if !ok {
		return nil, fmt.Errorf("topic: unrecognized event level code %q", code)
	}
	if HasEventTypeFilter(eventType) {
		if filter == "" || !IsValidTopicLevel(filter) {
			return nil, fmt.Errorf("topic: event type %v requires an eventTypeFilter segment", eventType)
		}
	} else if filter != "" {
		return nil, fmt.Errorf("topic: event type %v must not carry an eventTypeFilter segment", eventType)
	}

	sourceId := levels[4]
	if !IsValidTopicLevel(sourceId) {
		return nil, fmt.Errorf("topic: invalid sourceId segment %q", sourceId)
	}

	p := &Publication{
		Version:         version,
		Namespace:       namespace,
		EventType:       eventType,
		EventTypeFilter: filter,
		SourceId:        sourceId,
	}

	if IsTwoWay(eventType) {
		if len(levels) != 6 {
			return nil, fmt.Errorf("topic: event type %v requires a correlationId segment", eventType)
		}
		corrID := levels[5]
		if !IsValidTopicLevel(corrID) {
			return nil, fmt.Errorf("topic: invalid correlationId segment %q", corrID)
		}
		p.CorrelationId = corrID
	} else if len(levels) != 5 {
		return nil, fmt.Errorf("topic: event type %v must not carry a correlationId segment", eventType)
	}

	return p, nil
}

// IsValidPublicationTopic reports whether t decodes successfully as a
// coaty publication topic.
func IsValidPublicationTopic(t string) bool {
	_, err := Decode(t)
	return err == nil
}

// IsValidIoValueTopic reports whether t decodes successfully as an
// IoValue publication topic specifically.
func IsValidIoValueTopic(t string) bool {
	p, err := Decode(t)
	return err == nil && p.EventType == IoValue
}

// Filter describes a subscription topic filter. The source level is
// always subscribed with the "+" wildcard — a subscriber listens
// across all publishers, never just one. CorrelationId, when set,
// pins the filter to a single response stream; left empty it becomes
// "+". EventTypeFilter follows the same rule as [Publication] when
// non-empty, defaulting to "+" otherwise.
type Filter struct {
	Version         int
	Namespace       string
	CrossNamespace  bool
	EventType       EventType
	EventTypeFilter string
	CorrelationId   string
}

// BuildFilter constructs a subscription topic filter string,
// substituting "+" for any level the caller does not pin to a
// specific value.
func BuildFilter(f Filter) (string, error) {
	if f.Version <= 0 {
		return "", fmt.Errorf("topic: filter version must be positive, got %d", f.Version)
	}
	code, err := LevelCode(f.EventType)
	if err != nil {
		return "", err
	}

	namespace := f.Namespace
	if f.CrossNamespace {
		namespace = "+"
	} else if !IsValidTopicLevel(namespace) {
		return "", fmt.Errorf("topic: invalid filter namespace %q", namespace)
	}

	level := code
	if HasEventTypeFilter(f.EventType) {
		filterVal := f.EventTypeFilter
		if filterVal == "" {
			filterVal = "+"
		} else if !IsValidTopicLevel(filterVal) {
			return "", fmt.Errorf("topic: invalid eventTypeFilter %q", filterVal)
		}
		level = code + ":" + filterVal
	}

	var b strings.Builder
	b.WriteString("coaty/")
	b.WriteString(strconv.Itoa(f.Version))
	b.WriteByte('/')
	b.WriteString(namespace)
	b.WriteByte('/')
	b.WriteString(level)
	b.WriteString("/+")

	if IsTwoWay(f.EventType) {
		corr := "+"
		if f.CorrelationId != "" {
			if !IsValidTopicLevel(f.CorrelationId) {
				return "", fmt.Errorf("topic: invalid correlationId %q", f.CorrelationId)
			}
			corr = f.CorrelationId
		}
		b.WriteByte('/')
		b.WriteString(corr)
	}

	return b.String(), nil
}
