package binding

import (
	"testing"

	"github.com/coatyio/coaty-go/internal/topic"
)

func TestWSTopicEncodeDecodeRoundTrip(t *testing.T) {
	e := EventLike{
		EventType:       topic.Call,
		EventTypeFilter: "switch",
		SourceId:        "agent-1",
		CorrelationId:   "corr-1",
		Data:            map[string]any{"parameters": map[string]any{"state": "on"}},
	}

	wireTopic, payload, err := encodeWSTopic(e)
	if err != nil {
		t.Fatalf("encodeWSTopic() error = %v", err)
	}
	if wireTopic != "CLL/switch/agent-1/corr-1" {
		t.Errorf("wireTopic = %q, want CLL/switch/agent-1/corr-1", wireTopic)
	}

	got, err := decodeWSTopic(wireTopic, payload)
	if err != nil {
		t.Fatalf("decodeWSTopic() error = %v", err)
	}
	if got.EventType != topic.Call || got.EventTypeFilter != "switch" || got.SourceId != "agent-1" || got.CorrelationId != "corr-1" {
		t.Errorf("decoded EventLike = %+v", got)
	}
}

func TestWSTopicOneWayHasNoCorrelationSegment(t *testing.T) {
	e := EventLike{
		EventType: topic.Deadvertise,
		SourceId:  "agent-1",
		Data:      map[string]any{"objectIds": []string{"x"}},
	}
	wireTopic, _, err := encodeWSTopic(e)
	if err != nil {
		t.Fatalf("encodeWSTopic() error = %v", err)
	}
	if wireTopic != "DAD/agent-1" {
		t.Errorf("wireTopic = %q, want DAD/agent-1", wireTopic)
	}
}

func TestWSFilterTopicWildcards(t *testing.T) {
	f := Filter{EventType: topic.Advertise}
	got := wsFilterTopic(f)
	want := "ADV/+/+"
	if got != want {
		t.Errorf("wsFilterTopic() = %q, want %q", got, want)
	}
}

func TestWSTopicRawPassThrough(t *testing.T) {
	wireTopic, payload, err := encodeWSTopic(EventLike{
		EventType:       topic.Raw,
		EventTypeFilter: "alerts",
		Data:            []byte("fire"),
	})
	if err != nil {
		t.Fatalf("encodeWSTopic() error = %v", err)
	}
	if wireTopic != "alerts" || string(payload) != "fire" {
		t.Errorf("encoded raw = (%q, %q), want topic and payload verbatim", wireTopic, payload)
	}

	got, err := decodeWSTopic("alerts", []byte("fire"))
	if err != nil {
		t.Fatalf("decodeWSTopic() error = %v", err)
	}
	if got.EventType != topic.Raw || got.EventTypeFilter != "alerts" || !got.IsDataRaw {
		t.Errorf("decoded raw EventLike = %+v", got)
	}
	if b, ok := got.Data.([]byte); !ok || string(b) != "fire" {
		t.Errorf("decoded raw payload = %v", got.Data)
	}
}
