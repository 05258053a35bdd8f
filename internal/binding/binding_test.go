package binding

import (
	"testing"

	"github.com/coatyio/coaty-go/internal/topic"
)

func TestFilterKeyDistinguishesVariants(t *testing.T) {
	a := Filter{EventType: topic.Advertise, EventTypeFilter: "coaty.test.Mock"}
	b := Filter{EventType: topic.Advertise, EventTypeFilter: "coaty.test.Other"}
	if a.Key() == b.Key() {
		t.Errorf("distinct filters produced the same key %q", a.Key())
	}

	c := Filter{EventType: topic.Advertise, EventTypeFilter: "coaty.test.Mock"}
	if a.Key() != c.Key() {
		t.Errorf("identical filters produced different keys: %q vs %q", a.Key(), c.Key())
	}
}

func TestTopicSubjectTranslationRoundTrip(t *testing.T) {
	in := "coaty/3/-/ADV:+/agent-1"
	subject := topicToSubject(in)
	want := "coaty.3.-.ADV:*.agent-1"
	if subject != want {
		t.Errorf("topicToSubject() = %q, want %q", subject, want)
	}

	// subjectToTopic is only ever applied to concrete inbound subjects
	// (no wildcards), so round-trip it on a publication, not a filter.
	pub := "coaty/3/-/ADV:coaty.test.Mock/agent-1"
	if got := subjectToTopic(topicToSubject(pub)); got != pub {
		t.Errorf("round trip = %q, want %q", got, pub)
	}
}

func TestMQTTBindingEncodeTopicAndPayloadJSON(t *testing.T) {
	b := NewMQTTBinding(MQTTOptions{BrokerUrl: "mqtt://localhost:1883"}, nil)
	b.joinOpts = JoinOptions{AgentId: "agent-1", Namespace: "-"}

	wireTopic, payload, err := b.encodeTopicAndPayload(EventLike{
		EventType:       topic.Deadvertise,
		SourceId:        "agent-1",
		IsDataRaw:       false,
		Data:            map[string]any{"objectIds": []string{"x"}},
	})
	if err != nil {
		t.Fatalf("encodeTopicAndPayload() error = %v", err)
	}
	if wireTopic != "coaty/3/-/DAD/agent-1" {
		t.Errorf("wireTopic = %q, want coaty/3/-/DAD/agent-1", wireTopic)
	}
	if string(payload) != `{"objectIds":["x"]}` {
		t.Errorf("payload = %q", payload)
	}
}

func TestMQTTBindingEncodeTopicAndPayloadRaw(t *testing.T) {
	b := NewMQTTBinding(MQTTOptions{BrokerUrl: "mqtt://localhost:1883"}, nil)
	wireTopic, payload, err := b.encodeTopicAndPayload(EventLike{
		EventType:       topic.Raw,
		EventTypeFilter: "sensors/kitchen/state",
		Data:            []byte("42"),
	})
	if err != nil {
		t.Fatalf("encodeTopicAndPayload() error = %v", err)
	}
	if wireTopic != "sensors/kitchen/state" {
		t.Errorf("wireTopic = %q, want raw topic verbatim", wireTopic)
	}
	if string(payload) != "42" {
		t.Errorf("payload = %q, want 42", payload)
	}
}
