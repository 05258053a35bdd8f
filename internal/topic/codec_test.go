package topic

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Publication{
		{Version: 3, Namespace: "-", EventType: Advertise, EventTypeFilter: "coaty.test.Mock", SourceId: "agent-1"},
		{Version: 3, Namespace: "-", EventType: Deadvertise, SourceId: "agent-1"},
		{Version: 3, Namespace: "prod", EventType: Discover, SourceId: "agent-1", CorrelationId: "corr-1"},
		{Version: 3, Namespace: "-", EventType: Call, EventTypeFilter: "switch", SourceId: "agent-2", CorrelationId: "corr-2"},
		{Version: 3, Namespace: "-", EventType: IoValue, EventTypeFilter: "route-42", SourceId: "agent-3"},
	}

	for _, want := range cases {
		encoded, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%+v) error = %v", want, err)
		}

		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", encoded, err)
		}

		if got.Version != want.Version || got.Namespace != want.Namespace ||
			got.EventType != want.EventType || got.EventTypeFilter != want.EventTypeFilter ||
			got.SourceId != want.SourceId || got.CorrelationId != want.CorrelationId {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestEncodeRejectsMissingCorrelationIdForTwoWay(t *testing.T) {
	_, err := Encode(Publication{Version: 3, Namespace: "-", EventType: Query, SourceId: "agent-1"})
	if err == nil {
		t.Fatal("expected error for missing correlationId on two-way event")
	}
}

func TestEncodeRejectsMissingFilterForAdvertise(t *testing.T) {
	_, err := Encode(Publication{Version: 3, Namespace: "-", EventType: Advertise, SourceId: "agent-1"})
	if err == nil {
		t.Fatal("expected error for missing eventTypeFilter on Advertise")
	}
}

func TestDecodeRejectsRawTopic(t *testing.T) {
	if _, err := Decode("sensors/kitchen/temperature"); err == nil {
		t.Fatal("expected error decoding a raw topic as a publication topic")
	}
}

func TestIsRawTopic(t *testing.T) {
	if IsRawTopic("coaty/3/-/ADV/agent-1") {
		t.Error("coaty/ prefixed topic should not be raw")
	}
	if !IsRawTopic("home/sensor/state") {
		t.Error("non-coaty topic should be raw")
	}
}

func TestBuildFilterWildcardsUnknownLevels(t *testing.T) {
	f, err := BuildFilter(Filter{Version: 3, Namespace: "-", EventType: Advertise})
	if err != nil {
		t.Fatalf("BuildFilter error = %v", err)
	}
	want := "coaty/3/-/ADV:+/+"
	if f != want {
		t.Errorf("BuildFilter() = %q, want %q", f, want)
	}
}

func TestBuildFilterCrossNamespace(t *testing.T) {
	f, err := BuildFilter(Filter{Version: 3, CrossNamespace: true, EventType: Deadvertise})
	if err != nil {
		t.Fatalf("BuildFilter error = %v", err)
	}
	want := "coaty/3/+/DAD/+"
	if f != want {
		t.Errorf("BuildFilter() = %q, want %q", f, want)
	}
}

func TestMatchesFilter(t *testing.T) {
	cases := []struct {
		filter, name string
		want         bool
	}{
		{"sensors/kitchen/state", "sensors/kitchen/state", true},
		{"sensors/+/state", "sensors/kitchen/state", true},
		{"sensors/+/state", "sensors/kitchen/other", false},
		{"sensors/#", "sensors/kitchen/state", true},
		{"sensors/#", "sensors", true},
		{"sensors/+", "sensors/kitchen/state", false},
		{"+/kitchen/#", "sensors/kitchen/state", true},
	}
	for _, c := range cases {
		if got := MatchesFilter(c.filter, c.name); got != c.want {
			t.Errorf("MatchesFilter(%q, %q) = %v, want %v", c.filter, c.name, got, c.want)
		}
	}
}

func TestResponseTypeFor(t *testing.T) {
	pairs := map[EventType]EventType{
		Discover: Resolve,
		Query:    Retrieve,
		Update:   Complete,
		Call:     Return,
	}
	for req, want := range pairs {
		got, ok := ResponseTypeFor(req)
		if !ok || got != want {
			t.Errorf("ResponseTypeFor(%v) = %v, %v; want %v, true", req, got, ok, want)
		}
		if !IsResponseType(want) {
			t.Errorf("IsResponseType(%v) = false, want true", want)
		}
	}
	if _, ok := ResponseTypeFor(Advertise); ok {
		t.Error("ResponseTypeFor(Advertise) reported ok for a one-way event")
	}
}

func TestIsValidTopicLevelRejectsReservedChars(t *testing.T) {
	bad := []string{"", "a#b", "a+b", "a/b", "a\x00b"}
	for _, s := range bad {
		if IsValidTopicLevel(s) {
			t.Errorf("IsValidTopicLevel(%q) = true, want false", s)
		}
	}
	if !IsValidTopicLevel("coaty.test.Mock") {
		t.Error("expected valid topic level to pass")
	}
}
