package coatyobj

import "testing"

func validObject() CoatyObject {
	return CoatyObject{
		ObjectId:   NewObjectId(),
		ObjectType: "coaty.test.Mock",
		CoreType:   CoreTypeCoatyObject,
		Name:       "m",
	}
}

func TestNewAdvertiseEventValid(t *testing.T) {
	src := NewObjectId()
	ev, err := NewAdvertiseEvent(src, validObject(), nil)
	if err != nil {
		t.Fatalf("NewAdvertiseEvent() error = %v", err)
	}
	if ev.EventTypeFilter != "coaty.test.Mock" {
		t.Errorf("EventTypeFilter = %q, want object type", ev.EventTypeFilter)
	}
}

func TestNewAdvertiseEventRejectsInvalidObject(t *testing.T) {
	bad := validObject()
	bad.ObjectId = "not-a-uuid"
	if _, err := NewAdvertiseEvent(NewObjectId(), bad, nil); err == nil {
		t.Fatal("expected validation error for bad objectId")
	}
}

func TestDiscoverDataModeTable(t *testing.T) {
	id := NewObjectId()
	cases := []struct {
		name string
		data DiscoverData
		want DiscoverMode
	}{
		{"by id", DiscoverData{ObjectId: id}, DiscoverByObjectId},
		{"by externalId", DiscoverData{ExternalId: "ext-1"}, DiscoverByExternalId},
		{"by externalId with types", DiscoverData{ExternalId: "ext-1", CoreTypes: []string{"Identity"}}, DiscoverByExternalId},
		{"by both", DiscoverData{ObjectId: id, ExternalId: "ext-1"}, DiscoverByBoth},
		{"by coreTypes", DiscoverData{CoreTypes: []string{"Identity"}}, DiscoverByType},
		{"by objectTypes", DiscoverData{ObjectTypes: []string{"coaty.test.Mock"}}, DiscoverByType},
		{"invalid both types", DiscoverData{CoreTypes: []string{"Identity"}, ObjectTypes: []string{"x"}}, 0},
		{"invalid empty", DiscoverData{}, 0},
		{"invalid id with types", DiscoverData{ObjectId: id, CoreTypes: []string{"Identity"}}, 0},
	}
	for _, c := range cases {
		if got := c.data.Mode(); got != c.want {
			t.Errorf("%s: Mode() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNewDiscoverEventRejectsInvalidCombination(t *testing.T) {
	src, corr := NewObjectId(), NewObjectId()
	_, err := NewDiscoverEvent(src, corr, DiscoverData{})
	if err == nil {
		t.Fatal("expected validation error for empty Discover data")
	}
}

func TestNewReturnEventRequiresExactlyOne(t *testing.T) {
	src, corr := NewObjectId(), NewObjectId()
	if _, err := NewReturnEvent(src, corr, nil, nil); err == nil {
		t.Fatal("expected error when neither result nor error is set")
	}
	if _, err := NewReturnEvent(src, corr, "ok", &ReturnError{Code: 1, Message: "x"}); err == nil {
		t.Fatal("expected error when both result and error are set")
	}
	if _, err := NewReturnEvent(src, corr, "ok", nil); err != nil {
		t.Fatalf("unexpected error for valid result-only Return: %v", err)
	}
}

func TestContextFilterMatches(t *testing.T) {
	f := ContextFilter{"floor": []any{6.0, 8.0}}
	if !f.Matches(map[string]any{"floor": 7.0}) {
		t.Error("expected floor=7 to match range [6,8]")
	}
	if f.Matches(map[string]any{"floor": 10.0}) {
		t.Error("expected floor=10 to not match range [6,8]")
	}
	if f.Matches(map[string]any{}) {
		t.Error("expected missing key to not match")
	}
}

func TestIoNodeNameValidation(t *testing.T) {
	if _, err := NewIoNode("bad/name", nil, nil); err == nil {
		t.Fatal("expected error for context name containing '/'")
	}
	node, err := NewIoNode("living-room", nil, nil)
	if err != nil {
		t.Fatalf("NewIoNode() error = %v", err)
	}
	if node.Name != "living-room" {
		t.Errorf("Name = %q, want living-room", node.Name)
	}
}
