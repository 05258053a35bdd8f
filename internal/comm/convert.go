package comm

import (
	"encoding/json"
	"fmt"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
)

// toEventLike converts a constructed, already-validated event into the
// serialization-neutral record the Binding consumes. Raw and IoValue
// events carry their payload as opaque bytes; every other variant's
// data record is handed through as-is for the Binding to JSON-encode.
func toEventLike(ev *coatyobj.Event) binding.EventLike {
	el := binding.EventLike{
		EventType:       ev.EventType,
		EventTypeFilter: ev.EventTypeFilter,
		SourceId:        ev.SourceId,
		CorrelationId:   ev.CorrelationId,
	}
	switch d := ev.Data.(type) {
	case *coatyobj.RawData:
		el.EventTypeFilter = d.Topic
		el.IsDataRaw = true
		el.Data = d.Payload
		if len(d.Options) > 0 {
			el.Options = map[string]any(d.Options)
		}
	case *coatyobj.IoValueData:
		el.IsDataRaw = true
		el.Data = d.Value
	default:
		el.Data = ev.Data
	}
	return el
}

// decodeData unmarshals an inbound EventLike's generic Data (decoded
// by the Binding as a JSON tree of map[string]any) into a concrete
// *XxxData record, via a JSON round trip — the same boundary crossing
// toEventLike performs in reverse. Not used for Raw/IoValue, whose
// Data already arrives as []byte.
func decodeData(e binding.EventLike, target any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("comm: re-marshal inbound data: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("comm: decode inbound data: %w", err)
	}
	return nil
}
