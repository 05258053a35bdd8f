package coatyobj

// AdvertiseData is the payload of an Advertise event.
type AdvertiseData struct {
	Object      CoatyObject    `json:"object"`
	PrivateData map[string]any `json:"privateData,omitempty"`
}

// DeadvertiseData is the payload of a Deadvertise event. ObjectIds
// must be non-empty.
type DeadvertiseData struct {
	ObjectIds []string `json:"objectIds"`
}

// ChannelData is the payload of a Channel event. Exactly one of
// Object or Objects is set.
type ChannelData struct {
	Object      *CoatyObject   `json:"object,omitempty"`
	Objects     []CoatyObject  `json:"objects,omitempty"`
	PrivateData map[string]any `json:"privateData,omitempty"`
}

// AssociateData is the payload of an Associate event, published by an
// IO router to connect or disconnect an IoSource/IoActor pair.
// AssociatingRoute, UpdateRate, and IsExternalRoute are omitted
// (zero-value route, nil rate, false) to signal a disassociation of
// the pair rather than an association.
type AssociateData struct {
	IoSourceId       string `json:"ioSourceId"`
	IoActorId        string `json:"ioActorId"`
	AssociatingRoute string `json:"associatingRoute,omitempty"`
	UpdateRate       *int   `json:"updateRate,omitempty"`
	IsExternalRoute  bool   `json:"isExternalRoute,omitempty"`
}

// DiscoverMode identifies which of the four valid Discover
// parameter combinations was used to build the event.
type DiscoverMode int

const (
	// DiscoverByObjectId selects a single object by ObjectId.
	DiscoverByObjectId DiscoverMode = iota + 1
	// DiscoverByExternalId selects objects by ExternalId, optionally
	// narrowed by CoreTypes/ObjectTypes.
	DiscoverByExternalId
	// DiscoverByBoth selects a single object by ObjectId and ExternalId
	// together.
	DiscoverByBoth
	// DiscoverByType selects objects by CoreTypes or ObjectTypes (at
	// most one of the two set).
	DiscoverByType
)

// DiscoverData is the payload of a Discover event. Exactly one of the
// four modes described by [DiscoverMode] applies; see
// [NewDiscoverEvent] for the combination rules.
type DiscoverData struct {
	ObjectId    string   `json:"objectId,omitempty"`
	ExternalId  string   `json:"externalId,omitempty"`
	CoreTypes   []string `json:"coreTypes,omitempty"`
	ObjectTypes []string `json:"objectTypes,omitempty"`
}

// Mode classifies which valid combination of fields this data carries.
// Returns 0 if the combination is not one of the four valid modes.
func (d DiscoverData) Mode() DiscoverMode {
	hasId := d.ObjectId != ""
	hasExt := d.ExternalId != ""
	hasCore := len(d.CoreTypes) > 0
	hasObjType := len(d.ObjectTypes) > 0

	switch {
	case hasId && hasExt && !hasCore && !hasObjType:
		return DiscoverByBoth
	case hasId && !hasExt && !hasCore && !hasObjType:
		return DiscoverByObjectId
	case !hasId && hasExt:
		return DiscoverByExternalId
	case !hasId && !hasExt && !(hasCore && hasObjType):
		if hasCore || hasObjType {
			return DiscoverByType
		}
	}
	return 0
}

// ResolveData is the payload of a Resolve event. At least one of
// Object or RelatedObjects is set.
type ResolveData struct {
	Object         *CoatyObject   `json:"object,omitempty"`
	RelatedObjects []CoatyObject  `json:"relatedObjects,omitempty"`
	PrivateData    map[string]any `json:"privateData,omitempty"`
}

// ObjectFilter is a structural predicate evaluated against a
// CoatyObject's own fields by Query observers. Its shape is left
// opaque to this package (application-defined conditions); only
// presence/absence is validated here.
type ObjectFilter map[string]any

// ObjectJoinCondition describes a join across related objects in a
// Query. Left opaque for the same reason as ObjectFilter.
type ObjectJoinCondition map[string]any

// QueryData is the payload of a Query event. Exactly one of
// ObjectTypes or CoreTypes is set.
type QueryData struct {
	ObjectTypes          []string              `json:"objectTypes,omitempty"`
	CoreTypes            []string              `json:"coreTypes,omitempty"`
	ObjectFilter         ObjectFilter          `json:"objectFilter,omitempty"`
	ObjectJoinConditions []ObjectJoinCondition `json:"objectJoinConditions,omitempty"`
}

// RetrieveData is the payload of a Retrieve event.
type RetrieveData struct {
	Objects     []CoatyObject  `json:"objects"`
	PrivateData map[string]any `json:"privateData,omitempty"`
}

// UpdateData is the payload of an Update event.
type UpdateData struct {
	Object CoatyObject `json:"object"`
}

// CompleteData is the payload of a Complete event.
type CompleteData struct {
	Object      CoatyObject    `json:"object"`
	PrivateData map[string]any `json:"privateData,omitempty"`
}

// ContextFilter is a structural predicate over a CoatyObject used by
// Call to select executors. Left opaque; evaluated by
// [ContextFilter.Matches] against a caller-supplied context map.
type ContextFilter map[string]any

// Matches reports whether ctx satisfies every condition in f. Each
// key in f must be present in ctx with an equal value; range
// conditions are expressed as a two-element []any{min, max} value in
// f, matched as an inclusive bound against a numeric ctx value.
func (f ContextFilter) Matches(ctx map[string]any) bool {
	for key, cond := range f {
		val, ok := ctx[key]
		if !ok {
			return false
		}
		bounds, isRange := cond.([]any)
		if isRange && len(bounds) == 2 {
			if !withinRange(val, bounds[0], bounds[1]) {
				return false
			}
			continue
		}
		if val != cond {
			return false
		}
	}
	return true
}

func withinRange(val, lo, hi any) bool {
	v, ok := toFloat(val)
	if !ok {
		return false
	}
	loF, okLo := toFloat(lo)
	hiF, okHi := toFloat(hi)
	if !okLo || !okHi {
		return false
	}
	return v >= loF && v <= hiF
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CallData is the payload of a Call event. Exactly one of Parameters
// being nil, a positional array, or a by-name map is meaningful; Go's
// type system expresses this as a single `any` field whose dynamic
// type the caller controls, mirroring the source union.
type CallData struct {
	Operation  string        `json:"-"`
	Parameters any           `json:"parameters,omitempty"`
	Filter     ContextFilter `json:"filter,omitempty"`
}

// ReturnError is the error payload of a Return event. Codes in
// [ReturnErrorReservedLow, ReturnErrorReservedHigh] are reserved for
// protocol-level errors; application codes must lie outside that
// range.
type ReturnError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Reserved remote-call error code range, inclusive.
const (
	ReturnErrorReservedLow  = -32768
	ReturnErrorReservedHigh = -32000
	// ReturnErrorInvalidParams is the reserved code for malformed Call
	// parameters.
	ReturnErrorInvalidParams = -32602
)

// ReturnData is the payload of a Return event. Exactly one of Result
// or Error is set.
type ReturnData struct {
	Result any          `json:"result,omitempty"`
	Error  *ReturnError `json:"error,omitempty"`
}

// RawOptions carries binding-specific publication options for Raw
// events (e.g. MQTT QoS/retain overrides). Left opaque to this
// package.
type RawOptions map[string]any

// RawData is the payload of a Raw event: an arbitrary binding-level
// topic and an opaque payload.
type RawData struct {
	Topic   string     `json:"-"`
	Payload []byte     `json:"-"`
	Options RawOptions `json:"-"`
}

// IoValueData carries a single IO value delivery. Route identifies
// the transport-level IO route the value arrived on; Value is the
// payload bytes as received. IsRaw mirrors the receiving actor's
// UseRawIoValues: true means Value is opaque raw data, false means
// Value holds JSON for the observer to decode. Not constructed directly by
// application code in normal use — the IO routing layer builds
// these.
type IoValueData struct {
	Route string `json:"-"`
	Value []byte `json:"-"`
	IsRaw bool   `json:"-"`
}
