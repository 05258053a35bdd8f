package coatyobj

import "fmt"

// ValidationError reports a construct-time or decode-time invariant
// violation on an event or object. It is the only error type this
// package returns; callers that need to distinguish validation
// failures from other errors can type-assert against it.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}
