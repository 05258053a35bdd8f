package comm

import (
	"log/slog"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/reactive"
)

// RequestStream is the public-facing wrapper around a registry request
// stream (component D): long-lived, shared across every subscriber,
// installing and tearing down the underlying Binding subscription on
// first-attach/last-detach. Decode errors are logged rather than
// surfaced to sink, since a request stream has no single caller to
// report a malformed inbound message to. A decode reporting ok=false
// drops the event silently — e.g. a Call whose context filter the
// observing agent does not satisfy.
type RequestStream[T any] struct {
	raw    *reactive.Multicast[binding.EventLike]
	decode func(binding.EventLike) (T, bool, error)
	logger *slog.Logger
}

func newRequestStream[T any](raw *reactive.Multicast[binding.EventLike], logger *slog.Logger, decode func(binding.EventLike) (T, bool, error)) *RequestStream[T] {
	return &RequestStream[T]{raw: raw, decode: decode, logger: logger}
}

// Subscribe attaches sink, invoked once per matching inbound event that
// decodes successfully.
func (s *RequestStream[T]) Subscribe(sink func(T)) reactive.Unsubscribe {
	return s.raw.Subscribe(func(e binding.EventLike) {
		v, ok, err := s.decode(e)
		if err != nil {
			s.logger.Error("comm: malformed inbound event", "error", err)
			return
		}
		if !ok {
			return
		}
		sink(v)
	})
}
