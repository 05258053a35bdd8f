package comm

import (
	"fmt"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/reactive"
)

// ResponseStream is the public-facing wrapper around a registry response
// stream for a two-way event pattern (Discover/Resolve, Query/Retrieve,
// Update/Complete, Call/Return). It decodes each inbound
// [binding.EventLike] into the concrete response type T and, per P4,
// rejects a Subscribe call outright once the underlying stream has
// already run its course instead of silently handing back a stream
// that will never fire.
type ResponseStream[T any] struct {
	raw    *reactive.Multicast[binding.EventLike]
	decode func(binding.EventLike) (T, error)
}

func newResponseStream[T any](raw *reactive.Multicast[binding.EventLike], decode func(binding.EventLike) (T, error)) *ResponseStream[T] {
	return &ResponseStream[T]{raw: raw, decode: decode}
}

// Subscribe attaches sink, invoked once per matching response with the
// decoded value or a decode error. Returns an error instead of
// attaching if this stream has already completed (its last subscriber
// detached and the correlationId was retired), matching
// [reactive.Multicast.Closed].
func (s *ResponseStream[T]) Subscribe(sink func(T, error)) (reactive.Unsubscribe, error) {
	if s.raw.Closed() {
		return nil, fmt.Errorf("comm: response stream already completed; resubscribing is not supported")
	}
	detach := s.raw.Subscribe(func(e binding.EventLike) {
		v, err := s.decode(e)
		sink(v, err)
	})
	return detach, nil
}

// Closed reports whether this response stream has already run its
// course.
func (s *ResponseStream[T]) Closed() bool {
	return s.raw.Closed()
}
