package generic

import (
	"context"

	"github.com/lawrencejones/sinkrouter/pkg/sinks"
)

// MemorySink is the simplest possible sink, accumulating every item it is given in
// memory. It never applies backpressure and has nothing to flush, which makes it a
// useful reference endpoint and test double.
type MemorySink[T any] struct {
	items []T
}

var _ sinks.Sink[int] = &MemorySink[int]{}
var _ sinks.Cloner[*MemorySink[int]] = &MemorySink[int]{}

func NewMemorySink[T any](items ...T) *MemorySink[T] {
	return &MemorySink[T]{items: append([]T{}, items...)}
}

func (s *MemorySink[T]) Accept(_ context.Context, item T) (sinks.AcceptResult[T], error) {
	s.items = append(s.items, item)
	return sinks.Accepted[T](), nil
}

func (s *MemorySink[T]) Flush(context.Context) (sinks.Poll, error) {
	return sinks.Ready, nil
}

// Items returns a copy of everything accepted so far, in order
func (s *MemorySink[T]) Items() []T {
	return append([]T{}, s.items...)
}

func (s *MemorySink[T]) Len() int {
	return len(s.items)
}

// Clone returns a sink with its own copy of the accumulated items
func (s *MemorySink[T]) Clone() *MemorySink[T] {
	return NewMemorySink(s.items...)
}
