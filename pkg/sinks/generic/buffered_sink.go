package generic

import (
	"context"

	"github.com/lawrencejones/sinkrouter/internal/telem"
	"github.com/lawrencejones/sinkrouter/pkg/sinks"
)

// BufferedSink puts a bounded buffer in front of a synchronous inserter. Items are
// buffered by Accept until the buffer is full, after which Accept hands items back
// until a Flush has moved the buffer into the inserter.
//
// Flush never waits on the inserter. It starts the insert in the background and reports
// Pending until it has finished, so the caller is free to drive other sinks meanwhile.
type BufferedSink[T any] struct {
	inserter Inserter[T]
	capacity int
	buffer   []T
	inflight []T
	result   InsertResult
}

var _ sinks.Sink[int] = &BufferedSink[int]{}

// NewBufferedSink wraps any inserter with a buffer of the given size. Batches passed to
// the inserter are never larger than this size.
func NewBufferedSink[T any](i Inserter[T], capacity int) *BufferedSink[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &BufferedSink[T]{
		inserter: i,
		capacity: capacity,
		buffer:   make([]T, 0, capacity),
		result:   EmptyInsertResult,
	}
}

// Accept buffers the item, or rejects it if the buffer is full. Items currently being
// inserted don't count against the buffer.
func (s *BufferedSink[T]) Accept(_ context.Context, item T) (sinks.AcceptResult[T], error) {
	if len(s.buffer) >= s.capacity {
		return sinks.Rejected(item), nil
	}

	s.buffer = append(s.buffer, item)
	return sinks.Accepted[T](), nil
}

// Flush collects the outcome of any in-flight insert, then starts inserting whatever has
// been buffered since. It is Ready only when nothing is buffered or in flight.
//
// If the insert failed, the error is returned and the items that didn't make it are put
// back at the head of the buffer. The insert runs with the context of the Flush that
// started it.
func (s *BufferedSink[T]) Flush(ctx context.Context) (sinks.Poll, error) {
	if !s.result.Done() {
		return sinks.Pending, nil
	}

	inserted, err := s.result.Get(ctx)
	batch := s.inflight
	s.inflight, s.result = nil, EmptyInsertResult

	if err != nil {
		if inserted < 0 || inserted > len(batch) {
			inserted = 0
		}

		s.buffer = append(append(make([]T, 0, len(batch)+len(s.buffer)), batch[inserted:]...), s.buffer...)
		telem.LoggerFrom(ctx).Log("event", "flush.insert_failed", "inserted", inserted,
			"buffered", len(s.buffer), "error", err)

		return sinks.Pending, err
	}

	if len(s.buffer) == 0 {
		return sinks.Ready, nil
	}

	s.inflight, s.buffer = s.buffer, make([]T, 0, s.capacity)
	s.result = s.insert(ctx, s.inflight)

	return sinks.Pending, nil
}

// insert pushes items to the inserter in capacity sized batches, in order, stopping at
// the first failure. The result resolves with the count of items from fully successful
// batches.
func (s *BufferedSink[T]) insert(ctx context.Context, items []T) InsertResult {
	result := NewInsertResult()
	go func() {
		inserted := 0
		for len(items) > 0 {
			size := s.capacity
			if size > len(items) {
				size = len(items)
			}

			var batch []T
			batch, items = items[:size:size], items[size:]
			if _, err := s.inserter.Insert(ctx, batch); err != nil {
				result.Resolve(inserted, err)
				return
			}

			inserted += len(batch)
		}

		result.Resolve(inserted, nil)
	}()

	return result
}

// Buffered returns a copy of the items waiting for the next flush
func (s *BufferedSink[T]) Buffered() []T {
	return append([]T{}, s.buffer...)
}

// InFlight returns the count of items currently being inserted
func (s *BufferedSink[T]) InFlight() int {
	return len(s.inflight)
}
