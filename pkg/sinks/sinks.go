// Contract for endpoints that consume items, and a driver that pushes a stream of items
// into them. Endpoints never block: when they can't make progress they say so, and
// whoever is driving them decides when to try again.
package sinks

import "context"

// Poll is the outcome of driving an endpoint towards completion.
type Poll int

const (
	// Pending means the endpoint still has buffered or in-flight work
	Pending Poll = iota
	// Ready means the endpoint has nothing outstanding
	Ready
)

func (p Poll) String() string {
	if p == Ready {
		return "ready"
	}

	return "pending"
}

// AcceptResult is returned alongside an error from Sink.Accept. When the endpoint can't
// take the item right now, the item is handed back through the result so the caller can
// submit exactly the same value later.
type AcceptResult[T any] struct {
	item     T
	rejected bool
}

// Accepted signals the item was taken, and the endpoint is ready for the next.
func Accepted[T any]() AcceptResult[T] {
	return AcceptResult[T]{}
}

// Rejected signals backpressure, returning the item unconsumed.
func Rejected[T any](item T) AcceptResult[T] {
	return AcceptResult[T]{item: item, rejected: true}
}

func (r AcceptResult[T]) IsReady() bool {
	return !r.rejected
}

// Item returns the rejected item, if there was one.
func (r AcceptResult[T]) Item() (item T, ok bool) {
	return r.item, r.rejected
}

// MapRejected converts the item held by a rejected result, leaving accepted results as
// they were.
func MapRejected[T, U any](r AcceptResult[T], f func(T) U) AcceptResult[U] {
	if item, ok := r.Item(); ok {
		return Rejected(f(item))
	}

	return Accepted[U]()
}

// Sink consumes items of type T. Neither method should wait for the endpoint to make
// progress: any waiting is the responsibility of the caller, who should call again
// later.
type Sink[T any] interface {
	// Accept attempts to buffer or consume one item. If the sink is not ready, it returns
	// a rejected result holding the item.
	Accept(context.Context, T) (AcceptResult[T], error)

	// Flush drives any buffered state towards the underlying destination. It returns
	// Ready only once nothing is outstanding, and must be safe to call repeatedly.
	Flush(context.Context) (Poll, error)
}

// Cloner is implemented by sinks that can be duplicated.
type Cloner[T any] interface {
	Clone() T
}
