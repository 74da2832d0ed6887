package generic

import (
	"context"

	"github.com/lawrencejones/sinkrouter/pkg/sinks"
)

// RouterSink forwards each item to one of two sinks, according to the side its Route is
// tagged with. It owns both sinks for its lifetime, and is itself a sink of routes so it
// can be driven and composed like any other.
//
// The router does no waiting, locking or goroutine management of its own: it passes
// backpressure and errors straight back to the caller.
type RouterSink[L, R any, A sinks.Sink[L], B sinks.Sink[R]] struct {
	left  A
	right B
}

var _ sinks.Sink[Route[int, string]] = &RouterSink[int, string, *MemorySink[int], *MemorySink[string]]{}

// NewRouterSink builds a router over two initialised sinks. The item types can't be
// inferred from the sinks, so callers provide them:
//
//	router := generic.NewRouterSink[int, string](left, right)
func NewRouterSink[L, R any, A sinks.Sink[L], B sinks.Sink[R]](left A, right B) *RouterSink[L, R, A, B] {
	return &RouterSink[L, R, A, B]{left: left, right: right}
}

// Accept hands the payload to the sink the route is tagged for, leaving the other
// untouched. If that sink isn't ready, the payload it returns is re-tagged with the same
// side, so the caller can resubmit exactly what it sent.
func (r *RouterSink[L, R, A, B]) Accept(ctx context.Context, item Route[L, R]) (sinks.AcceptResult[Route[L, R]], error) {
	switch item.side {
	case Right:
		return accept[R, Route[L, R]](ctx, r.right, item.right, Right, RouteRight[L, R])
	default:
		return accept[L, Route[L, R]](ctx, r.left, item.left, Left, RouteLeft[L, R])
	}
}

func accept[T, I any](ctx context.Context, sink sinks.Sink[T], item T, side Side, retag func(T) I) (sinks.AcceptResult[I], error) {
	result, err := sink.Accept(ctx, item)
	if err != nil {
		return sinks.Rejected(retag(item)), &RouterError{Side: side, Err: err}
	}

	return sinks.MapRejected(result, retag), nil
}

// Flush drives both sinks on every call, so neither is starved while the other is
// pending. Errors take precedence over progress, and if both sinks fail the left error is
// returned. The router is Ready only when both sinks are.
func (r *RouterSink[L, R, A, B]) Flush(ctx context.Context) (sinks.Poll, error) {
	leftPoll, leftErr := r.left.Flush(ctx)
	rightPoll, rightErr := r.right.Flush(ctx)

	switch {
	case leftErr != nil:
		return sinks.Pending, &RouterError{Side: Left, Err: leftErr}
	case rightErr != nil:
		return sinks.Pending, &RouterError{Side: Right, Err: rightErr}
	case leftPoll == sinks.Ready && rightPoll == sinks.Ready:
		return sinks.Ready, nil
	default:
		return sinks.Pending, nil
	}
}

// Left returns the sink receiving left routes
func (r *RouterSink[L, R, A, B]) Left() A {
	return r.left
}

// Right returns the sink receiving right routes
func (r *RouterSink[L, R, A, B]) Right() B {
	return r.right
}

// LeftPtr gives mutable access to the left sink, for when the sink is held by value.
// Don't modify the sink while the router is being driven.
func (r *RouterSink[L, R, A, B]) LeftPtr() *A {
	return &r.left
}

// RightPtr is LeftPtr for the right sink.
func (r *RouterSink[L, R, A, B]) RightPtr() *B {
	return &r.right
}

// CloneRouterSink duplicates a router whose sinks can both be cloned, cloning each sink
// independently.
func CloneRouterSink[L, R any, A interface {
	sinks.Sink[L]
	sinks.Cloner[A]
}, B interface {
	sinks.Sink[R]
	sinks.Cloner[B]
}](r *RouterSink[L, R, A, B]) *RouterSink[L, R, A, B] {
	return NewRouterSink[L, R](r.left.Clone(), r.right.Clone())
}
