package generic

import (
	"context"

	"github.com/lawrencejones/sinkrouter/pkg/sinks"
)

// Side identifies one of the two destinations of a RouterSink.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}

	return "left"
}

// Route is an item tagged for either the left or right sink of a RouterSink. It holds
// exactly one payload, and can't be modified once built. The zero value is a Left route
// carrying the zero value of L.
type Route[L, R any] struct {
	side  Side
	left  L
	right R
}

// RouteLeft tags an item for the left sink.
func RouteLeft[L, R any](item L) Route[L, R] {
	return Route[L, R]{side: Left, left: item}
}

// RouteRight tags an item for the right sink.
func RouteRight[L, R any](item R) Route[L, R] {
	return Route[L, R]{side: Right, right: item}
}

func (r Route[L, R]) Side() Side {
	return r.side
}

// Left returns the payload if this route is tagged left.
func (r Route[L, R]) Left() (L, bool) {
	return r.left, r.side == Left
}

// Right returns the payload if this route is tagged right.
func (r Route[L, R]) Right() (R, bool) {
	return r.right, r.side == Right
}

// Match calls exactly one of the given functions with the payload, depending on the side.
func (r Route[L, R]) Match(onLeft func(L), onRight func(R)) {
	switch r.side {
	case Left:
		onLeft(r.left)
	case Right:
		onRight(r.right)
	}
}

// TagStream applies the tag function to every item in the stream, producing a stream of
// routes suitable for a RouterSink. Errors pass through untouched. The returned stream
// closes when the input does, or when the context ends.
//
// Callers that stop reading before the stream closes must cancel the context, or the
// goroutine feeding the stream will block forever.
func TagStream[T, L, R any](ctx context.Context, stream <-chan sinks.Envelope[T], tag func(T) Route[L, R]) <-chan sinks.Envelope[Route[L, R]] {
	routes := make(chan sinks.Envelope[Route[L, R]])
	go func() {
		defer close(routes)

		for envelope := range stream {
			routed := sinks.Envelope[Route[L, R]]{Err: envelope.Err}
			if envelope.Err == nil {
				routed.Item = tag(envelope.Item)
			}

			select {
			case <-ctx.Done():
				return
			case routes <- routed:
			}
		}
	}()

	return routes
}
