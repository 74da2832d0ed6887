package generic

import (
	"context"
	"sync"
)

// Inserter provides a synchronous interface around writing a batch of items into a
// backend. It returns the count of items inserted.
type Inserter[T any] interface {
	Insert(context.Context, []T) (count int, err error)
}

// InserterFunc is shorthand for creating an inserter from a function
type InserterFunc[T any] func(context.Context, []T) (int, error)

func (f InserterFunc[T]) Insert(ctx context.Context, items []T) (int, error) {
	return f(ctx, items)
}

// MemoryInserter is a reference implementation of an inserter, storing batches in an
// in-memory buffer. Unlike the sinks that wrap it, it is safe for concurrent use, as
// asynchronous sinks will insert from other goroutines.
//
// Beyond offering a useful reference implementation, this can be used for testing generic
// sink logic without being coupled to an actual backend.
type MemoryInserter[T any] struct {
	batches [][]T
	sync.Mutex
}

func NewMemoryInserter[T any]() *MemoryInserter[T] {
	return &MemoryInserter[T]{
		batches: [][]T{},
	}
}

func (i *MemoryInserter[T]) Insert(ctx context.Context, items []T) (count int, err error) {
	i.Lock()
	defer i.Unlock()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	i.batches = append(i.batches, append([]T{}, items...))

	return len(items), nil
}

func (i *MemoryInserter[T]) Batches() [][]T {
	i.Lock()
	defer i.Unlock()

	return append([][]T(nil), i.batches...)
}

func (i *MemoryInserter[T]) Store() []T {
	i.Lock()
	defer i.Unlock()

	all := []T{}
	for _, batch := range i.batches {
		all = append(all, batch...)
	}

	return all
}
