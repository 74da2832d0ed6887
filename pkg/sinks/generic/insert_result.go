package generic

import "context"

// InsertResult is a promise for an asynchronous insert. Get() will block until a value
// is fulfilled, while Done() can be used to check without blocking.
type InsertResult interface {
	Get(context.Context) (count int, err error)
	Done() bool
}

// EmptyInsertResult represents an insertion that did no work
var EmptyInsertResult = NewInsertResult().Resolve(0, nil)

func NewInsertResult() *insertResult {
	return &insertResult{ready: make(chan struct{})}
}

// insertResult is a single insertion result, or promise
type insertResult struct {
	ready chan struct{}
	count int
	err   error
}

func (r *insertResult) Get(ctx context.Context) (int, error) {
	// If the result is ready, we should return the error even if the context is done
	select {
	case <-r.ready:
		return r.count, r.err
	default:
	}
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-r.ready:
		return r.count, r.err
	}
}

func (r *insertResult) Done() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Resolve fulfills the promise. We return an InsertResult, as it is not correct to
// resolve a promise twice, so we don't care if the caller no longer has access to this
// method.
func (r *insertResult) Resolve(count int, err error) InsertResult {
	r.count = count
	r.err = err
	close(r.ready)

	return r
}
