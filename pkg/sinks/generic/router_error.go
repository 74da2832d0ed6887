package generic

import "github.com/pkg/errors"

// RouterError records which sink of a RouterSink failed. The error message is exactly
// that of the original error, which remains available through Unwrap.
type RouterError struct {
	Side Side
	Err  error
}

func (e *RouterError) Error() string {
	return e.Err.Error()
}

func (e *RouterError) Unwrap() error {
	return e.Err
}

// Cause supports errors.Cause from github.com/pkg/errors
func (e *RouterError) Cause() error {
	return e.Err
}

// IsLeft returns true if the error chain contains a RouterError from the left sink
func IsLeft(err error) bool {
	side, ok := SideOf(err)
	return ok && side == Left
}

// IsRight returns true if the error chain contains a RouterError from the right sink
func IsRight(err error) bool {
	side, ok := SideOf(err)
	return ok && side == Right
}

// SideOf finds the first RouterError in the chain, returning the side that failed.
func SideOf(err error) (Side, bool) {
	var routerErr *RouterError
	if errors.As(err, &routerErr) {
		return routerErr.Side, true
	}

	return Left, false
}
