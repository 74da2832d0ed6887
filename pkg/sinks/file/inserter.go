package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

type inserter[T any] struct {
	file io.Writer
	sync.Mutex
}

// Insert serialises the whole batch before writing, so a batch that fails to marshal
// writes nothing.
func (s *inserter[T]) Insert(ctx context.Context, items []T) (count int, err error) {
	var buffer bytes.Buffer
	for _, item := range items {
		bytes, err := json.Marshal(item)
		if err != nil {
			return 0, errors.Wrap(err, "failed to marshal item")
		}

		if _, err := fmt.Fprintln(&buffer, string(bytes)); err != nil {
			return 0, errors.Wrap(err, "failed to write to buffer")
		}
	}

	s.Lock()
	defer s.Unlock()

	if _, err := s.file.Write(buffer.Bytes()); err != nil {
		return 0, errors.Wrap(err, "failed to write items")
	}

	return len(items), nil
}
