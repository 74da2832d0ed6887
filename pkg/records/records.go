// Records are the free-form JSON objects handled by the sinkrouter command. They're
// decoded from newline-delimited JSON and can be written to any of the sinks.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/lawrencejones/sinkrouter/internal/telem"
	"github.com/lawrencejones/sinkrouter/pkg/sinks"
	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"

	bq "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Record is a single decoded JSON object
type Record map[string]interface{}

var _ bq.ValueSaver = Record{}

// ID returns the record's id field, if it has one
func (r Record) ID() (string, bool) {
	id, ok := r["id"]
	if !ok || id == nil {
		return "", false
	}

	return fmt.Sprint(id), true
}

// WithID returns the record with a random UUID in the id field, unless one was present.
// The original record is never modified.
func (r Record) WithID() Record {
	if _, ok := r.ID(); ok {
		return r
	}

	copied := make(Record, len(r)+1)
	for key, value := range r {
		copied[key] = value
	}

	copied["id"] = uuid.New().String()
	return copied
}

// Save implements bigquery.ValueSaver, using the id as the insert ID so retried inserts
// are deduplicated.
func (r Record) Save() (map[string]bq.Value, string, error) {
	row := make(map[string]bq.Value, len(r))
	for key, value := range r {
		row[key] = value
	}

	insertID, _ := r.ID()
	return row, insertID, nil
}

// Values returns the record's fields in column order, with nil for anything missing
func (r Record) Values(columns []string) []interface{} {
	values := make([]interface{}, len(columns))
	for idx, column := range columns {
		values[idx] = r[column]
	}

	return values
}

type DecodeOptions struct {
	AssignID bool
}

// Decode reads newline-delimited JSON objects from the reader, sending each to the
// returned stream. Malformed input is sent as an error, after which the stream closes.
func Decode(ctx context.Context, reader io.Reader, opts DecodeOptions) <-chan sinks.Envelope[Record] {
	stream := make(chan sinks.Envelope[Record])
	go func() {
		defer close(stream)

		ctx, span, logger := telem.StartSpan(ctx, "pkg/records.Decode")
		defer span.End()

		decoder := json.NewDecoder(reader)
		for line := 1; ; line++ {
			var envelope sinks.Envelope[Record]
			if err := decoder.Decode(&envelope.Item); err != nil {
				if err == io.EOF {
					logger.Log("event", "decode.finish", "count", line-1)
					return
				}

				envelope.Err = errors.Wrapf(err, "failed to decode record %d", line)
			} else if opts.AssignID {
				envelope.Item = envelope.Item.WithID()
			}

			select {
			case <-ctx.Done():
				return
			case stream <- envelope:
			}

			if envelope.Err != nil {
				return
			}
		}
	}()

	return stream
}

// Matcher routes records left when the field's value, formatted as a string, equals
// Value. Everything else, including records without the field, goes right.
type Matcher struct {
	Field string
	Value string
}

func (m Matcher) Route(r Record) generic.Route[Record, Record] {
	if value, ok := r[m.Field]; ok && value != nil && fmt.Sprint(value) == m.Value {
		return generic.RouteLeft[Record, Record](r)
	}

	return generic.RouteRight[Record, Record](r)
}
