package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/lawrencejones/sinkrouter/internal/telem"

	"github.com/alecthomas/kingpin"
	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opencensus.io/trace"
)

// Envelope is a single delivery from a stream of items. Producers that fail send an
// envelope with Err set, which ends forwarding.
type Envelope[T any] struct {
	Item T
	Err  error
}

// DefaultPollInterval is used when no poll interval is configured
const DefaultPollInterval = 50 * time.Millisecond

type ForwardOptions struct {
	PollInterval time.Duration
}

func (opt *ForwardOptions) Bind(cmd *kingpin.CmdClause, prefix string) *ForwardOptions {
	cmd.Flag(fmt.Sprintf("%spoll-interval", prefix), "Time to wait before retrying a sink that isn't ready").Default("50ms").DurationVar(&opt.PollInterval)

	return opt
}

var (
	forwardItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sinkrouter_forward_items_total",
			Help: "Count of items offered to the sink, by whether the sink accepted them",
		},
		[]string{"outcome"},
	)
	forwardFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sinkrouter_forward_flush_total",
			Help: "Count of sink flushes, by poll result",
		},
		[]string{"poll"},
	)
)

// Forward pushes every item from the stream into the sink, then flushes the sink until
// it has nothing outstanding. It returns when the stream closes and the sink is Ready, or
// on the first error from either the stream or the sink.
//
// Items the sink rejects are held and resubmitted unchanged after flushing the sink and
// waiting for the poll interval. Whenever the stream has nothing immediately available,
// we use the time to flush anything accepted since the last flush.
func Forward[T any](ctx context.Context, logger kitlog.Logger, opts ForwardOptions, stream <-chan Envelope[T], sink Sink[T]) (err error) {
	ctx, span, logger := telem.Logger(ctx, logger)(trace.StartSpan(ctx, "pkg/sinks.Forward"))
	defer span.End()

	ctx = telem.WithLogger(ctx, logger)

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	f := &forwarder[T]{opts: opts, sink: sink}
	defer func() {
		logger.Log("event", "forward.finish", "count", f.count, "flushes", f.flushes, "error", err)
	}()

	for {
		envelope, ok, err := f.next(ctx, stream)
		if err != nil {
			return err
		}

		if !ok {
			break
		}

		if envelope.Err != nil {
			return errors.Wrap(envelope.Err, "stream failed")
		}

		if err := f.send(ctx, envelope.Item); err != nil {
			return err
		}
	}

	logger.Log("event", "forward.drain", "msg", "stream closed, flushing sink until complete")
	return f.drain(ctx)
}

type forwarder[T any] struct {
	opts    ForwardOptions
	sink    Sink[T]
	dirty   bool // accepted items since the last flush
	count   int
	flushes int
}

// next receives from the stream, flushing the sink if we'd otherwise have to wait
func (f *forwarder[T]) next(ctx context.Context, stream <-chan Envelope[T]) (Envelope[T], bool, error) {
	select {
	case envelope, ok := <-stream:
		return envelope, ok, nil
	default:
	}

	if f.dirty {
		if _, err := f.flush(ctx); err != nil {
			return Envelope[T]{}, false, err
		}
	}

	select {
	case <-ctx.Done():
		return Envelope[T]{}, false, ctx.Err()
	case envelope, ok := <-stream:
		return envelope, ok, nil
	}
}

// send offers the item until the sink takes it. Each rejection hands the item back, and
// it's that item we offer next time.
func (f *forwarder[T]) send(ctx context.Context, item T) error {
	for {
		result, err := f.sink.Accept(ctx, item)
		if err != nil {
			forwardItemsTotal.WithLabelValues("error").Inc()
			return err
		}

		rejected, ok := result.Item()
		if !ok {
			forwardItemsTotal.WithLabelValues("accepted").Inc()
			f.dirty = true
			f.count++
			return nil
		}

		forwardItemsTotal.WithLabelValues("rejected").Inc()
		if _, err := f.flush(ctx); err != nil {
			return err
		}

		if err := f.wait(ctx); err != nil {
			return err
		}

		item = rejected
	}
}

func (f *forwarder[T]) drain(ctx context.Context) error {
	for {
		poll, err := f.flush(ctx)
		if err != nil {
			return err
		}

		if poll == Ready {
			return nil
		}

		if err := f.wait(ctx); err != nil {
			return err
		}
	}
}

func (f *forwarder[T]) flush(ctx context.Context) (Poll, error) {
	poll, err := f.sink.Flush(ctx)
	f.dirty = false
	f.flushes++
	if err != nil {
		forwardFlushTotal.WithLabelValues("error").Inc()
		return poll, err
	}

	forwardFlushTotal.WithLabelValues(poll.String()).Inc()
	return poll, nil
}

func (f *forwarder[T]) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.opts.PollInterval):
		return nil
	}
}

// FromSlice returns a closed stream that yields each of the given items
func FromSlice[T any](items ...T) <-chan Envelope[T] {
	stream := make(chan Envelope[T], len(items))
	for _, item := range items {
		stream <- Envelope[T]{Item: item}
	}

	close(stream)
	return stream
}
