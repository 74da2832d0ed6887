package generic

import (
	kitlog "github.com/go-kit/kit/log"
)

// SinkBuilder allows sink implementations to compose their backend-specific inserter
// into a BufferedSink, with consistent buffering and instrumentation:
//
//	generic.BuildSink(route, inserter,
//	  generic.SinkBuilder.WithBuffer(opts.BufferSize),
//	  generic.SinkBuilder.WithInstrumentation(logger, opts.Instrument),
//	)
var SinkBuilder sinkBuilder

type sinkBuilder struct{}

type sinkOptions struct {
	logger     kitlog.Logger
	instrument bool
	bufferSize int
}

func (b sinkBuilder) WithBuffer(size int) func(*sinkOptions) {
	return func(s *sinkOptions) {
		s.bufferSize = size
	}
}

func (b sinkBuilder) WithInstrumentation(logger kitlog.Logger, instrument bool) func(*sinkOptions) {
	return func(s *sinkOptions) {
		s.logger = logger
		s.instrument = instrument
	}
}

// BuildSink wraps a synchronous inserter into a BufferedSink. The route names the sink
// in logs and metrics.
func BuildSink[T any](route string, inserter Inserter[T], opts ...func(*sinkOptions)) *BufferedSink[T] {
	s := &sinkOptions{logger: kitlog.NewNopLogger(), bufferSize: 1}
	for _, opt := range opts {
		opt(s)
	}

	// If instrumentation is enabled, we want to instrument the sync interface. This ensures
	// we track the lowest level operation, which is often what we'll be interested in.
	if s.instrument {
		inserter = NewInstrumentedInserter(s.logger, route, inserter)
	}

	return NewBufferedSink(inserter, s.bufferSize)
}
