package generic

import (
	"context"

	"github.com/lawrencejones/sinkrouter/internal/telem"

	kitlog "github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opencensus.io/trace"
)

var (
	sinkInsertDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sinkrouter_sink_insert_duration_seconds",
			Help:    "Distribution of time spent issuing inserts, by route",
			Buckets: prometheus.ExponentialBuckets(0.125, 2, 12), // 0.125 -> 512s
		},
		[]string{"route"},
	)
	sinkInsertBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sinkrouter_sink_insert_batch_size",
			Help:    "Distribution of insert batch sizes",
			Buckets: prometheus.ExponentialBuckets(1, 2, 13), // 1 -> 8192
		},
		[]string{"route"},
	)
	sinkInsertErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sinkrouter_sink_insert_errors_total",
			Help: "Count of failed inserts, by route",
		},
		[]string{"route"},
	)
)

type instrumentedInserter[T any] struct {
	Inserter[T]
	logger                     kitlog.Logger
	route                      string
	durationSeconds, batchSize prometheus.ObserverVec
	errorsTotal                prometheus.Counter
}

// NewInstrumentedInserter wraps an existing synchronous inserter, causing every insert to
// be logged, capture batch size and duration in metrics, and create new spans.
func NewInstrumentedInserter[T any](logger kitlog.Logger, route string, i Inserter[T]) Inserter[T] {
	labels := prometheus.Labels(map[string]string{"route": route})
	logger = kitlog.With(logger, "route", route)

	return &instrumentedInserter[T]{
		Inserter:        i,
		logger:          logger,
		route:           route,
		durationSeconds: sinkInsertDurationSeconds.MustCurryWith(labels),
		batchSize:       sinkInsertBatchSize.MustCurryWith(labels),
		errorsTotal:     sinkInsertErrorsTotal.With(labels),
	}
}

func (i *instrumentedInserter[T]) Insert(ctx context.Context, items []T) (count int, err error) {
	ctx, span, logger := telem.Logger(ctx, i.logger)(trace.StartSpan(ctx, "pkg/sinks/generic.Inserter.Insert()"))
	defer span.End()

	batchSize := len(items)
	span.AddAttributes(
		trace.StringAttribute("route", i.route),
		trace.Int64Attribute("batch_size", int64(batchSize)),
	)

	defer prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		logger.Log("event", "insert", "duration", v, "batch_size", batchSize, "count", count, "error", err)
		i.durationSeconds.WithLabelValues().Observe(v)
		i.batchSize.WithLabelValues().Observe(float64(batchSize))
		if err != nil {
			i.errorsTotal.Inc()
		}
	})).ObserveDuration()

	return i.Inserter.Insert(ctx, items)
}
