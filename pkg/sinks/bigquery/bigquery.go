package bigquery

import (
	"context"
	"fmt"

	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"

	bq "cloud.google.com/go/bigquery"
	"github.com/alecthomas/kingpin"
	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
)

type Options struct {
	ProjectID  string
	Dataset    string
	Table      string
	Location   string
	BufferSize int
	Instrument bool
}

func (opt *Options) Bind(cmd *kingpin.CmdClause, prefix string) *Options {
	cmd.Flag(fmt.Sprintf("%sproject-id", prefix), "Google Project ID").StringVar(&opt.ProjectID)
	cmd.Flag(fmt.Sprintf("%sdataset", prefix), "BigQuery dataset name").StringVar(&opt.Dataset)
	cmd.Flag(fmt.Sprintf("%stable", prefix), "BigQuery table name, which must already exist").StringVar(&opt.Table)
	cmd.Flag(fmt.Sprintf("%slocation", prefix), "BigQuery dataset location, applied only if creating the dataset").Default("EU").StringVar(&opt.Location)
	cmd.Flag(fmt.Sprintf("%sbuffer-size", prefix), "Number of items to buffer before applying backpressure").Default("250").IntVar(&opt.BufferSize)
	cmd.Flag(fmt.Sprintf("%sinstrument", prefix), "Enable instrumentation").Default("true").BoolVar(&opt.Instrument)

	return opt
}

// Putter is satisfied by *bq.Inserter
type Putter interface {
	Put(ctx context.Context, src interface{}) error
}

var _ Putter = &bq.Inserter{}

// New connects to BigQuery and returns a sink that streams batches of items into the
// configured table. The dataset is created if it doesn't exist, but the table must
// already be there, as we have no way to derive its schema from the items.
func New[T bq.ValueSaver](ctx context.Context, logger kitlog.Logger, route string, opts Options) (*generic.BufferedSink[T], error) {
	client, err := bq.NewClient(ctx, opts.ProjectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create BigQuery client")
	}

	logger = kitlog.With(logger, "route", route, "project", opts.ProjectID, "dataset", opts.Dataset, "table", opts.Table)

	dataset := client.Dataset(opts.Dataset)
	md, err := dataset.Metadata(ctx)
	if allowNotFound(err) != nil {
		return nil, err
	}

	if md == nil {
		logger.Log("event", "dataset.create", "msg", "dataset does not exist, creating")
		md = &bq.DatasetMetadata{
			Name:        opts.Dataset,
			Location:    opts.Location,
			Description: "Dataset created by sinkrouter",
		}

		if err := dataset.Create(ctx, md); err != nil {
			return nil, errors.Wrap(err, "failed to create dataset")
		}
	}

	table := dataset.Table(opts.Table)
	if _, err := table.Metadata(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to find table")
	}

	return generic.BuildSink(route, NewInserter[T](table.Inserter()),
		generic.SinkBuilder.WithBuffer(opts.BufferSize),
		generic.SinkBuilder.WithInstrumentation(logger, opts.Instrument),
	), nil
}

func allowNotFound(err error) error {
	if err, ok := err.(*googleapi.Error); ok && err.Code == 404 {
		return nil
	}

	return err
}

type inserter[T bq.ValueSaver] struct {
	putter Putter
}

// NewInserter returns an inserter that streams each batch with a single Put. BigQuery
// reports failed rows individually, but we treat the batch as failed if any row fails.
func NewInserter[T bq.ValueSaver](putter Putter) generic.Inserter[T] {
	return &inserter[T]{putter: putter}
}

func (i *inserter[T]) Insert(ctx context.Context, items []T) (int, error) {
	if err := i.putter.Put(ctx, items); err != nil {
		return 0, errors.Wrap(err, "failed to insert rows")
	}

	return len(items), nil
}
