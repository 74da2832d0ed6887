package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"

	"github.com/alecthomas/kingpin"
	kitlog "github.com/go-kit/kit/log"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
)

type Options struct {
	URL        string
	Table      string
	Columns    []string
	BufferSize int
	Instrument bool
}

func (opt *Options) Bind(cmd *kingpin.CmdClause, prefix string) *Options {
	cmd.Flag(fmt.Sprintf("%surl", prefix), "Postgres connection string").Envar("DATABASE_URL").StringVar(&opt.URL)
	cmd.Flag(fmt.Sprintf("%stable", prefix), "Table to copy items into, optionally schema qualified").StringVar(&opt.Table)
	cmd.Flag(fmt.Sprintf("%scolumn", prefix), "Column to populate, in order").StringsVar(&opt.Columns)
	cmd.Flag(fmt.Sprintf("%sbuffer-size", prefix), "Number of items to buffer before applying backpressure").Default("500").IntVar(&opt.BufferSize)
	cmd.Flag(fmt.Sprintf("%sinstrument", prefix), "Enable instrumentation").Default("true").BoolVar(&opt.Instrument)

	return opt
}

// Copier is satisfied by pgx connections and pools
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var _ Copier = &pgxpool.Pool{}

// Connect opens a connection pool for the configured database. Callers are responsible
// for closing it once the sink has been flushed.
func Connect(ctx context.Context, opts Options) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, opts.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Postgres")
	}

	return pool, nil
}

// New builds a sink that copies batches of items into the configured table. The values
// function converts each item into a row, matching the order of the configured columns.
func New[T any](logger kitlog.Logger, route string, copier Copier, opts Options, values func(T) []interface{}) (*generic.BufferedSink[T], error) {
	if opts.Table == "" {
		return nil, fmt.Errorf("no table configured")
	}

	if len(opts.Columns) == 0 {
		return nil, fmt.Errorf("no columns configured for table %s", opts.Table)
	}

	logger.Log("event", "postgres.configure", "route", route, "table", opts.Table, "columns", strings.Join(opts.Columns, ","))

	return generic.BuildSink(route, NewInserter(copier, ParseIdentifier(opts.Table), opts.Columns, values),
		generic.SinkBuilder.WithBuffer(opts.BufferSize),
		generic.SinkBuilder.WithInstrumentation(logger, opts.Instrument),
	), nil
}

// ParseIdentifier splits a possibly schema qualified table name
func ParseIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

type inserter[T any] struct {
	copier  Copier
	table   pgx.Identifier
	columns []string
	values  func(T) []interface{}
}

// NewInserter returns an inserter that uses COPY to write each batch. A batch is copied
// in a single statement, so either all rows land or none do.
func NewInserter[T any](copier Copier, table pgx.Identifier, columns []string, values func(T) []interface{}) generic.Inserter[T] {
	return &inserter[T]{copier: copier, table: table, columns: columns, values: values}
}

func (i *inserter[T]) Insert(ctx context.Context, items []T) (int, error) {
	rows := make([][]interface{}, len(items))
	for idx, item := range items {
		rows[idx] = i.values(item)
	}

	copied, err := i.copier.CopyFrom(ctx, i.table, i.columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return 0, errors.Wrapf(err, "failed to copy rows into %s: postgres error %s", i.table.Sanitize(), pgErr.Code)
		}

		return 0, errors.Wrapf(err, "failed to copy rows into %s", i.table.Sanitize())
	}

	return int(copied), nil
}
