package file

import (
	"fmt"
	"os"

	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"

	"github.com/alecthomas/kingpin"
	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

type Options struct {
	Path       string
	BufferSize int
	Instrument bool
}

func (opt *Options) Bind(cmd *kingpin.CmdClause, prefix string) *Options {
	cmd.Flag(fmt.Sprintf("%spath", prefix), "File path that items are appended to").Default("/dev/stdout").StringVar(&opt.Path)
	cmd.Flag(fmt.Sprintf("%sbuffer-size", prefix), "Number of items to buffer before applying backpressure").Default("5").IntVar(&opt.BufferSize)
	cmd.Flag(fmt.Sprintf("%sinstrument", prefix), "Enable instrumentation").Default("true").BoolVar(&opt.Instrument)

	return opt
}

// New opens the file at the configured path, returning a sink that appends each item as
// a line of JSON. The returned function closes the file, and should be called once the
// sink has been flushed. Standard output and error are never closed.
func New[T any](logger kitlog.Logger, route string, opts Options) (*generic.BufferedSink[T], func() error, error) {
	file, err := openFile(opts.Path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open file")
	}

	logger.Log("event", "file.open", "route", route, "path", opts.Path)

	closeFile := file.Close
	if file == os.Stdout || file == os.Stderr {
		closeFile = func() error { return nil }
	}

	return generic.BuildSink[T](route, &inserter[T]{file: file},
		generic.SinkBuilder.WithBuffer(opts.BufferSize),
		generic.SinkBuilder.WithInstrumentation(logger, opts.Instrument),
	), closeFile, nil
}

func openFile(path string) (*os.File, error) {
	switch path {
	case "/dev/stdout":
		return os.Stdout, nil
	case "/dev/stderr":
		return os.Stderr, nil
	}

	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}
