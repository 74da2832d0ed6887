package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lawrencejones/sinkrouter/internal/telem"
	"github.com/lawrencejones/sinkrouter/pkg/records"
	"github.com/lawrencejones/sinkrouter/pkg/sinks"
	sinkbigquery "github.com/lawrencejones/sinkrouter/pkg/sinks/bigquery"
	sinkfile "github.com/lawrencejones/sinkrouter/pkg/sinks/file"
	"github.com/lawrencejones/sinkrouter/pkg/sinks/generic"
	sinkpostgres "github.com/lawrencejones/sinkrouter/pkg/sinks/postgres"

	"contrib.go.opencensus.io/exporter/jaeger"
	"contrib.go.opencensus.io/exporter/stackdriver"
	"github.com/alecthomas/kingpin"
	"github.com/davecgh/go-spew/spew"
	kitlog "github.com/go-kit/kit/log"
	level "github.com/go-kit/kit/log/level"
	"github.com/getsentry/sentry-go"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opencensus.io/trace"
)

var logger kitlog.Logger

var (
	app = kingpin.New("sinkrouter", "Route newline-delimited JSON records into one of two sinks").Version(versionStanza())

	// Global flags
	debug               = app.Flag("debug", "Enable debug logging").Default("false").Bool()
	metricsAddress      = app.Flag("metrics-address", "Address to bind HTTP metrics listener").Default("127.0.0.1").String()
	metricsPort         = app.Flag("metrics-port", "Port to bind HTTP metrics listener").Default("9525").Uint16()
	jaegerAgentEndpoint = app.Flag("jaeger-agent-endpoint", "Endpoint for Jaeger agent, empty to disable").Default("localhost:6831").String()
	stackdriverProject  = app.Flag("stackdriver-project", "Google Cloud project to export traces to Stackdriver, empty to disable").Envar("STACKDRIVER_PROJECT").String()
	sentryDSN           = app.Flag("sentry-dsn", "Sentry DSN to report failures to, empty to disable").Envar("SENTRY_DSN").String()

	route           = app.Command("route", "Route records from the input into the left or right sink")
	routeInput      = route.Flag("input", "File of newline-delimited JSON records").Default("/dev/stdin").String()
	routeField      = route.Flag("route-field", "Record field that decides the route").Required().String()
	routeValue      = route.Flag("route-value", "Records whose route field equals this value go to the left sink, all others go right").Required().String()
	routeAssignID   = route.Flag("assign-id", "Assign a UUID to records that have no id field").Default("false").Bool()
	routeDecodeOnly = route.Flag("decode-only", "Print routed records only, ignoring sinks").Default("false").Bool()

	routeForwardOptions = new(sinks.ForwardOptions).Bind(route, "forward.")
	routeLeftSink       = bindSinkFlags(route, "left")
	routeRightSink      = bindSinkFlags(route, "right")
)

// SilentError should be returned when the command wants to skip all logging of the error
// it has encountered. It wraps no error content as we should never inspect it.
var SilentError = errors.New("silent error")

type UsageError struct {
	error
}

// sinkFlags configures the sink on one side of the router
type sinkFlags struct {
	kind     *string
	file     *sinkfile.Options
	postgres *sinkpostgres.Options
	bigquery *sinkbigquery.Options
}

func bindSinkFlags(cmd *kingpin.CmdClause, side string) sinkFlags {
	prefix := fmt.Sprintf("%s-sink.", side)

	return sinkFlags{
		kind: cmd.Flag(fmt.Sprintf("%s-sink", side), fmt.Sprintf("Type of sink for %s routed records", side)).
			Default("file").Enum("file", "postgres", "bigquery"),
		file:     new(sinkfile.Options).Bind(cmd, prefix+"file."),
		postgres: new(sinkpostgres.Options).Bind(cmd, prefix+"postgres."),
		bigquery: new(sinkbigquery.Options).Bind(cmd, prefix+"bigquery."),
	}
}

func Run() (err error) {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowInfo())
	if *debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	}
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
	stdlog.SetOutput(kitlog.NewStdlibAdapter(logger))

	// Setup an error handler to log and print usage
	defer func() {
		var usageErr UsageError
		switch {
		// Do nothing if no error
		case err == nil:
			return
		// Suppress silent errors
		case errors.Is(err, SilentError):
			return
		// If we're a usage error, unwrap it and print out usage before returning
		case errors.As(err, &usageErr):
			context, _ := app.ParseContext(os.Args[1:])
			app.UsageForContext(context)
			fmt.Fprintf(os.Stderr, "error: %s\n", usageErr.Error())

			err = usageErr.error
			return
		// Otherwise we probably want to log our error
		default:
			logger.Log("event", "error", "error", err, "msg", "exiting with error")
			if *sentryDSN != "" {
				sentry.CaptureException(err)
				sentry.Flush(5 * time.Second)
			}
		}
	}()

	if *sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: *sentryDSN, Release: Version}); err != nil {
			return UsageError{err}
		}
	}

	// This is the root context for the application. Once terminated, everything we have
	// started should also finish.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stage our shutdown to first request termination, then cancel contexts if downstream
	// workers haven't responded.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	shutdown := make(chan struct{})

	go func() {
		<-sigc
		close(shutdown)
		select {
		case <-time.After(30 * time.Second):
		case <-sigc:
		}
		cancel()
	}()

	var g run.Group

	{
		logger := kitlog.With(logger, "component", "shutdown_handler")

		ctx, cancel := context.WithCancel(ctx)

		// If we're asked to shutdown, we use the rungroup to trigger interrupts for every
		// component
		g.Add(
			func() error {
				select {
				case <-shutdown:
					logger.Log("event", "requesting_shutdown", "msg", "received signal, requesting shutdown")
				case <-ctx.Done():
				}

				return nil
			},
			func(error) {
				cancel() // end the shutdown select
			},
		)
	}

	{
		logger := kitlog.With(logger, "component", "metrics")

		// Metrics and debug endpoints
		mux := http.NewServeMux()

		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

		srv := &http.Server{Addr: fmt.Sprintf("%s:%d", *metricsAddress, *metricsPort), Handler: mux}

		g.Add(
			func() error {
				logger.Log("event", "listen", "address", *metricsAddress, "port", *metricsPort)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}

				return nil
			},
			func(error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			},
		)
	}

	if *jaegerAgentEndpoint != "" {
		// Tracing with jaeger
		jexporter, err := jaeger.NewExporter(jaeger.Options{
			AgentEndpoint: *jaegerAgentEndpoint,
			Process: jaeger.Process{
				ServiceName: "sinkrouter",
			},
		})

		if err != nil {
			return UsageError{err}
		}

		defer jexporter.Flush()

		trace.RegisterExporter(jexporter)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}

	if *stackdriverProject != "" {
		sexporter, err := stackdriver.NewExporter(stackdriver.Options{
			ProjectID: *stackdriverProject,
			OnError: func(err error) {
				logger.Log("event", "stackdriver.error", "error", err)
			},
		})

		if err != nil {
			return UsageError{err}
		}

		defer sexporter.Flush()

		trace.RegisterExporter(sexporter)
		trace.ApplyConfig(trace.Config{DefaultSampler: trace.AlwaysSample()})
	}

	switch command {
	case route.FullCommand():
		logger := kitlog.With(logger, "component", "router")

		input, err := openInput(*routeInput)
		if err != nil {
			return UsageError{err}
		}

		defer input.Close()

		ctx, cancel := context.WithCancel(telem.WithLogger(ctx, logger))
		defer cancel()

		matcher := records.Matcher{Field: *routeField, Value: *routeValue}
		stream := records.Decode(ctx, input, records.DecodeOptions{AssignID: *routeAssignID})
		routes := generic.TagStream(ctx, stream, matcher.Route)

		if *routeDecodeOnly {
			g.Add(
				func() error {
					return printRoutes(routes)
				},
				func(error) {
					cancel()
				},
			)

			return g.Run()
		}

		left, closeLeft, err := buildSink(ctx, logger, "left", routeLeftSink)
		if err != nil {
			return err
		}

		defer closeLeft()

		right, closeRight, err := buildSink(ctx, logger, "right", routeRightSink)
		if err != nil {
			return err
		}

		defer closeRight()

		router := generic.NewRouterSink[records.Record, records.Record](left, right)

		g.Add(
			func() error {
				err := sinks.Forward[generic.Route[records.Record, records.Record]](
					ctx, logger, *routeForwardOptions, routes, router)
				if side, ok := generic.SideOf(err); ok {
					logger.Log("event", "sink_failed", "side", side.String(), "error", err,
						"msg", "sink failed, records may remain buffered in the healthy sink")
				}

				return err
			},
			func(error) {
				cancel()
			},
		)

		return g.Run()
	}

	return UsageError{fmt.Errorf("unsupported command")}
}

// buildSink constructs the sink for one side of the router, returning a function to
// release any resources it holds.
func buildSink(ctx context.Context, logger kitlog.Logger, side string, flags sinkFlags) (sinks.Sink[records.Record], func(), error) {
	noop := func() {}
	logger = kitlog.With(logger, "side", side, "sink", *flags.kind)

	switch *flags.kind {
	case "file":
		sink, closeFile, err := sinkfile.New[records.Record](logger, side, *flags.file)
		if err != nil {
			return nil, noop, err
		}

		return sink, func() {
			if err := closeFile(); err != nil {
				logger.Log("event", "file.close_failed", "error", err)
			}
		}, nil

	case "postgres":
		opts := *flags.postgres
		pool, err := sinkpostgres.Connect(ctx, opts)
		if err != nil {
			return nil, noop, err
		}

		sink, err := sinkpostgres.New(logger, side, pool, opts, func(r records.Record) []interface{} {
			return r.Values(opts.Columns)
		})
		if err != nil {
			pool.Close()
			return nil, noop, UsageError{err}
		}

		return sink, pool.Close, nil

	case "bigquery":
		sink, err := sinkbigquery.New[records.Record](ctx, logger, side, *flags.bigquery)
		if err != nil {
			return nil, noop, err
		}

		return sink, noop, nil
	}

	return nil, noop, UsageError{fmt.Errorf("unsupported sink type: %s", *flags.kind)}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "/dev/stdin" {
		return io.NopCloser(os.Stdin), nil
	}

	return os.Open(path)
}

func printRoutes(routes <-chan sinks.Envelope[generic.Route[records.Record, records.Record]]) error {
	for envelope := range routes {
		if envelope.Err != nil {
			return envelope.Err
		}

		envelope.Item.Match(
			func(r records.Record) { spew.Dump(generic.Left.String(), r) },
			func(r records.Record) { spew.Dump(generic.Right.String(), r) },
		)
	}

	return nil
}
