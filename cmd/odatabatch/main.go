package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hanpama/odatabatch/internal/audit"
	"github.com/hanpama/odatabatch/internal/config"
	"github.com/hanpama/odatabatch/internal/dispatchpb"
	"github.com/hanpama/odatabatch/internal/eventbus"
	"github.com/hanpama/odatabatch/internal/executor"
	"github.com/hanpama/odatabatch/internal/grpcdispatch"
	"github.com/hanpama/odatabatch/internal/grpctp"
	"github.com/hanpama/odatabatch/internal/httpdispatch"
	"github.com/hanpama/odatabatch/internal/logging"
	"github.com/hanpama/odatabatch/internal/otel"
	"github.com/hanpama/odatabatch/internal/server"
)

const rootUsage = `odatabatch: OData $batch gateway

USAGE:
  odatabatch <command> [flags]

COMMANDS:
  serve            Run the HTTP $batch endpoint backed by HTTP or gRPC dispatchers
  print-proto      Print the odatabatch.v1 dispatcher service definition
  help             Show help for any command

Every serve flag defaults to its ODATABATCH_* environment variable.
`

const serveUsage = `serve FLAGS:
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.root <path>                 OData service root (default: /odata/)
  -server.timeout <duration>          Per-batch timeout, e.g. 30s (default: 30s)
  -server.max-body-bytes N            Request body limit in bytes (default: 10485760)
  -server.concurrency N               Top-level operations run at once (default: 1)
  -server.pretty                      Pretty-print JSON error bodies
  -server.cors-origin <origin>        Allow CORS origin. Repeatable; * allows any
  -server.metadata-header <name>      Forward HTTP header to gRPC metadata. Repeatable
  -upstream.http <url>                Replay requests against this OData service root
  -upstream.grpc <route=host:port,..> Dispatch requests over gRPC. Routes are entity
                                      sets; use * for the default endpoint:
                                        -upstream.grpc *=localhost:50051
  -transport.max-conns-per-endpoint N Max TCP conns per endpoint (default: 4)
  -transport.rpc-timeout <duration>   Dispatch timeout, e.g. 10s (default: 10s)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: odatabatch)
  -log.level <level>                  debug, info, warn or error (default: info)
  -log.pretty                         Human readable log lines
  -audit.mongo-url <url>              Write an audit trail to MongoDB
  -audit.database <name>              Audit database (default: odatabatch)
  -audit.collection <name>            Audit collection (default: audit_log)
Exactly one of -upstream.http and -upstream.grpc is required.
`

const printProtoUsage = `print-proto FLAGS:
  -out <dir>               Write the .proto file under dir (default: stdout)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("odatabatch")
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("odatabatch", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "print-proto":
		return cmdPrintProto(cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "print-proto":
		fmt.Fprint(stdout, printProtoUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// parseServe overlays serve flags on the environment configuration.
func parseServe(args []string, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	var corsOrigins, metadataHeaders stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&cfg.Addr, "server.addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.ServiceRoot, "server.root", cfg.ServiceRoot, "OData service root")
	fs.DurationVar(&cfg.Timeout, "server.timeout", cfg.Timeout, "Per-batch timeout")
	fs.Int64Var(&cfg.MaxBodyBytes, "server.max-body-bytes", cfg.MaxBodyBytes, "Request body limit")
	fs.IntVar(&cfg.Concurrency, "server.concurrency", cfg.Concurrency, "Concurrent top-level operations")
	fs.BoolVar(&cfg.Pretty, "server.pretty", cfg.Pretty, "Pretty-print JSON error bodies")
	fs.Var(&corsOrigins, "server.cors-origin", "Allow CORS origin")
	fs.Var(&metadataHeaders, "server.metadata-header", "Forward HTTP header to gRPC metadata")
	fs.StringVar(&cfg.UpstreamHTTP, "upstream.http", cfg.UpstreamHTTP, "Upstream OData service root")
	fs.StringVar(&cfg.UpstreamGRPC, "upstream.grpc", cfg.UpstreamGRPC, "Upstream gRPC endpoints")
	fs.IntVar(&cfg.MaxConnsPerEndpoint, "transport.max-conns-per-endpoint", cfg.MaxConnsPerEndpoint, "Max conns per endpoint")
	fs.DurationVar(&cfg.RPCTimeout, "transport.rpc-timeout", cfg.RPCTimeout, "Dispatch timeout")
	fs.StringVar(&cfg.OtelEndpoint, "otel.endpoint", cfg.OtelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.OtelService, "otel.service", cfg.OtelService, "OpenTelemetry service name")
	fs.StringVar(&cfg.LogLevel, "log.level", cfg.LogLevel, "Log level")
	fs.BoolVar(&cfg.LogPretty, "log.pretty", cfg.LogPretty, "Human readable log lines")
	fs.StringVar(&cfg.MongoURL, "audit.mongo-url", cfg.MongoURL, "MongoDB audit URL")
	fs.StringVar(&cfg.AuditDatabase, "audit.database", cfg.AuditDatabase, "Audit database")
	fs.StringVar(&cfg.AuditCollection, "audit.collection", cfg.AuditCollection, "Audit collection")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return nil, err
	}
	if len(corsOrigins) > 0 {
		cfg.CORSOrigins = corsOrigins
	}
	if len(metadataHeaders) > 0 {
		cfg.MetadataHeaders = metadataHeaders
	}
	switch {
	case cfg.UpstreamHTTP == "" && cfg.UpstreamGRPC == "":
		fmt.Fprint(stderr, serveUsage)
		return nil, errors.New("one of -upstream.http or -upstream.grpc is required")
	case cfg.UpstreamHTTP != "" && cfg.UpstreamGRPC != "":
		fmt.Fprint(stderr, serveUsage)
		return nil, errors.New("-upstream.http and -upstream.grpc are mutually exclusive")
	}
	return cfg, nil
}

// newDispatcher builds the dispatcher selected by cfg. The returned closer
// releases its connections.
func newDispatcher(cfg *config.Config) (executor.Dispatcher, func() error, error) {
	if cfg.UpstreamHTTP != "" {
		d, err := httpdispatch.New(cfg.UpstreamHTTP,
			httpdispatch.WithTimeout(cfg.RPCTimeout),
			httpdispatch.WithServiceRoot(cfg.ServiceRoot),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("http dispatcher: %w", err)
		}
		return d, func() error { return nil }, nil
	}

	provider, err := grpctp.ParseStaticEndpoints(cfg.UpstreamGRPC)
	if err != nil {
		return nil, nil, fmt.Errorf("grpc endpoints: %w", err)
	}
	reg, err := dispatchpb.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("dispatchpb build: %w", err)
	}
	trOpts := []grpctp.Option{grpctp.WithProvider(provider), grpctp.WithMaxConnsPerEndpoint(cfg.MaxConnsPerEndpoint)}
	if cfg.RPCTimeout > 0 {
		trOpts = append(trOpts, grpctp.WithRPCTimeout(cfg.RPCTimeout))
	}
	transport := grpctp.New(trOpts...)
	return grpcdispatch.New(reg, transport), transport.Close, nil
}

func newHandler(cfg *config.Config, d executor.Dispatcher) (*server.Handler, error) {
	sopts := []server.Option{
		server.WithServiceRoot(cfg.ServiceRoot),
		server.WithConcurrency(cfg.Concurrency),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	if cfg.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if cfg.Timeout > 0 {
		sopts = append(sopts, server.WithTimeout(cfg.Timeout))
	}
	if len(cfg.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.CORSOrigins...))
	}
	if len(cfg.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.MetadataHeaders...))
	}
	return server.New(d, sopts...)
}

// newRouter mounts h at {root}/$batch next to a health check.
func newRouter(root string, h http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	batchPath := path.Join("/", root, "$batch")
	r.Post(batchPath, h.ServeHTTP)
	r.Options(batchPath, h.ServeHTTP)
	return r
}

func cmdServe(args []string, stderr io.Writer) error {
	cfg, err := parseServe(args, stderr)
	if err != nil {
		return err
	}

	logging.Configure()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogPretty)

	eventbus.Use(eventbus.New())
	defer logging.Register(logger)()

	shutdown, err := otel.Setup(cfg.OtelEndpoint, cfg.OtelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if cfg.AuditEnabled() {
		coll, disconnect, err := audit.Connect(context.Background(), cfg.MongoURL, cfg.AuditDatabase, cfg.AuditCollection)
		if err != nil {
			return fmt.Errorf("audit connect: %w", err)
		}
		defer func() { _ = disconnect(context.Background()) }()
		defer audit.NewRecorder(coll, logger).Register()()
		logger.Info().Str("collection", cfg.AuditCollection).Msg("Audit log enabled")
	}

	d, closeDispatcher, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeDispatcher() }()

	h, err := newHandler(cfg, d)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(cfg.ServiceRoot, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serve(srv, logger)
}

// serve runs srv until SIGINT or SIGTERM, then drains it.
func serve(srv *http.Server, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("OData $batch gateway listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func cmdPrintProto(args []string, stdout, stderr io.Writer) error {
	outDir := ""
	fs := flag.NewFlagSet("print-proto", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&outDir, "out", outDir, "Output directory for the .proto file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, printProtoUsage)
		return err
	}
	reg, err := dispatchpb.Build()
	if err != nil {
		return fmt.Errorf("dispatchpb build: %w", err)
	}
	if outDir == "" {
		return dispatchpb.Render(reg, stdout)
	}
	if err := dispatchpb.RenderDir(reg, outDir); err != nil {
		return fmt.Errorf("render proto: %w", err)
	}
	return nil
}
