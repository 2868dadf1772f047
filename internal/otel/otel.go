package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	eventbus "github.com/hanpama/odatabatch/internal/eventbus"
	events "github.com/hanpama/odatabatch/internal/events"
	reqid "github.com/hanpama/odatabatch/internal/reqid"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)
	Register(tp)

	return tp.Shutdown, nil
}

// Register subscribes span builders for tp to the global event bus.
//
// Spans nest as http.request > batch > changeset > dispatch > grpc.client;
// dispatches of single operations hang off the batch span.
func Register(tp trace.TracerProvider) (unsubscribe func()) {
	s := &subscriber{tracer: tp.Tracer("odatabatch")}
	return s.register()
}

type spanKind uint8

const (
	kindHTTP spanKind = iota
	kindBatch
	kindChangeSet
	kindDispatch
	kindGRPC
)

type spanKey struct {
	kind   spanKind
	rid    int64
	op     int
	member int
}

type subscriber struct {
	tracer trace.Tracer
	spans  sync.Map // spanKey -> trace.Span
}

// start opens a span under parent, or under the span in ctx when parent is
// not open.
func (s *subscriber) start(ctx context.Context, parent, key spanKey, name string, attrs ...attribute.KeyValue) {
	if v, ok := s.spans.Load(parent); ok {
		ctx = trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	s.startRoot(ctx, key, name, attrs...)
}

func (s *subscriber) startRoot(ctx context.Context, key spanKey, name string, attrs ...attribute.KeyValue) {
	_, span := s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	s.spans.Store(key, span)
}

func (s *subscriber) finish(key spanKey, err error, attrs ...attribute.KeyValue) {
	v, ok := s.spans.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func ridOf(ctx context.Context) int64 {
	rid, _ := reqid.FromContext(ctx)
	return rid
}

func (s *subscriber) register() func() {
	var unsubs []func()
	add := func(u func()) { unsubs = append(unsubs, u) }

	add(eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		s.startRoot(ctx, spanKey{kind: kindHTTP, rid: ridOf(ctx)}, "http.request",
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
	}))
	add(eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		s.finish(spanKey{kind: kindHTTP, rid: ridOf(ctx)}, nil,
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.Int("http.response_content_length", e.Bytes),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.BatchStart) {
		rid := ridOf(ctx)
		s.start(ctx, spanKey{kind: kindHTTP, rid: rid}, spanKey{kind: kindBatch, rid: rid}, "batch",
			attribute.Int("batch.operations", e.Operations),
		)
	}))
	add(eventbus.Subscribe(func(ctx context.Context, e events.BatchFinish) {
		s.finish(spanKey{kind: kindBatch, rid: ridOf(ctx)}, nil,
			attribute.Int("batch.failed_changesets", e.FailedChangeSets),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.ChangeSetStart) {
		rid := ridOf(ctx)
		s.start(ctx, spanKey{kind: kindBatch, rid: rid}, spanKey{kind: kindChangeSet, rid: rid, op: e.Operation}, "changeset",
			attribute.Int("batch.operation", e.Operation),
			attribute.Int("changeset.size", e.Size),
		)
	}))
	add(eventbus.Subscribe(func(ctx context.Context, e events.ChangeSetFinish) {
		s.finish(spanKey{kind: kindChangeSet, rid: ridOf(ctx), op: e.Operation}, e.Err,
			attribute.String("changeset.state", e.State.String()),
			attribute.Int("changeset.dispatched", e.Dispatched),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.DispatchStart) {
		rid := ridOf(ctx)
		parent := spanKey{kind: kindBatch, rid: rid}
		if e.Member >= 0 {
			parent = spanKey{kind: kindChangeSet, rid: rid, op: e.Operation}
		}
		attrs := []attribute.KeyValue{
			semconv.HTTPMethodKey.String(e.Method),
			attribute.String("odata.path", e.Path),
		}
		if e.ContentID != "" {
			attrs = append(attrs, attribute.String("odata.content_id", e.ContentID))
		}
		s.start(ctx, parent, spanKey{kind: kindDispatch, rid: rid, op: e.Operation, member: e.Member}, "dispatch", attrs...)
	}))
	add(eventbus.Subscribe(func(ctx context.Context, e events.DispatchFinish) {
		s.finish(spanKey{kind: kindDispatch, rid: ridOf(ctx), op: e.Operation, member: e.Member}, e.Err,
			semconv.HTTPStatusCodeKey.Int(e.Status),
		)
	}))

	add(eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientStart) {
		m, _ := events.MemberFromContext(ctx)
		rid := ridOf(ctx)
		s.start(ctx,
			spanKey{kind: kindDispatch, rid: rid, op: m.Operation, member: m.Index},
			spanKey{kind: kindGRPC, rid: rid, op: m.Operation, member: m.Index},
			"grpc.client",
			semconv.RPCMethodKey.String(e.Method),
			attribute.String("odatabatch.route", e.Route),
			attribute.String("net.peer.name", e.Target),
		)
	}))
	add(eventbus.Subscribe(func(ctx context.Context, e events.GRPCClientFinish) {
		m, _ := events.MemberFromContext(ctx)
		s.finish(spanKey{kind: kindGRPC, rid: ridOf(ctx), op: m.Operation, member: m.Index}, e.Err,
			attribute.String("grpc.code", e.Code.String()),
		)
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

