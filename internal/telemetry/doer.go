package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/qaflow/qastatus/internal/graphql"
)

const graphqlScopeName = "github.com/qaflow/qastatus/graphql"

// InstrumentedDoer wraps graphql.Doer with OTel tracing and metrics.
// Every query and mutation gets a span and is counted in qastatus.graphql.*
// metrics. Use WrapDoer to create one; it returns the original doer unchanged
// when telemetry is disabled.
type InstrumentedDoer struct {
	inner  graphql.Doer
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapDoer returns d decorated with OTel instrumentation.
// When telemetry is disabled, d is returned as-is with zero overhead.
func WrapDoer(d graphql.Doer) graphql.Doer {
	if !Enabled() {
		return d
	}
	return newInstrumentedDoer(d)
}

func newInstrumentedDoer(d graphql.Doer) *InstrumentedDoer {
	m := Meter(graphqlScopeName)
	ops, _ := m.Int64Counter("qastatus.graphql.operations",
		metric.WithDescription("Total GraphQL operations executed"),
	)
	dur, _ := m.Float64Histogram("qastatus.graphql.operation.duration",
		metric.WithDescription("GraphQL operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("qastatus.graphql.errors",
		metric.WithDescription("Total GraphQL operation errors"),
	)
	return &InstrumentedDoer{
		inner:  d,
		tracer: Tracer(graphqlScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// Query implements graphql.Doer.
func (d *InstrumentedDoer) Query(ctx context.Context, doc string, vars map[string]interface{}) (json.RawMessage, error) {
	ctx, span, start := d.op(ctx, "query", doc)
	data, err := d.inner.Query(ctx, doc, vars)
	d.done(ctx, span, start, err, "query", doc)
	return data, err
}

// Mutate implements graphql.Doer.
func (d *InstrumentedDoer) Mutate(ctx context.Context, doc string, vars map[string]interface{}) (json.RawMessage, error) {
	ctx, span, start := d.op(ctx, "mutation", doc)
	data, err := d.inner.Mutate(ctx, doc, vars)
	d.done(ctx, span, start, err, "mutation", doc)
	return data, err
}

func (d *InstrumentedDoer) attrs(kind, doc string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("graphql.operation.type", kind),
		attribute.String("graphql.operation.name", OperationName(doc)),
	}
}

// op starts a span and counts the operation.
func (d *InstrumentedDoer) op(ctx context.Context, kind, doc string) (context.Context, trace.Span, time.Time) {
	attrs := d.attrs(kind, doc)
	ctx, span := d.tracer.Start(ctx, "graphql."+OperationName(doc),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	d.ops.Add(ctx, 1, metric.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (d *InstrumentedDoer) done(ctx context.Context, span trace.Span, start time.Time, err error, kind, doc string) {
	attrs := d.attrs(kind, doc)
	ms := float64(time.Since(start).Milliseconds())
	d.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// OperationName returns the name declared by a GraphQL document
// ("query IssueState($id: ID!)" -> "IssueState"), or "anonymous".
func OperationName(doc string) string {
	fields := strings.Fields(doc)
	for i, f := range fields {
		if (f == "query" || f == "mutation") && i+1 < len(fields) {
			name := fields[i+1]
			if j := strings.IndexAny(name, "({"); j >= 0 {
				name = name[:j]
			}
			if name != "" {
				return name
			}
			break
		}
	}
	return "anonymous"
}

// HTTPClient returns c with its transport wrapped in otelhttp so each request
// carries trace context. When telemetry is disabled, c is returned unchanged.
func HTTPClient(c *http.Client) *http.Client {
	if !Enabled() || c == nil {
		return c
	}
	wrapped := *c
	wrapped.Transport = otelhttp.NewTransport(c.Transport)
	return &wrapped
}
