// Package telemetry wires OpenTelemetry tracing and metrics into qastatus.
//
// Telemetry is off unless QASTATUS_OTEL_ENABLED=true; when off, no-op
// providers are installed and WrapDoer and HTTPClient return their arguments.
//
//	QASTATUS_OTEL_ENABLED=true                  enable spans (stderr) and metrics
//	QASTATUS_OTEL_STDOUT=true                   also print metrics to stderr
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT=host:port
//	OTEL_EXPORTER_OTLP_ENDPOINT=host:port       OTLP/HTTP metrics collector
//	OTEL_SERVICE_NAME=name                      override the service name
//
// Spans never go to stdout: stdout carries the run summary and reports.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/qaflow/qastatus"

// Export intervals. A run usually lasts seconds, so Shutdown's final flush
// is what normally delivers the data.
const (
	stdoutMetricInterval = 15 * time.Second
	otlpMetricInterval   = 30 * time.Second
)

// Settings is the telemetry configuration read from the environment.
type Settings struct {
	Enabled      bool
	StdoutMetric bool
	OTLPEndpoint string
	ServiceName  string
}

// SettingsFromEnv reads Settings. serviceName is used unless
// OTEL_SERVICE_NAME overrides it.
func SettingsFromEnv(serviceName string) Settings {
	s := Settings{
		Enabled:      Enabled(),
		StdoutMetric: os.Getenv("QASTATUS_OTEL_STDOUT") == "true",
		OTLPEndpoint: firstNonEmpty(
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
			os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		),
		ServiceName: serviceName,
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		s.ServiceName = name
	}
	return s
}

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry is active (QASTATUS_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("QASTATUS_OTEL_ENABLED") == "true"
}

// Init installs the global tracer and meter providers for one process.
func Init(ctx context.Context, serviceName, version string) error {
	s := SettingsFromEnv(serviceName)
	if !s.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(s.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := newTraceProvider(res)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := newMeterProvider(ctx, res, s)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

func newTraceProvider(res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, s Settings) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if s.StdoutMetric {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(stdoutMetricInterval)),
		))
	}
	if s.OTLPEndpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, s.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpMetricInterval)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer for name, or for the qastatus scope when name is empty.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter for name, or for the qastatus scope when name is empty.
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops the providers installed by Init. Errors from the
// individual providers are joined.
func Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range shutdownFns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	shutdownFns = nil
	return errors.Join(errs...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
