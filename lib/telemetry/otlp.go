package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolGRPC Protocol = "grpc"
)

// Endpoint is where one signal is exported to. An endpoint without a URL
// disables that signal.
type Endpoint struct {
	URL string `json:"url"`
	// http when empty
	Protocol Protocol          `json:"protocol"`
	Headers  map[string]string `json:"headers"`
}

func (e Endpoint) Enabled() bool {
	return e.URL != ""
}

func (e Endpoint) protocol() (Protocol, error) {
	switch e.Protocol {
	case "", ProtocolHTTP:
		return ProtocolHTTP, nil
	case ProtocolGRPC:
		return ProtocolGRPC, nil
	}
	return "", fmt.Errorf("unknown otlp protocol %q", e.Protocol)
}

// Config is read from telemetry.json5.
type Config struct {
	Traces  Endpoint `json:"traces"`
	Metrics Endpoint `json:"metrics"`
	// deployment.environment, e.g. "github-actions" or "laptop"
	Environment string `json:"environment"`
	// fraction of runs that are traced, all of them when 0
	SampleRatio float64 `json:"sample_ratio"`
	// defaults to 5
	MetricIntervalSeconds int `json:"metric_interval_seconds"`
}

const exporterDialTimeout = 3 * time.Second

func newResource(serviceName, environment string) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithHost(),
		resource.WithProcessPID(),
	}
	if environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(environment)))
	}
	custom, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, err
	}
	return resource.Merge(resource.Default(), custom)
}

func newTraceProvider(ctx context.Context, r *resource.Resource, c Config) (*trace.TracerProvider, error) {
	exporter, err := newSpanExporter(ctx, c.Traces)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	sampler := trace.AlwaysSample()
	if c.SampleRatio > 0 && c.SampleRatio < 1 {
		sampler = trace.TraceIDRatioBased(c.SampleRatio)
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
		trace.WithSampler(trace.ParentBased(sampler)),
	), nil
}

func newSpanExporter(ctx context.Context, e Endpoint) (trace.SpanExporter, error) {
	protocol, err := e.protocol()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	slog.Info("exporting traces", "protocol", protocol, "url", e.URL, "headers", len(e.Headers))
	if protocol == ProtocolGRPC {
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(e.URL),
			otlptracegrpc.WithHeaders(e.Headers),
		)
	}
	return otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(e.URL),
		otlptracehttp.WithHeaders(e.Headers),
	)
}

func newMetricProvider(ctx context.Context, r *resource.Resource, c Config) (*metric.MeterProvider, error) {
	exporter, err := newMetricExporter(ctx, c.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}

	interval := 5 * time.Second
	if c.MetricIntervalSeconds > 0 {
		interval = time.Duration(c.MetricIntervalSeconds) * time.Second
	}
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
		metric.WithResource(r),
	), nil
}

func newMetricExporter(ctx context.Context, e Endpoint) (metric.Exporter, error) {
	protocol, err := e.protocol()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	slog.Info("exporting metrics", "protocol", protocol, "url", e.URL, "headers", len(e.Headers))
	if protocol == ProtocolGRPC {
		return otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpointURL(e.URL),
			otlpmetricgrpc.WithHeaders(e.Headers),
		)
	}
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(e.URL),
		otlpmetrichttp.WithHeaders(e.Headers),
	)
}
