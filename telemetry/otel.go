// Package telemetry bootstraps OpenTelemetry trace and log export over OTLP
// HTTP.
package telemetry

import (
	"context"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/higuera/dashboard/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

const exportTimeout = 10 * time.Second

// ShutdownFunc flushes and stops the exporters.
type ShutdownFunc func()

// Provider carries the tracer and the OTLP-backed logger for a service.
type Provider struct {
	Tracer trace.Tracer
	Logger logger.Logger
}

// New exports traces to <endpoint>/v1/traces and logs to <endpoint>/v1/logs.
// A non-empty authToken is sent as a bearer token. Plain http endpoints are
// dialed without TLS.
func New(ctx context.Context, endpoint string, authToken string, serviceName string) (*Provider, ShutdownFunc, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error parsing otlp endpoint")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, nil, errors.Newf("otlp endpoint %q must be an absolute url", endpoint)
	}
	u.Path = "/v1/logs"
	logURL := u.String()
	u.Path = "/v1/traces"
	traceURL := u.String()
	insecure := u.Scheme == "http"

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) && !errors.Is(err, resource.ErrSchemaURLConflict) {
		return nil, nil, errors.Wrap(err, "error creating resource")
	}

	headers := make(map[string]string)
	if authToken != "" {
		headers["Authorization"] = "Bearer " + authToken
	}

	logOpts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(logURL),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(exportTimeout),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(traceURL),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(exportTimeout),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if insecure {
		logOpts = append(logOpts, otlploghttp.WithInsecure())
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}

	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating log exporter")
	}
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating trace exporter")
	}

	logProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(traceProvider)

	p := &Provider{
		Tracer: traceProvider.Tracer(serviceName),
		Logger: logger.NewOtelLogger(logProvider.Logger(serviceName), logger.LevelTrace),
	}
	return p, func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		_ = traceProvider.Shutdown(ctx)
		_ = logProvider.Shutdown(ctx)
	}, nil
}
