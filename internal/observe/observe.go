// Package observe configures OpenTelemetry tracing and metrics for the client
// and instruments its outgoing HTTP transport.
package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"os"
	"time"

	"github.com/cccs/clue-client/internal/config"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and stops the configured providers.
type ShutdownFunc func(context.Context) error

// Configure installs the global tracer and meter providers described by cfg.
// When telemetry is disabled, nothing is installed and the returned shutdown
// does nothing.
func Configure(ctx context.Context, cfg config.ObserveConfig) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled {
		log.Ctx(ctx).Debug().Msg("telemetry disabled")
		return noop, nil
	}

	configureSDKLogging(cfg.SDKLogLevel)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("telemetry resource: %w", err)
	}

	traceExporter, err := newTraceExporter(ctx, cfg.Type)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(time.Duration(cfg.TraceBatchTimeoutSeconds)*time.Second),
		),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdowns := []ShutdownFunc{tp.Shutdown}

	if cfg.MetricsEnabled {
		metricExporter, err := newMetricExporter(ctx, cfg.Type)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return noop, err
		}

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
				sdkmetric.WithInterval(time.Duration(cfg.MetricReadIntervalSeconds)*time.Second),
			)),
			sdkmetric.WithResource(res),
		)

		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	log.Ctx(ctx).Info().
		Str("type", cfg.Type).
		Str("service", cfg.ServiceName).
		Bool("metrics", cfg.MetricsEnabled).
		Msg("telemetry configured")

	return func(ctx context.Context) error {
		var errs []error
		for _, shutdown := range shutdowns {
			errs = append(errs, shutdown(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func newTraceExporter(ctx context.Context, exporterType string) (sdktrace.SpanExporter, error) {
	switch exporterType {
	case "grpc":
		return otlptracegrpc.New(ctx)
	case "stdout":
		// stdout is reserved for command output
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	default:
		return nil, fmt.Errorf("unknown telemetry type %q: must be either \"grpc\" or \"stdout\"", exporterType)
	}
}

func newMetricExporter(ctx context.Context, exporterType string) (sdkmetric.Exporter, error) {
	switch exporterType {
	case "grpc":
		return otlpmetricgrpc.New(ctx)
	case "stdout":
		return stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	default:
		return nil, fmt.Errorf("unknown telemetry type %q: must be either \"grpc\" or \"stdout\"", exporterType)
	}
}

// configureSDKLogging routes the SDK's internal logging through zerolog at the
// requested level.
func configureSDKLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger := log.Logger.With().Str("component", "otel").Logger().Level(lvl)
	otel.SetLogger(zerologr.New(&logger))

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn().Err(err).Msg("telemetry error")
	}))
}

// HTTPTransport instruments base with client spans and, when connection
// tracing is enabled, spans for DNS, connect and TLS phases. The base is
// returned unchanged when transport telemetry is disabled.
func HTTPTransport(base http.RoundTripper, cfg config.ObserveConfig) http.RoundTripper {
	if !cfg.Enabled || !cfg.HTTPTransportEnabled {
		return base
	}

	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(SpanName),
	}

	if cfg.HTTPConnectionTraceEnabled {
		opts = append(opts, otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
			return otelhttptrace.NewClientTrace(ctx)
		}))
	}

	return otelhttp.NewTransport(base, opts...)
}

// SpanName names client spans after the request method and path; the query is
// left out as it can carry selector values.
func SpanName(_ string, r *http.Request) string {
	return "clue " + r.Method + " " + r.URL.Path
}
