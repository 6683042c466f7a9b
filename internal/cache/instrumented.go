package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	metricsOnce     sync.Once
	cacheOperations metric.Int64Counter
	cacheDuration   metric.Float64Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/cccs/clue-client/internal/cache")

		var err error
		cacheOperations, err = meter.Int64Counter(
			"clue.cache.operations",
			metric.WithDescription("Client cache operations by outcome"),
		)
		if err != nil {
			otel.Handle(err)
		}

		cacheDuration, err = meter.Float64Histogram(
			"clue.cache.operation.duration",
			metric.WithDescription("Client cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
		}
	})
}

// Instrumented records the outcome and duration of each operation of the
// wrapped cache as metrics and span attributes.
type Instrumented[T any] struct {
	wrapped Cache[T]
	name    string
}

// NewInstrumented wraps cache; name distinguishes caches in the recorded
// attributes (e.g. "etag").
func NewInstrumented[T any](cache Cache[T], name string) *Instrumented[T] {
	initMetrics()
	return &Instrumented[T]{
		wrapped: cache,
		name:    name,
	}
}

func (i *Instrumented[T]) Get(ctx context.Context, key string) (T, bool, error) {
	start := time.Now()
	value, found, err := i.wrapped.Get(ctx, key)

	status := "miss"
	switch {
	case err != nil:
		status = "error"
	case found:
		status = "hit"
	}
	i.record(ctx, "get", status, time.Since(start))

	return value, found, err
}

func (i *Instrumented[T]) Set(ctx context.Context, key string, value T) error {
	start := time.Now()
	err := i.wrapped.Set(ctx, key, value)
	i.record(ctx, "set", outcome(err), time.Since(start))
	return err
}

func (i *Instrumented[T]) Invalidate(ctx context.Context, key string) error {
	start := time.Now()
	err := i.wrapped.Invalidate(ctx, key)
	i.record(ctx, "invalidate", outcome(err), time.Since(start))
	return err
}

func (i *Instrumented[T]) Close() error {
	return i.wrapped.Close()
}

func (i *Instrumented[T]) record(ctx context.Context, operation, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("cache.name", i.name),
		attribute.String("cache.operation", operation),
	}

	if cacheDuration != nil {
		cacheDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if cacheOperations != nil {
		cacheOperations.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("cache.status", status))...))
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("cache."+i.name+"."+operation+".status", status),
	)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
