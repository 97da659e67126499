package middleware

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for enrich metrics.
const meterName = "github.com/xraph/enrich"

// Metrics returns middleware that records per-attempt metrics using the
// global OTel MeterProvider.
//
// Instruments:
//   - enrich.attempt.duration (Float64Histogram): attempt time in seconds,
//     with attributes: status ("ok" or "error"), final (bool)
//   - enrich.attempt.executions (Int64Counter): total attempts,
//     with the same attributes
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"enrich.attempt.duration",
		metric.WithDescription("Duration of handler attempts in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"enrich.attempt.executions",
		metric.WithDescription("Total number of handler attempts"),
		metric.WithUnit("{attempt}"),
	)

	return func(ctx context.Context, a *Attempt, next Handler) (json.RawMessage, error) {
		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("status", status),
			attribute.Bool("final", err == nil || a.Last()),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return result, err
	}
}
