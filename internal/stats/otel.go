package stats

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"iconload/pkg/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "iconload"

// OtelSink records samples as OpenTelemetry instruments. With the
// Prometheus exporter they appear as iconload_requests_total,
// iconload_request_duration_seconds and iconload_active_users.
type OtelSink struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	bytes    metric.Int64Counter
	users    atomic.Int64
}

// NewOtelSink creates the instruments on a meter of mp.
func NewOtelSink(mp metric.MeterProvider) (*OtelSink, error) {
	meter := mp.Meter(meterName)
	s := &OtelSink{}

	var err error
	s.requests, err = meter.Int64Counter("iconload.requests",
		metric.WithDescription("Icon requests issued, by name, status and result."))
	if err != nil {
		return nil, fmt.Errorf("could not create requests counter: %w", err)
	}

	s.duration, err = meter.Float64Histogram("iconload.request.duration",
		metric.WithDescription("Icon request latency including the response body."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.LatencyBuckets...))
	if err != nil {
		return nil, fmt.Errorf("could not create duration histogram: %w", err)
	}

	s.bytes, err = meter.Int64Counter("iconload.response.size",
		metric.WithDescription("Response body bytes read."),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("could not create response size counter: %w", err)
	}

	_, err = meter.Int64ObservableGauge("iconload.active.users",
		metric.WithDescription("Simulated users currently running."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(s.users.Load())

			return nil
		}))
	if err != nil {
		return nil, fmt.Errorf("could not create active users gauge: %w", err)
	}

	return s, nil
}

// Record adds s to the instruments.
func (o *OtelSink) Record(ctx context.Context, s Sample) error {
	status := "error"
	if s.StatusCode != 0 {
		status = strconv.Itoa(s.StatusCode)
	}
	result := "success"
	if s.Failed() {
		result = "failure"
	}

	name := attribute.String("name", s.Name)
	o.requests.Add(ctx, 1, metric.WithAttributes(name,
		attribute.String("status", status),
		attribute.String("result", result)))
	o.duration.Record(ctx, s.Latency.Seconds(), metric.WithAttributes(name))
	o.bytes.Add(ctx, s.Bytes, metric.WithAttributes(name))

	return nil
}

// UserStarted increments the active users gauge.
func (o *OtelSink) UserStarted(context.Context) { o.users.Add(1) }

// UserStopped decrements the active users gauge.
func (o *OtelSink) UserStopped(context.Context) { o.users.Add(-1) }

var (
	_ Sink         = (*OtelSink)(nil)
	_ UserObserver = (*OtelSink)(nil)
)
