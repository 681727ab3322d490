package stats_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"iconload/internal/stats"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader sdkmetric.Reader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}

	return out
}

func TestOtelSink(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	sink, err := stats.NewOtelSink(mp)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, sample(20*time.Millisecond, http.StatusOK, nil)))
	require.NoError(t, sink.Record(ctx, sample(30*time.Millisecond, http.StatusOK, nil)))
	require.NoError(t, sink.Record(ctx, sample(time.Millisecond, 0, errors.New("refused"))))

	sink.UserStarted(ctx)
	sink.UserStarted(ctx)
	sink.UserStopped(ctx)

	metrics := collect(t, reader)

	requests, ok := metrics["iconload.requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byStatus := map[string]int64{}
	for _, dp := range requests.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		byStatus[status.AsString()] += dp.Value
	}
	require.Equal(t, map[string]int64{"200": 2, "error": 1}, byStatus)

	duration, ok := metrics["iconload.request.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	require.EqualValues(t, 3, duration.DataPoints[0].Count)
	require.InDelta(t, 0.051, duration.DataPoints[0].Sum, 0.0001)

	users, ok := metrics["iconload.active.users"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, users.DataPoints, 1)
	require.EqualValues(t, 1, users.DataPoints[0].Value)
}

func TestMultiSink_ForwardsUserEvents(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	sink, err := stats.NewOtelSink(mp)
	require.NoError(t, err)

	m := stats.MultiSink{stats.NewAggregator(), sink}
	m.UserStarted(context.Background())

	users, ok := collect(t, reader)["iconload.active.users"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.EqualValues(t, 1, users.DataPoints[0].Value)
}
