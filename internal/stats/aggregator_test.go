package stats_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"iconload/internal/icontask"
	"iconload/internal/stats"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sample(latency time.Duration, status int, err error) stats.Sample {
	return stats.Sample{
		Name:       "/[host]/icon.png",
		Host:       "www.google.com",
		StatusCode: status,
		Latency:    latency,
		Bytes:      100,
		Err:        err,
	}
}

// requireNear checks got against want within the 0.1% resolution of the
// latency histogram.
func requireNear(t *testing.T, want, got time.Duration) {
	t.Helper()
	require.InDelta(t, float64(want), float64(got), float64(want)/1000+float64(time.Microsecond))
}

func TestSample_Failed(t *testing.T) {
	require.False(t, sample(time.Millisecond, http.StatusOK, nil).Failed())
	require.False(t, sample(time.Millisecond, http.StatusNotModified, nil).Failed())
	require.True(t, sample(time.Millisecond, http.StatusNotFound, nil).Failed())
	require.True(t, sample(time.Millisecond, http.StatusBadGateway, nil).Failed())
	require.True(t, sample(time.Millisecond, 0, errors.New("refused")).Failed())

	require.Equal(t, "HTTP 404 Not Found", sample(0, http.StatusNotFound, nil).FailureReason())
	require.Equal(t, "refused", sample(0, 0, errors.New("refused")).FailureReason())
	require.Empty(t, sample(0, http.StatusOK, nil).FailureReason())
}

func TestFromResult(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s := stats.FromResult(icontask.Result{
		Name:       "/[host]/icon.png",
		Host:       "www.google.com",
		URL:        "http://localhost:50024/www.google.com/icon.png?cache=false",
		StatusCode: http.StatusOK,
		Latency:    42 * time.Millisecond,
		Bytes:      512,
		Start:      start,
	})

	require.Equal(t, "/[host]/icon.png", s.Name)
	require.Equal(t, "www.google.com", s.Host)
	require.Equal(t, http.StatusOK, s.StatusCode)
	require.Equal(t, 42*time.Millisecond, s.Latency)
	require.EqualValues(t, 512, s.Bytes)
	require.Equal(t, start, s.At)
}

func TestAggregator_Report(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	agg := stats.NewAggregatorWithClock(clock.Now)
	ctx := context.Background()

	// 1ms..100ms, one sample each
	for i := 1; i <= 100; i++ {
		require.NoError(t, agg.Record(ctx, sample(time.Duration(i)*time.Millisecond, http.StatusOK, nil)))
	}
	require.NoError(t, agg.Record(ctx, sample(5*time.Millisecond, http.StatusServiceUnavailable, nil)))
	require.NoError(t, agg.Record(ctx, sample(time.Millisecond, 0, errors.New("connection refused"))))

	clock.Advance(10 * time.Second)
	r := agg.Report()

	require.Equal(t, 10*time.Second, r.Elapsed)
	require.Len(t, r.Entries, 1)

	e := r.Entries[0]
	require.Equal(t, "/[host]/icon.png", e.Name)
	require.EqualValues(t, 102, e.Requests)
	require.EqualValues(t, 2, e.Failures)
	require.Equal(t, time.Millisecond, e.Min)
	require.Equal(t, 100*time.Millisecond, e.Max)
	// 1ms and 5ms appear twice, shifting every percentile above them by two samples
	requireNear(t, 49*time.Millisecond, e.Median)
	requireNear(t, 90*time.Millisecond, e.P90)
	requireNear(t, 95*time.Millisecond, e.P95)
	requireNear(t, 99*time.Millisecond, e.P99)
	require.InDelta(t, 10.2, e.RPS, 0.001)
	require.InDelta(t, 0.2, e.FailuresPerSecond, 0.001)
	require.EqualValues(t, 100, e.AvgBytes)

	require.Equal(t, stats.TotalName, r.Total.Name)
	require.Equal(t, e.Requests, r.Total.Requests)

	require.EqualValues(t, 100, r.Statuses[http.StatusOK])
	require.EqualValues(t, 1, r.Statuses[http.StatusServiceUnavailable])
	require.EqualValues(t, 1, r.Failures["connection refused"])
	require.EqualValues(t, 1, r.Failures["HTTP 503 Service Unavailable"])
	require.EqualValues(t, 102, r.Hosts["www.google.com"])
}

func TestAggregator_PercentilesStayWithinMinMax(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
	}{
		{name: "sub-millisecond", latency: 600 * time.Microsecond},
		{name: "just above a second", latency: 1049 * time.Millisecond},
		{name: "between rounding steps", latency: 149900 * time.Microsecond},
		{name: "sub-microsecond", latency: 300 * time.Nanosecond},
		{name: "beyond the histogram", latency: stats.MaxTrackedLatency + time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := stats.NewAggregator()
			for range 10 {
				require.NoError(t, agg.Record(context.Background(), sample(tt.latency, http.StatusOK, nil)))
			}

			e := agg.Report().Total
			require.Equal(t, tt.latency, e.Min)
			require.Equal(t, tt.latency, e.Max)
			require.Equal(t, tt.latency, e.Median)
			require.Equal(t, tt.latency, e.P99)
		})
	}
}

func TestAggregator_MixedLatencies(t *testing.T) {
	agg := stats.NewAggregator()
	ctx := context.Background()
	for range 10 {
		require.NoError(t, agg.Record(ctx, sample(600*time.Microsecond, http.StatusOK, nil)))
		require.NoError(t, agg.Record(ctx, sample(1049*time.Millisecond, http.StatusOK, nil)))
	}

	e := agg.Report().Total
	require.Equal(t, 600*time.Microsecond, e.Min)
	require.Equal(t, 1049*time.Millisecond, e.Max)
	require.LessOrEqual(t, e.Min, e.Median)
	require.LessOrEqual(t, e.Median, e.P90)
	require.LessOrEqual(t, e.P90, e.P99)
	require.LessOrEqual(t, e.P99, e.Max)
	requireNear(t, 600*time.Microsecond, e.Median)
	requireNear(t, 1049*time.Millisecond, e.P99)
}

func TestAggregator_MultipleNames(t *testing.T) {
	agg := stats.NewAggregator()
	ctx := context.Background()

	a := sample(10*time.Millisecond, http.StatusOK, nil)
	b := sample(20*time.Millisecond, http.StatusOK, nil)
	b.Name = "/[host]/favicon.ico"
	require.NoError(t, agg.Record(ctx, a))
	require.NoError(t, agg.Record(ctx, b))
	require.NoError(t, agg.Record(ctx, b))

	r := agg.Report()
	require.Len(t, r.Entries, 2)
	require.Equal(t, "/[host]/favicon.ico", r.Entries[0].Name, "entries are sorted by name")
	require.EqualValues(t, 2, r.Entries[0].Requests)
	require.EqualValues(t, 3, r.Total.Requests)
	require.Equal(t, 10*time.Millisecond, r.Total.Min)
	require.Equal(t, 20*time.Millisecond, r.Total.Max)
}

func TestAggregator_EmptyAndReset(t *testing.T) {
	agg := stats.NewAggregator()
	r := agg.Report()
	require.Empty(t, r.Entries)
	require.Zero(t, r.Total.Requests)
	require.Zero(t, r.Total.Median)

	require.NoError(t, agg.Record(context.Background(), sample(time.Millisecond, http.StatusOK, nil)))
	agg.Reset()
	require.Zero(t, agg.Report().Total.Requests)
}

func TestAggregator_Concurrent(t *testing.T) {
	agg := stats.NewAggregator()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				_ = agg.Record(ctx, sample(time.Millisecond, http.StatusOK, nil))
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 4000, agg.Report().Total.Requests)
}

func TestReport_Write(t *testing.T) {
	agg := stats.NewAggregator()
	ctx := context.Background()
	require.NoError(t, agg.Record(ctx, sample(12*time.Millisecond, http.StatusOK, nil)))
	require.NoError(t, agg.Record(ctx, sample(0, 0, errors.New("connection refused"))))

	var buf bytes.Buffer
	require.NoError(t, agg.Report().Write(&buf))

	out := buf.String()
	require.Contains(t, out, "/[host]/icon.png")
	require.Contains(t, out, stats.TotalName)
	require.Contains(t, out, "1 (50.00%)")
	require.Contains(t, out, "connection refused")
	require.Contains(t, out, "200")
}

func TestReport_WriteSubMillisecond(t *testing.T) {
	agg := stats.NewAggregator()
	require.NoError(t, agg.Record(context.Background(), sample(600*time.Microsecond, http.StatusOK, nil)))

	var buf bytes.Buffer
	require.NoError(t, agg.Report().Write(&buf))
	require.Contains(t, buf.String(), "0.60")
}

func TestMultiSink(t *testing.T) {
	var got []stats.Sample
	ok := stats.SinkFunc(func(_ context.Context, s stats.Sample) error {
		got = append(got, s)

		return nil
	})
	boom := errors.New("redis down")
	failing := stats.SinkFunc(func(context.Context, stats.Sample) error { return boom })

	m := stats.MultiSink{ok, failing, ok}
	err := m.Record(context.Background(), sample(time.Millisecond, http.StatusOK, nil))
	require.ErrorIs(t, err, boom)
	require.Len(t, got, 2, "a failing sink must not stop the others")
}
