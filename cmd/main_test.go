package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"iconload/internal/config"
	"iconload/internal/harness"
	"iconload/internal/stats"
	"iconload/pkg/domain"

	"github.com/stretchr/testify/require"
)

func TestConfigArgs(t *testing.T) {
	tests := []struct {
		args []string
		want []string
	}{
		{args: []string{"run", "-u", "10"}, want: nil},
		{args: []string{"-c", "prod.yml", "run"}, want: []string{"-c", "prod.yml"}},
		{args: []string{"run", "--config", "prod.yml", "-u", "3"}, want: []string{"-c", "prod.yml"}},
		{args: []string{"run", "--config=prod.yml"}, want: []string{"-c", "prod.yml"}},
		{args: []string{"serve", "-c=dev.yml"}, want: []string{"-c", "dev.yml"}},
		{args: []string{"run", "-c"}, want: nil},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, configArgs(tt.args), tt.args)
	}
}

func TestRunRecord(t *testing.T) {
	var cfg config.Config
	cfg.Target.Host = "http://localhost:50024"
	cfg.Load.SpawnRate = 2
	cfg.Load.WaitMin = time.Second
	cfg.Load.WaitMax = 2500 * time.Millisecond

	started := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	summary := harness.Summary{
		RunID:    "run-1",
		Seed:     42,
		Started:  started,
		Finished: started.Add(time.Minute),
		Users:    5,
	}
	report := stats.Report{
		Entries: []stats.EntryReport{{Name: "/[host]/icon.png", Requests: 10, Failures: 1, Median: 20 * time.Millisecond}},
		Total:   stats.EntryReport{Name: stats.TotalName, Requests: 10, Failures: 1, RPS: 0.5},
		Statuses: map[int]int64{
			http.StatusOK:                 9,
			http.StatusServiceUnavailable: 1,
		},
	}

	run := runRecord(&cfg, summary, report)
	require.Equal(t, domain.RunID("run-1"), run.ID)
	require.Equal(t, cfg.Target.Host, run.Target)
	require.Equal(t, 5, run.Users)
	require.EqualValues(t, 42, run.Seed)
	require.Equal(t, time.Minute, run.Duration())
	require.EqualValues(t, 10, run.Requests)
	require.InDelta(t, 0.1, run.FailureRatio(), 1e-9)
	require.Len(t, run.Entries, 1)
	require.Equal(t, 20*time.Millisecond, run.Entries[0].Median)
}

func TestWriteRuns(t *testing.T) {
	started := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	run := domain.Run{
		ID:         "run-1",
		Target:     "http://localhost:50024",
		Users:      5,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Requests:   200,
		Failures:   2,
		RPS:        2.22,
		Entries: []domain.RunEntry{
			{Name: "/[host]/icon.png", Requests: 200, Failures: 2, P95: 80 * time.Millisecond},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeRun(&buf, &run))

	out := buf.String()
	require.Contains(t, out, "run-1")
	require.Contains(t, out, "1m30s")
	require.Contains(t, out, "2 (1.00%)")
	require.Contains(t, out, "/[host]/icon.png")
	require.Contains(t, out, "80ms")
}

func TestStartServer(t *testing.T) {
	srv := &http.Server{
		Addr: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
		ReadHeaderTimeout: time.Second,
	}
	stop, err := startServer(context.Background(), "test", srv)
	require.NoError(t, err)
	stop(context.Background())
}

func TestStartServer_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	_, err = startServer(context.Background(), "metrics", &http.Server{
		Addr:              ln.Addr().String(),
		ReadHeaderTimeout: time.Second,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "metrics")
}
