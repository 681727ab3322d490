// Package stats collects the outcome of every request issued by the load
// generator. A Sink receives samples; the Aggregator builds the end-of-run
// report, the OtelSink feeds Prometheus and the RedisSink shares counters
// between processes taking part in the same run.
package stats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"iconload/internal/icontask"
)

// Sample is the outcome of one request.
type Sample struct {
	Name       string
	Host       string
	StatusCode int
	Latency    time.Duration
	Bytes      int64
	Err        error
	At         time.Time
}

// FromResult converts a task result into a sample.
func FromResult(res icontask.Result) Sample {
	at := res.Start
	if at.IsZero() {
		at = time.Now()
	}

	return Sample{
		Name:       res.Name,
		Host:       res.Host,
		StatusCode: res.StatusCode,
		Latency:    res.Latency,
		Bytes:      res.Bytes,
		Err:        res.Err,
		At:         at,
	}
}

// Failed reports whether the request counts as a failure: it did not
// complete or the server answered with a 4xx/5xx status.
func (s Sample) Failed() bool {
	return s.Err != nil || s.StatusCode >= http.StatusBadRequest
}

// FailureReason is the key failures are grouped by.
func (s Sample) FailureReason() string {
	switch {
	case s.Err != nil:
		return s.Err.Error()
	case s.StatusCode >= http.StatusBadRequest:
		return fmt.Sprintf("HTTP %d %s", s.StatusCode, http.StatusText(s.StatusCode))
	default:
		return ""
	}
}

// Sink receives samples. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, s Sample) error
}

// UserObserver is implemented by sinks that track how many simulated users
// are running.
type UserObserver interface {
	UserStarted(ctx context.Context)
	UserStopped(ctx context.Context)
}

// MultiSink fans every sample out to all of its sinks.
type MultiSink []Sink

// Record forwards s to every sink and joins their errors.
func (m MultiSink) Record(ctx context.Context, s Sample) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// UserStarted forwards to every sink that observes users.
func (m MultiSink) UserStarted(ctx context.Context) {
	for _, sink := range m {
		if o, ok := sink.(UserObserver); ok {
			o.UserStarted(ctx)
		}
	}
}

// UserStopped forwards to every sink that observes users.
func (m MultiSink) UserStopped(ctx context.Context) {
	for _, sink := range m {
		if o, ok := sink.(UserObserver); ok {
			o.UserStopped(ctx)
		}
	}
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, s Sample) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, s Sample) error { return f(ctx, s) }

var (
	_ Sink         = MultiSink(nil)
	_ UserObserver = MultiSink(nil)
)
