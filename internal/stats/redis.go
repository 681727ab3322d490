package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldRequests     = "requests"
	fieldFailures     = "failures"
	fieldBytes        = "bytes"
	fieldStatusPrefix = "status:"
)

// RedisSink shares request counters between load generator processes that
// take part in the same run. Counters live in hashes:
//
//	<prefix>:run:<runID>:total                requests, failures, bytes, status:<code>
//	<prefix>:run:<runID>:minute:<yyyymmddHHMM> requests, failures
type RedisSink struct {
	rdb    redis.UniversalClient
	prefix string
	runID  string
	ttl    time.Duration
}

type RedisOption func(*RedisSink)

// WithRedisPrefix namespaces every key.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisSink) { s.prefix = strings.Trim(prefix, ":") }
}

// WithRedisTTL sets the expiry of every key written. Zero keeps keys forever.
func WithRedisTTL(d time.Duration) RedisOption {
	return func(s *RedisSink) { s.ttl = d }
}

// NewRedisSink returns a sink writing the counters of runID.
func NewRedisSink(rdb redis.UniversalClient, runID string, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		rdb:    rdb,
		prefix: "iconload",
		runID:  runID,
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// TotalKey is the hash holding the cumulative counters of runID.
func (s *RedisSink) TotalKey(runID string) string {
	return s.prefix + ":run:" + runID + ":total"
}

// MinuteKey is the hash holding the counters of runID for the minute of at.
func (s *RedisSink) MinuteKey(runID string, at time.Time) string {
	return s.prefix + ":run:" + runID + ":minute:" + at.UTC().Format("200601021504")
}

// Record increments the run counters in a single pipeline.
func (s *RedisSink) Record(ctx context.Context, sample Sample) error {
	at := sample.At
	if at.IsZero() {
		at = time.Now()
	}

	totalKey := s.TotalKey(s.runID)
	minuteKey := s.MinuteKey(s.runID, at)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, fieldRequests, 1)
	pipe.HIncrBy(ctx, minuteKey, fieldRequests, 1)
	if sample.Failed() {
		pipe.HIncrBy(ctx, totalKey, fieldFailures, 1)
		pipe.HIncrBy(ctx, minuteKey, fieldFailures, 1)
	}
	if sample.Bytes > 0 {
		pipe.HIncrBy(ctx, totalKey, fieldBytes, sample.Bytes)
	}
	if sample.StatusCode != 0 {
		pipe.HIncrBy(ctx, totalKey, fieldStatusPrefix+strconv.Itoa(sample.StatusCode), 1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, totalKey, s.ttl)
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("could not record sample in redis: %w", err)
	}

	return nil
}

// Totals are the counters of a run summed over every process.
type Totals struct {
	Requests int64
	Failures int64
	Bytes    int64
	Statuses map[int]int64
}

// Totals reads the cumulative counters of runID.
func (s *RedisSink) Totals(ctx context.Context, runID string) (Totals, error) {
	fields, err := s.rdb.HGetAll(ctx, s.TotalKey(runID)).Result()
	if err != nil {
		return Totals{}, fmt.Errorf("could not read run totals from redis: %w", err)
	}

	t := Totals{Statuses: map[int]int64{}}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Totals{}, fmt.Errorf("could not parse %s=%q: %w", field, raw, err)
		}

		switch {
		case field == fieldRequests:
			t.Requests = n
		case field == fieldFailures:
			t.Failures = n
		case field == fieldBytes:
			t.Bytes = n
		case strings.HasPrefix(field, fieldStatusPrefix):
			code, err := strconv.Atoi(strings.TrimPrefix(field, fieldStatusPrefix))
			if err != nil {
				return Totals{}, fmt.Errorf("could not parse status field %q: %w", field, err)
			}
			t.Statuses[code] = n
		}
	}

	return t, nil
}

var _ Sink = (*RedisSink)(nil)
