package domain

import (
	"time"
)

// RunID identifies a load run. It is the same identifier that labels the
// run's logs and shared counters.
type RunID string

// Run is the record of a finished load run: how it was configured and what
// it measured.
type Run struct {
	ID RunID `json:"id"`

	// Target is the base URL the requests were sent to.
	Target    string        `json:"target"`
	Users     int           `json:"users"`
	SpawnRate float64       `json:"spawnRate"`
	WaitMin   time.Duration `json:"waitMin"`
	WaitMax   time.Duration `json:"waitMax"`
	Seed      uint64        `json:"seed"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Requests int64   `json:"requests"`
	Failures int64   `json:"failures"`
	RPS      float64 `json:"rps"`
	// Statuses counts responses by HTTP status code.
	Statuses map[int]int64 `json:"statuses"`

	// Entries holds the per-name statistics, sorted by name.
	Entries []RunEntry `json:"entries,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Duration returns how long the run lasted.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailureRatio returns the share of failed requests, 0 for an empty run.
func (r Run) FailureRatio() float64 {
	if r.Requests == 0 {
		return 0
	}

	return float64(r.Failures) / float64(r.Requests)
}

// RunEntry is the latency and outcome summary of one request name.
type RunEntry struct {
	Name     string        `json:"name"`
	Requests int64         `json:"requests"`
	Failures int64         `json:"failures"`
	Min      time.Duration `json:"min"`
	Max      time.Duration `json:"max"`
	Mean     time.Duration `json:"mean"`
	Median   time.Duration `json:"median"`
	P90      time.Duration `json:"p90"`
	P95      time.Duration `json:"p95"`
	P99      time.Duration `json:"p99"`
	AvgBytes int64         `json:"avgBytes"`
	RPS      float64       `json:"rps"`
}
