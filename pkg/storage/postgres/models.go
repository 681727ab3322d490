package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"iconload/pkg/domain"
)

type PgRun struct {
	ID string `db:"id"`

	Target    string  `db:"target"`
	Users     int     `db:"users"`
	SpawnRate float64 `db:"spawn_rate"`
	WaitMinUS int64   `db:"wait_min_us"`
	WaitMaxUS int64   `db:"wait_max_us"`
	// Seed keeps the bits of the unsigned seed in a signed BIGINT.
	Seed int64 `db:"seed"`

	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`

	Requests int64           `db:"requests"`
	Failures int64           `db:"failures"`
	RPS      float64         `db:"rps"`
	Statuses json.RawMessage `db:"statuses"`

	CreatedAt time.Time `db:"created_at" goqu:"skipinsert"`
}

type PgRunEntry struct {
	RunID string `db:"run_id"`
	Name  string `db:"name"`

	Requests int64 `db:"requests"`
	Failures int64 `db:"failures"`
	MinUS    int64 `db:"min_us"`
	MaxUS    int64 `db:"max_us"`
	MeanUS   int64 `db:"mean_us"`
	MedianUS int64 `db:"median_us"`
	P90US    int64 `db:"p90_us"`
	P95US    int64 `db:"p95_us"`
	P99US    int64 `db:"p99_us"`

	AvgBytes int64   `db:"avg_bytes"`
	RPS      float64 `db:"rps"`
}

func fromMicros(us int64) time.Duration { return time.Duration(us) * time.Microsecond }

func (p *PgRun) ToDomain() (*domain.Run, error) {
	// JSON object keys are strings
	var raw map[string]int64
	if len(p.Statuses) > 0 {
		if err := json.Unmarshal(p.Statuses, &raw); err != nil {
			return nil, fmt.Errorf("could not unmarshal run statuses: %w", err)
		}
	}
	statuses := make(map[int]int64, len(raw))
	for code, n := range raw {
		c, err := strconv.Atoi(code)
		if err != nil {
			return nil, fmt.Errorf("could not parse status code %q: %w", code, err)
		}
		statuses[c] = n
	}

	return &domain.Run{
		ID:         domain.RunID(p.ID),
		Target:     p.Target,
		Users:      p.Users,
		SpawnRate:  p.SpawnRate,
		WaitMin:    fromMicros(p.WaitMinUS),
		WaitMax:    fromMicros(p.WaitMaxUS),
		Seed:       uint64(p.Seed), //nolint: gosec
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
		Requests:   p.Requests,
		Failures:   p.Failures,
		RPS:        p.RPS,
		Statuses:   statuses,
		CreatedAt:  p.CreatedAt,
	}, nil
}

func (p *PgRun) FromDomain(run domain.Run) error {
	statuses := run.Statuses
	if statuses == nil {
		statuses = map[int]int64{}
	}
	b, err := json.Marshal(statuses)
	if err != nil {
		return fmt.Errorf("could not marshal run statuses: %w", err)
	}

	*p = PgRun{
		ID:         string(run.ID),
		Target:     run.Target,
		Users:      run.Users,
		SpawnRate:  run.SpawnRate,
		WaitMinUS:  run.WaitMin.Microseconds(),
		WaitMaxUS:  run.WaitMax.Microseconds(),
		Seed:       int64(run.Seed), //nolint: gosec
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Requests:   run.Requests,
		Failures:   run.Failures,
		RPS:        run.RPS,
		Statuses:   b,
	}

	return nil
}

func (e *PgRunEntry) ToDomain() domain.RunEntry {
	return domain.RunEntry{
		Name:     e.Name,
		Requests: e.Requests,
		Failures: e.Failures,
		Min:      fromMicros(e.MinUS),
		Max:      fromMicros(e.MaxUS),
		Mean:     fromMicros(e.MeanUS),
		Median:   fromMicros(e.MedianUS),
		P90:      fromMicros(e.P90US),
		P95:      fromMicros(e.P95US),
		P99:      fromMicros(e.P99US),
		AvgBytes: e.AvgBytes,
		RPS:      e.RPS,
	}
}

func runEntriesToPg(id domain.RunID, entries []domain.RunEntry) []PgRunEntry {
	out := make([]PgRunEntry, len(entries))
	for i, e := range entries {
		out[i] = PgRunEntry{
			RunID:    string(id),
			Name:     e.Name,
			Requests: e.Requests,
			Failures: e.Failures,
			MinUS:    e.Min.Microseconds(),
			MaxUS:    e.Max.Microseconds(),
			MeanUS:   e.Mean.Microseconds(),
			MedianUS: e.Median.Microseconds(),
			P90US:    e.P90.Microseconds(),
			P95US:    e.P95.Microseconds(),
			P99US:    e.P99.Microseconds(),
			AvgBytes: e.AvgBytes,
			RPS:      e.RPS,
		}
	}

	return out
}

func pgRunsToDomain(runs []PgRun) ([]domain.Run, error) {
	out := make([]domain.Run, 0, len(runs))
	for _, run := range runs {
		d, err := run.ToDomain()
		if err != nil {
			return nil, err
		}

		out = append(out, *d)
	}

	return out, nil
}
