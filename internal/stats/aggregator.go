package stats

import (
	"context"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"sort"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// TotalName is the name of the row aggregating every request name.
const TotalName = "Aggregated"

// maxTrackedLatency bounds the latency histogram. Slower requests are
// recorded at the bound; Max stays exact.
const maxTrackedLatency = time.Minute

// entry accumulates the samples of one request name. Latencies go into an
// HDR histogram of microseconds with three significant digits, so memory
// stays bounded on long runs.
type entry struct {
	requests int64
	failures int64
	bytes    int64
	total    time.Duration
	min      time.Duration
	max      time.Duration
	hist     *hdrhistogram.Histogram
}

func newEntry() *entry {
	return &entry{hist: hdrhistogram.New(1, maxTrackedLatency.Microseconds(), 3)}
}

func (e *entry) add(s Sample) {
	if e.requests == 0 || s.Latency < e.min {
		e.min = s.Latency
	}
	if s.Latency > e.max {
		e.max = s.Latency
	}
	e.requests++
	if s.Failed() {
		e.failures++
	}
	e.bytes += s.Bytes
	e.total += s.Latency

	micros := max(s.Latency.Microseconds(), 1)
	if err := e.hist.RecordValue(micros); err != nil {
		_ = e.hist.RecordValue(e.hist.HighestTrackableValue())
	}
}

// percentile returns the latency below which a fraction p of requests fall,
// kept within the observed minimum and maximum.
func (e *entry) percentile(p float64) time.Duration {
	if e.requests == 0 {
		return 0
	}

	d := time.Duration(e.hist.ValueAtQuantile(p*100)) * time.Microsecond

	return min(max(d, e.min), e.max)
}

func (e *entry) report(name string, elapsed time.Duration) EntryReport {
	r := EntryReport{
		Name:     name,
		Requests: e.requests,
		Failures: e.failures,
		Min:      e.min,
		Max:      e.max,
		Median:   e.percentile(0.50),
		P90:      e.percentile(0.90),
		P95:      e.percentile(0.95),
		P99:      e.percentile(0.99),
	}
	if e.requests > 0 {
		r.Mean = e.total / time.Duration(e.requests)
		r.AvgBytes = e.bytes / e.requests
	}
	if elapsed > 0 {
		r.RPS = float64(e.requests) / elapsed.Seconds()
		r.FailuresPerSecond = float64(e.failures) / elapsed.Seconds()
	}

	return r
}

// Aggregator is an in-memory Sink that builds the end-of-run report.
type Aggregator struct {
	mu       sync.Mutex
	started  time.Time
	now      func() time.Time
	entries  map[string]*entry
	total    *entry
	statuses map[int]int64
	failures map[string]int64
	hosts    map[string]int64
}

// NewAggregator returns an empty Aggregator whose clock starts now.
func NewAggregator() *Aggregator {
	return newAggregator(time.Now)
}

func newAggregator(now func() time.Time) *Aggregator {
	return &Aggregator{
		started:  now(),
		now:      now,
		entries:  map[string]*entry{},
		total:    newEntry(),
		statuses: map[int]int64{},
		failures: map[string]int64{},
		hosts:    map[string]int64{},
	}
}

// Record adds s to the aggregate.
func (a *Aggregator) Record(_ context.Context, s Sample) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.entries[s.Name]
	if !ok {
		e = newEntry()
		a.entries[s.Name] = e
	}
	e.add(s)
	a.total.add(s)

	if s.StatusCode != 0 {
		a.statuses[s.StatusCode]++
	}
	if reason := s.FailureReason(); reason != "" {
		a.failures[reason]++
	}
	if s.Host != "" {
		a.hosts[s.Host]++
	}

	return nil
}

// Reset clears every counter and restarts the clock.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.started = a.now()
	a.entries = map[string]*entry{}
	a.total = newEntry()
	a.statuses = map[int]int64{}
	a.failures = map[string]int64{}
	a.hosts = map[string]int64{}
}

// Report takes a snapshot of the aggregate.
func (a *Aggregator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	elapsed := a.now().Sub(a.started)
	names := slices.Sorted(maps.Keys(a.entries))
	entries := make([]EntryReport, 0, len(names))
	for _, name := range names {
		entries = append(entries, a.entries[name].report(name, elapsed))
	}

	return Report{
		Started:  a.started,
		Elapsed:  elapsed,
		Entries:  entries,
		Total:    a.total.report(TotalName, elapsed),
		Statuses: maps.Clone(a.statuses),
		Failures: maps.Clone(a.failures),
		Hosts:    maps.Clone(a.hosts),
	}
}

// EntryReport holds the statistics of one request name.
type EntryReport struct {
	Name              string
	Requests          int64
	Failures          int64
	Min               time.Duration
	Max               time.Duration
	Mean              time.Duration
	Median            time.Duration
	P90               time.Duration
	P95               time.Duration
	P99               time.Duration
	AvgBytes          int64
	RPS               float64
	FailuresPerSecond float64
}

// Report is an immutable snapshot of an Aggregator.
type Report struct {
	Started  time.Time
	Elapsed  time.Duration
	Entries  []EntryReport
	Total    EntryReport
	Statuses map[int]int64
	Failures map[string]int64
	Hosts    map[string]int64
}

// Write renders the report as aligned text tables.
func (r Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(tw, "Name\t# reqs\t# fails\tAvg\tMin\tMax\tMed\tp90\tp95\tp99\tAvg size\treq/s\tfailures/s\t\n")
	for _, e := range append(slices.Clone(r.Entries), r.Total) {
		fmt.Fprintf(tw, "%s\t%d\t%d (%.2f%%)\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\t\n",
			e.Name, e.Requests, e.Failures, percent(e.Failures, e.Requests),
			millis(e.Mean), millis(e.Min), millis(e.Max),
			millis(e.Median), millis(e.P90), millis(e.P95), millis(e.P99),
			e.AvgBytes, e.RPS, e.FailuresPerSecond)
	}

	if len(r.Statuses) > 0 {
		fmt.Fprintf(tw, "\t\t\t\t\t\t\t\t\t\t\t\t\t\n")
		fmt.Fprintf(tw, "Status\t# reqs\t\n")
		for _, code := range slices.Sorted(maps.Keys(r.Statuses)) {
			fmt.Fprintf(tw, "%d\t%d\t\n", code, r.Statuses[code])
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(tw, "\t\t\n")
		fmt.Fprintf(tw, "# occurrences\tError\t\n")
		reasons := slices.Collect(maps.Keys(r.Failures))
		sort.Slice(reasons, func(i, j int) bool {
			if r.Failures[reasons[i]] != r.Failures[reasons[j]] {
				return r.Failures[reasons[i]] > r.Failures[reasons[j]]
			}

			return reasons[i] < reasons[j]
		})
		for _, reason := range reasons {
			fmt.Fprintf(tw, "%d\t%s\t\n", r.Failures[reason], reason)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}

	return nil
}

// millis formats d in milliseconds, with decimals below 10ms.
func millis(d time.Duration) string {
	ms := float64(d) / float64(time.Millisecond)
	if ms < 10 {
		return strconv.FormatFloat(ms, 'f', 2, 64)
	}

	return strconv.FormatInt(int64(math.Round(ms)), 10)
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}

	return float64(part) * 100 / float64(whole)
}
