// Package metrics holds settings shared by the metric instruments.
package metrics

// LatencyBuckets are histogram boundaries in seconds for request latency.
// Icons are small, so the low end is denser than the usual defaults.
var LatencyBuckets = []float64{ //nolint: gochecknoglobals
	.001, .0025, .005, .01, .025, .05, .075, .1, .25, .5, .75, 1, 2.5, 5, 10,
}
