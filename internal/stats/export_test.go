package stats

// MaxTrackedLatency exposes the upper bound of the latency histogram.
const MaxTrackedLatency = maxTrackedLatency
