package interfaces

import "context"

// Metric names used as keys in smoothed state and per-metric decisions.
const (
	MetricActiveUsers = "active_users"
	MetricCPU         = "cpu_utilization"
	MetricLatency     = "latency_ms"
	MetricGPU         = "gpu_utilization"
)

// MetricSample holds one raw reading per cycle. A nil field means the
// corresponding source failed or is not configured for this cycle.
// Samples are cycle-local: created by the collector, consumed by the
// smoother, then discarded.
type MetricSample struct {
	// ActiveUsers is the total number of active users across all pods.
	ActiveUsers *float64
	// CPUUtilization is the average CPU utilization percentage across pods.
	CPUUtilization *float64
	// LatencyMs is the average p95 response latency in milliseconds.
	LatencyMs *float64
	// GPUUtilization is the cluster-wide average GPU utilization percentage.
	GPUUtilization *float64
}

// Empty reports whether no metric was populated this cycle.
func (s MetricSample) Empty() bool {
	return s.ActiveUsers == nil && s.CPUUtilization == nil && s.LatencyMs == nil && s.GPUUtilization == nil
}

// MetricSource fetches the raw values it is responsible for and fills
// them into the sample. A source owns a fixed subset of the sample
// fields; implementations must leave the other fields untouched.
type MetricSource interface {
	// Name identifies the source in logs.
	Name() string
	// Collect populates the source's fields on the sample. An error means
	// the source contributed nothing this cycle; the cycle proceeds with
	// whatever the remaining sources return.
	Collect(ctx context.Context, sample *MetricSample) error
}
