// Package engine converts smoothed metric values into a desired replica
// count. Each configured metric proposes its own count; the proposals are
// combined with max so that any single overloaded signal can force a
// scale-out, and metrics never collectively veto one.
package engine

import (
	"math"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
)

// Targets holds the per-metric setpoints. A target <= 0 disables the
// corresponding signal entirely; its smoothed value is ignored.
type Targets struct {
	// UsersPerPod is the absolute number of active users one pod serves.
	UsersPerPod float64
	// CPUPercent is the CPU utilization setpoint per pod.
	CPUPercent float64
	// GPUPercent is the accelerator utilization setpoint.
	GPUPercent float64
	// LatencyMs is the p95 latency setpoint.
	LatencyMs float64
}

// DecisionEngine computes per-metric desired replica counts and their
// bounded combination. It is stateless; currentReplicas is passed in
// each cycle by the caller.
type DecisionEngine struct {
	targets     Targets
	minReplicas int32
	maxReplicas int32
}

// NewDecisionEngine creates a DecisionEngine with the given targets and
// replica bounds. Bounds are validated at config load.
func NewDecisionEngine(targets Targets, minReplicas, maxReplicas int32) *DecisionEngine {
	return &DecisionEngine{
		targets:     targets,
		minReplicas: minReplicas,
		maxReplicas: maxReplicas,
	}
}

// Desire computes the per-cycle desired replica counts from the smoothed
// metric values. When no enabled metric has a smoothed value, RawDesired
// equals currentReplicas (hold). The clamp to [min,max] happens here,
// before step limiting, so a step-limited action can never walk past the
// configured bounds in multiple hops.
func (e *DecisionEngine) Desire(smoothed map[string]float64, currentReplicas int32) interfaces.ScalingDecision {
	perMetric := make(map[string]int32)

	if users, ok := smoothed[interfaces.MetricActiveUsers]; ok && e.targets.UsersPerPod > 0 {
		perMetric[interfaces.MetricActiveUsers] = desiredByCapacity(users, e.targets.UsersPerPod)
	}
	if cpu, ok := smoothed[interfaces.MetricCPU]; ok && e.targets.CPUPercent > 0 {
		perMetric[interfaces.MetricCPU] = desiredByUtilization(currentReplicas, cpu, e.targets.CPUPercent)
	}
	if gpu, ok := smoothed[interfaces.MetricGPU]; ok && e.targets.GPUPercent > 0 {
		perMetric[interfaces.MetricGPU] = desiredByUtilization(currentReplicas, gpu, e.targets.GPUPercent)
	}
	if lat, ok := smoothed[interfaces.MetricLatency]; ok && e.targets.LatencyMs > 0 {
		perMetric[interfaces.MetricLatency] = desiredByUtilization(currentReplicas, lat, e.targets.LatencyMs)
	}

	raw := currentReplicas
	if len(perMetric) > 0 {
		raw = perMetric[maxKey(perMetric)]
	}

	return interfaces.ScalingDecision{
		RawDesired:       raw,
		PerMetricDesired: perMetric,
		BoundedDesired:   clamp(raw, e.minReplicas, e.maxReplicas),
	}
}

// desiredByCapacity is the direct capacity-division model: each pod is
// assumed to serve up to target units of load.
func desiredByCapacity(smoothed, target float64) int32 {
	return ceilReplicas(smoothed / target)
}

// desiredByUtilization is the proportional-control model: replicas scale
// by the ratio of observed to target utilization.
func desiredByUtilization(currentReplicas int32, smoothed, target float64) int32 {
	return ceilReplicas(float64(currentReplicas) * smoothed / target)
}

// ceilReplicas rounds up and saturates at MaxInt32: a value above the
// int32 range must land on the upper clamp bound, not wrap negative.
func ceilReplicas(v float64) int32 {
	c := math.Ceil(v)
	if c >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(c)
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// maxKey returns the key with the largest value. Ties break toward the
// lexicographically smallest key so logs are deterministic.
func maxKey(m map[string]int32) string {
	var best string
	var bestV int32
	first := true
	for k, v := range m {
		if first || v > bestV || (v == bestV && k < best) {
			best, bestV = k, v
			first = false
		}
	}
	return best
}
