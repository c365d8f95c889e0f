// Package smoothing maintains the exponentially-weighted moving averages
// that turn noisy per-cycle metric samples into stable scaling signals.
package smoothing

import "github.com/userscale/userscale-autoscaler/internal/interfaces"

// Smoother holds one EWMA per metric name. It is owned by the control
// loop and mutated by exactly one cycle at a time, so it needs no lock.
// State lives for the process lifetime and is deliberately not persisted:
// it is cheap to reconverge after a restart.
type Smoother struct {
	alpha  float64
	values map[string]float64
}

// NewSmoother creates a Smoother with the given smoothing factor.
// alpha must be in (0,1]; validated at config load.
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{
		alpha:  alpha,
		values: make(map[string]float64),
	}
}

// Observe folds a raw reading into the metric's EWMA and returns the new
// smoothed value. The first observation initializes the average to the
// raw value (cold start, no smoothing).
func (s *Smoother) Observe(metric string, raw float64) float64 {
	prev, ok := s.values[metric]
	if !ok {
		s.values[metric] = raw
		return raw
	}
	next := s.alpha*raw + (1-s.alpha)*prev
	s.values[metric] = next
	return next
}

// Value returns the current smoothed value for a metric and whether the
// metric has been initialized. Once initialized, a metric's value stays
// defined even across cycles where the metric is absent.
func (s *Smoother) Value(metric string) (float64, bool) {
	v, ok := s.values[metric]
	return v, ok
}

// Smooth updates the EWMAs for every metric present in the sample and
// returns the full set of initialized smoothed values. Absent metrics
// are left unchanged; they do not decay toward zero.
func (s *Smoother) Smooth(sample interfaces.MetricSample) map[string]float64 {
	if sample.ActiveUsers != nil {
		s.Observe(interfaces.MetricActiveUsers, *sample.ActiveUsers)
	}
	if sample.CPUUtilization != nil {
		s.Observe(interfaces.MetricCPU, *sample.CPUUtilization)
	}
	if sample.LatencyMs != nil {
		s.Observe(interfaces.MetricLatency, *sample.LatencyMs)
	}
	if sample.GPUUtilization != nil {
		s.Observe(interfaces.MetricGPU, *sample.GPUUtilization)
	}

	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
