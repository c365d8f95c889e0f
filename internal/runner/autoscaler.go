// Package runner drives the closed control loop: it owns the cycle
// pipeline (collect, smooth, decide, control, act) and the fixed-interval
// scheduler that invokes it.
package runner

import (
	"context"
	"errors"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/userscale/userscale-autoscaler/internal/collector"
	"github.com/userscale/userscale-autoscaler/internal/engine"
	"github.com/userscale/userscale-autoscaler/internal/interfaces"
	"github.com/userscale/userscale-autoscaler/internal/logging"
	"github.com/userscale/userscale-autoscaler/internal/scaler"
	"github.com/userscale/userscale-autoscaler/internal/smoothing"
)

// Autoscaler wires the per-cycle pipeline together. All mutable state
// (smoothed values, scaling bookkeeping) is owned here and touched by
// exactly one cycle at a time; no locking is needed.
type Autoscaler struct {
	collector  *collector.Collector
	smoother   *smoothing.Smoother
	engine     *engine.DecisionEngine
	controller *scaler.Controller
	actuator   interfaces.ReplicaScaler
}

// NewAutoscaler assembles the pipeline.
func NewAutoscaler(
	c *collector.Collector,
	s *smoothing.Smoother,
	e *engine.DecisionEngine,
	sc *scaler.Controller,
	a interfaces.ReplicaScaler,
) *Autoscaler {
	return &Autoscaler{
		collector:  c,
		smoother:   s,
		engine:     e,
		controller: sc,
		actuator:   a,
	}
}

// RunCycle executes one full control cycle. Nothing below the cycle
// boundary surfaces as a crash: transient faults degrade to a hold and
// the returned decision records the reason.
func (a *Autoscaler) RunCycle(ctx context.Context) interfaces.ScalingDecision {
	logger := ctrl.LoggerFrom(ctx)
	current := a.controller.CurrentReplicas()

	sample, err := a.collector.Collect(ctx)
	if err != nil {
		if !errors.Is(err, collector.ErrNoMetricsAvailable) {
			logger.Error(err, "Metric collection failed")
		}
		decision := interfaces.ScalingDecision{
			RawDesired:     current,
			BoundedDesired: current,
			ScaleTo:        current,
			Hold:           true,
			HoldReason:     interfaces.HoldReasonNoMetrics,
		}
		logger.Info("Holding: no metrics available this cycle", "replicas", current)
		return decision
	}

	smoothed := a.smoother.Smooth(sample)
	logger.V(logging.DEBUG).Info("Smoothed signals", "values", smoothed)

	decision := a.engine.Desire(smoothed, current)
	decision = a.controller.Decide(decision)

	if decision.Hold {
		logger.Info("Holding replica count",
			"reason", string(decision.HoldReason),
			"replicas", current,
			"rawDesired", decision.RawDesired,
			"boundedDesired", decision.BoundedDesired,
			"perMetric", decision.PerMetricDesired)
		return decision
	}

	if err := a.actuator.ScaleTo(ctx, decision.ScaleTo); err != nil {
		// State stays unadvanced; the next cycle recomputes from scratch
		// and the periodic loop is the retry mechanism.
		logger.Error(err, "Actuation failed, abandoning action for this cycle",
			"target", decision.ScaleTo)
		return decision
	}
	a.controller.Commit(decision)

	logger.Info("Scaled replicas",
		"from", current,
		"to", decision.ScaleTo,
		"direction", decision.Direction.String(),
		"rawDesired", decision.RawDesired,
		"boundedDesired", decision.BoundedDesired,
		"perMetric", decision.PerMetricDesired)
	return decision
}
