package interfaces

import "context"

// ScaleDirection is the direction of a scaling action.
type ScaleDirection int

const (
	ScaleDirectionNone ScaleDirection = iota
	ScaleDirectionUp
	ScaleDirectionDown
)

// String returns a human-readable direction label.
func (d ScaleDirection) String() string {
	switch d {
	case ScaleDirectionUp:
		return "up"
	case ScaleDirectionDown:
		return "down"
	default:
		return "none"
	}
}

// HoldReason explains why a cycle resulted in no scaling action.
type HoldReason string

const (
	// HoldReasonNone means the decision is a scale action, not a hold.
	HoldReasonNone HoldReason = ""
	// HoldReasonInSync means the desired count already matches current replicas.
	HoldReasonInSync HoldReason = "in-sync"
	// HoldReasonCooldown means the cooldown period since the last scale has not elapsed.
	HoldReasonCooldown HoldReason = "cooldown"
	// HoldReasonConsecutiveLimit means the consecutive same-direction guard tripped.
	HoldReasonConsecutiveLimit HoldReason = "consecutive-limit"
	// HoldReasonNoMetrics means no metric source succeeded this cycle.
	HoldReasonNoMetrics HoldReason = "no-metrics"
)

// ScalingDecision is the per-cycle outcome of the decision engine and
// scaling controller. Produced and consumed within one cycle.
type ScalingDecision struct {
	// RawDesired is the max-combined desired replica count before clamping.
	RawDesired int32
	// PerMetricDesired maps metric name to its individually computed desired count.
	PerMetricDesired map[string]int32
	// BoundedDesired is RawDesired clamped to [minReplicas, maxReplicas].
	BoundedDesired int32
	// ScaleTo is the step-limited target to apply; only meaningful when Hold is false.
	ScaleTo int32
	// Direction is the direction of the proposed action.
	Direction ScaleDirection
	// Hold reports that no scaling action should be taken this cycle.
	Hold bool
	// HoldReason explains a hold outcome for observability.
	HoldReason HoldReason
}

// ReplicaScaler is the narrow orchestrator capability the control loop
// needs: read the current replica count and converge the workload to a
// target count. Implementations must be idempotent for repeated targets.
type ReplicaScaler interface {
	CurrentReplicas(ctx context.Context) (int32, error)
	ScaleTo(ctx context.Context, replicas int32) error
}
