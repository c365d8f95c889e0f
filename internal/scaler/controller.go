// Package scaler implements the scaling state machine that stands between
// the decision engine and the actuator. It applies step limits, the
// cooldown guard, and the consecutive-direction guard to a bounded
// desired replica count, producing the final scale/hold action.
package scaler

import (
	"time"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
)

// State is the process-wide scaling bookkeeping. CurrentReplicas tracks
// the last confirmed-issued target, not the orchestrator's live state;
// it only advances when an actuation succeeds. Never persisted across
// restarts — on startup it is re-seeded from the observed replica count.
type State struct {
	CurrentReplicas          int32
	LastScaleTime            time.Time
	LastScaleDirection       interfaces.ScaleDirection
	ConsecutiveSameDirection int
}

// Limits holds the stabilization policy knobs.
type Limits struct {
	ScaleUpStep                 int32
	ScaleDownStep               int32
	CooldownPeriod              time.Duration
	MaxConsecutiveSameDirection int
}

// Controller evaluates one bounded desired count per cycle against the
// stabilization policy. The controller is re-evaluated fresh every cycle;
// the Idle/CooldownActive/Blocked conditions are advisory labels on the
// hold outcome, not persistent modes.
type Controller struct {
	limits Limits
	state  State
	// now is injected for cooldown testing.
	now func() time.Time
}

// NewController creates a Controller seeded with the replica count
// observed from the orchestrator at startup.
func NewController(limits Limits, initialReplicas int32, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		limits: limits,
		state: State{
			CurrentReplicas:    initialReplicas,
			LastScaleDirection: interfaces.ScaleDirectionNone,
		},
		now: now,
	}
}

// State returns a copy of the current scaling state.
func (c *Controller) State() State {
	return c.state
}

// CurrentReplicas returns the last confirmed-issued replica target.
func (c *Controller) CurrentReplicas() int32 {
	return c.state.CurrentReplicas
}

// Decide applies the stabilization policy to the bounded desired count.
// It fills in ScaleTo, Direction, Hold, and HoldReason on the decision
// without mutating any state: state advances only via Commit, after the
// actuator confirms the action was issued.
//
// Guard order: equality short-circuits everything (a no-net-change cycle
// never touches cooldown or direction bookkeeping), then step limiting,
// then cooldown, then the consecutive-direction guard.
func (c *Controller) Decide(d interfaces.ScalingDecision) interfaces.ScalingDecision {
	current := c.state.CurrentReplicas

	if d.BoundedDesired == current {
		d.Hold = true
		d.HoldReason = interfaces.HoldReasonInSync
		d.Direction = interfaces.ScaleDirectionNone
		d.ScaleTo = current
		return d
	}

	if d.BoundedDesired > current {
		d.Direction = interfaces.ScaleDirectionUp
		d.ScaleTo = current + min32(d.BoundedDesired-current, c.limits.ScaleUpStep)
	} else {
		d.Direction = interfaces.ScaleDirectionDown
		d.ScaleTo = current - min32(current-d.BoundedDesired, c.limits.ScaleDownStep)
	}

	if !c.state.LastScaleTime.IsZero() && c.now().Sub(c.state.LastScaleTime) < c.limits.CooldownPeriod {
		d.Hold = true
		d.HoldReason = interfaces.HoldReasonCooldown
		return d
	}

	if d.Direction == c.state.LastScaleDirection &&
		c.state.ConsecutiveSameDirection >= c.limits.MaxConsecutiveSameDirection {
		d.Hold = true
		d.HoldReason = interfaces.HoldReasonConsecutiveLimit
		return d
	}

	d.Hold = false
	d.HoldReason = interfaces.HoldReasonNone
	return d
}

// Commit records a successfully issued scale action. Called by the loop
// only after actuation succeeds, so a failed actuation leaves the state
// unadvanced and the next cycle recomputes from scratch.
func (c *Controller) Commit(d interfaces.ScalingDecision) {
	if d.Hold {
		return
	}
	if d.Direction == c.state.LastScaleDirection {
		c.state.ConsecutiveSameDirection++
	} else {
		c.state.ConsecutiveSameDirection = 1
	}
	c.state.CurrentReplicas = d.ScaleTo
	c.state.LastScaleTime = c.now()
	c.state.LastScaleDirection = d.Direction
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
