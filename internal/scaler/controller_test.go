package scaler

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
)

// fakeClock lets the tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func decision(bounded int32) interfaces.ScalingDecision {
	return interfaces.ScalingDecision{RawDesired: bounded, BoundedDesired: bounded}
}

var _ = Describe("Controller", func() {
	var (
		clock  *fakeClock
		limits Limits
	)

	BeforeEach(func() {
		clock = &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
		limits = Limits{
			ScaleUpStep:                 3,
			ScaleDownStep:               2,
			CooldownPeriod:              60 * time.Second,
			MaxConsecutiveSameDirection: 3,
		}
	})

	newController := func(initial int32) *Controller {
		return NewController(limits, initial, clock.Now)
	}

	Describe("Equality", func() {
		It("should hold without touching cooldown or direction state", func() {
			c := newController(5)
			d := c.Decide(decision(5))

			Expect(d.Hold).To(BeTrue())
			Expect(d.HoldReason).To(Equal(interfaces.HoldReasonInSync))
			Expect(d.Direction).To(Equal(interfaces.ScaleDirectionNone))
			Expect(d.ScaleTo).To(Equal(int32(5)))

			c.Commit(d)
			Expect(c.State().LastScaleTime.IsZero()).To(BeTrue())
			Expect(c.State().ConsecutiveSameDirection).To(BeZero())
		})
	})

	Describe("Step limiting", func() {
		It("should cap a scale-up at the up step", func() {
			c := newController(1)
			d := c.Decide(decision(10))

			Expect(d.Hold).To(BeFalse())
			Expect(d.Direction).To(Equal(interfaces.ScaleDirectionUp))
			Expect(d.ScaleTo).To(Equal(int32(4)))
		})

		It("should cap a scale-down at the down step", func() {
			c := newController(10)
			d := c.Decide(decision(2))

			Expect(d.Direction).To(Equal(interfaces.ScaleDirectionDown))
			Expect(d.ScaleTo).To(Equal(int32(8)))
		})

		It("should use the full gap when it is smaller than the step", func() {
			limits.ScaleUpStep = 2
			c := newController(1)
			d := c.Decide(decision(3))

			Expect(d.ScaleTo).To(Equal(int32(3)))
		})

		It("should move a single replica when the down step allows more", func() {
			limits.ScaleDownStep = 1
			c := newController(4)
			d := c.Decide(decision(3))

			Expect(d.ScaleTo).To(Equal(int32(3)))
		})
	})

	Describe("Cooldown", func() {
		It("should hold a change attempted within the cooldown window", func() {
			c := newController(2)
			first := c.Decide(decision(5))
			Expect(first.Hold).To(BeFalse())
			c.Commit(first)

			clock.Advance(30 * time.Second)
			d := c.Decide(decision(8))

			Expect(d.Hold).To(BeTrue())
			Expect(d.HoldReason).To(Equal(interfaces.HoldReasonCooldown))
		})

		It("should allow a change once the cooldown has elapsed", func() {
			c := newController(2)
			c.Commit(c.Decide(decision(5)))

			clock.Advance(61 * time.Second)
			d := c.Decide(decision(8))

			Expect(d.Hold).To(BeFalse())
			Expect(d.ScaleTo).To(Equal(int32(8)))
		})

		It("should not apply cooldown before the first scale action", func() {
			c := newController(2)
			d := c.Decide(decision(5))

			Expect(d.Hold).To(BeFalse())
		})
	})

	Describe("Consecutive-direction guard", func() {
		It("should hold after the configured run of same-direction actions", func() {
			c := newController(1)
			for i := 0; i < 3; i++ {
				d := c.Decide(decision(20))
				Expect(d.Hold).To(BeFalse(), "action %d", i+1)
				c.Commit(d)
				clock.Advance(limits.CooldownPeriod + time.Second)
			}

			d := c.Decide(decision(20))
			Expect(d.Hold).To(BeTrue())
			Expect(d.HoldReason).To(Equal(interfaces.HoldReasonConsecutiveLimit))
		})

		It("should reset the run when the direction flips", func() {
			c := newController(1)
			for i := 0; i < 3; i++ {
				c.Commit(c.Decide(decision(20)))
				clock.Advance(limits.CooldownPeriod + time.Second)
			}

			down := c.Decide(decision(1))
			Expect(down.Hold).To(BeFalse())
			Expect(down.Direction).To(Equal(interfaces.ScaleDirectionDown))
			c.Commit(down)

			Expect(c.State().ConsecutiveSameDirection).To(Equal(1))
		})
	})

	Describe("Commit", func() {
		It("should advance replicas, time, and direction bookkeeping", func() {
			c := newController(2)
			d := c.Decide(decision(5))
			c.Commit(d)

			st := c.State()
			Expect(st.CurrentReplicas).To(Equal(int32(5)))
			Expect(st.LastScaleTime).To(Equal(clock.Now()))
			Expect(st.LastScaleDirection).To(Equal(interfaces.ScaleDirectionUp))
			Expect(st.ConsecutiveSameDirection).To(Equal(1))
		})

		It("should leave state untouched when the decision is a hold", func() {
			c := newController(2)
			c.Commit(c.Decide(decision(5)))
			before := c.State()

			held := c.Decide(decision(9))
			Expect(held.Hold).To(BeTrue())
			c.Commit(held)

			Expect(c.State()).To(Equal(before))
		})

		It("should keep decisions pure until committed", func() {
			c := newController(2)
			c.Decide(decision(5))
			c.Decide(decision(5))

			Expect(c.CurrentReplicas()).To(Equal(int32(2)))
			Expect(c.State().LastScaleTime.IsZero()).To(BeTrue())
		})
	})
})
