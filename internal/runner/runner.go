package runner

import (
	"context"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/userscale/userscale-autoscaler/internal/logging"
)

// CycleFunc is one complete control cycle.
type CycleFunc func(ctx context.Context)

// Loop invokes a cycle function on a fixed interval. Cycles never
// overlap: the interval is measured from the start of the previous
// cycle, and a cycle that overruns it causes the next one to start
// immediately rather than being skipped or queued.
type Loop struct {
	interval time.Duration
	cycle    CycleFunc
}

// NewLoop creates a Loop with the given sync period.
func NewLoop(interval time.Duration, cycle CycleFunc) *Loop {
	return &Loop{interval: interval, cycle: cycle}
}

// Run executes cycles until the context is cancelled. Cancellation is
// only checked between cycles; an in-flight cycle completes (its network
// calls are individually timeout-bounded, so it finishes promptly).
func (l *Loop) Run(ctx context.Context) error {
	logger := ctrl.LoggerFrom(ctx)
	logger.Info("Starting control loop", "syncPeriod", l.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Control loop stopped")
			return ctx.Err()
		case <-timer.C:
		}

		started := time.Now()
		l.cycle(ctx)
		elapsed := time.Since(started)

		next := l.interval - elapsed
		if next < 0 {
			// Fell behind the wall clock; start the next cycle at once.
			logger.V(logging.DEBUG).Info("Cycle overran sync period",
				"elapsed", elapsed, "syncPeriod", l.interval)
			next = 0
		}
		timer.Reset(next)
	}
}
