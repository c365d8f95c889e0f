// Package collector gathers one raw metric sample per control cycle from
// the configured sources, tolerating partial failures.
package collector

import (
	"context"
	"errors"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
	"github.com/userscale/userscale-autoscaler/internal/logging"
)

// ErrNoMetricsAvailable is returned when zero configured sources
// succeeded in a cycle. The cycle degrades to a hold.
var ErrNoMetricsAvailable = errors.New("no metric source succeeded this cycle")

// Collector fans a collection request out to every configured source.
type Collector struct {
	sources []interfaces.MetricSource
}

// New creates a Collector over the given sources.
func New(sources ...interfaces.MetricSource) *Collector {
	return &Collector{sources: sources}
}

// Collect fetches one sample with as many fields populated as the
// sources permit. A source failure leaves its fields nil and the cycle
// proceeds; only total failure returns ErrNoMetricsAvailable. Sources
// are called sequentially — the loop is single-flow and each source
// bounds its own network calls with timeouts.
func (c *Collector) Collect(ctx context.Context) (interfaces.MetricSample, error) {
	logger := ctrl.LoggerFrom(ctx)

	var sample interfaces.MetricSample
	succeeded := 0
	for _, src := range c.sources {
		if err := src.Collect(ctx, &sample); err != nil {
			logger.V(logging.DEBUG).Info("Metric source failed, excluding from this cycle",
				"source", src.Name(), "error", err.Error())
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return sample, ErrNoMetricsAvailable
	}

	logger.V(logging.VERBOSE).Info("Collected metric sample",
		"sourcesConfigured", len(c.sources),
		"sourcesSucceeded", succeeded)
	return sample, nil
}
