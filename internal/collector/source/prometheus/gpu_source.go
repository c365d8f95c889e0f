// Package prometheus provides the accelerator utilization metrics source.
//
// GPU utilization is not exposed by the workload pods themselves; it is
// read from a Prometheus server scraping the DCGM exporter. The source
// is optional and only wired when a Prometheus base URL is configured.
package prometheus

import (
	"context"
	"fmt"
	"strings"
	"time"

	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
	"github.com/userscale/userscale-autoscaler/internal/logging"
	"github.com/userscale/userscale-autoscaler/internal/utils"
)

// DefaultGPUQuery averages GPU utilization across all devices reported
// by the DCGM exporter over the query window. The %s verb receives the
// window in Prometheus duration form.
const DefaultGPUQuery = "avg(avg_over_time(DCGM_FI_DEV_GPU_UTIL[%s]))"

// Config contains configuration for the GPU source.
type Config struct {
	// Query is the PromQL instant query returning the utilization gauge.
	// A %s verb, if present, is replaced with the range window.
	Query string
	// Window is the range-vector window substituted into the query.
	// Default: 1m.
	Window time.Duration
	// QueryTimeout bounds a single query round-trip. Default: 3s.
	QueryTimeout time.Duration
}

// Source implements interfaces.MetricSource for the GPU utilization
// gauge. It owns the GPUUtilization sample field. Queries go through a
// circuit breaker so a down Prometheus degrades to an absent metric
// instead of a per-cycle timeout.
type Source struct {
	breaker *utils.PrometheusCircuitBreaker
	config  Config
}

// NewSource creates a GPU metrics source over the given Prometheus API.
// The query is resolved once here; queries without a window verb are
// used verbatim.
func NewSource(promAPI promv1.API, config Config) *Source {
	if config.Query == "" {
		config.Query = DefaultGPUQuery
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}
	if strings.Contains(config.Query, "%s") {
		config.Query = fmt.Sprintf(config.Query, utils.FormatPrometheusDuration(config.Window))
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 3 * time.Second
	}
	return &Source{
		breaker: utils.NewPrometheusCircuitBreaker(promAPI, utils.DefaultCircuitBreakerConfig()),
		config:  config,
	}
}

// Name identifies the source in logs.
func (s *Source) Name() string {
	return "prometheus-gpu"
}

// Collect runs the utilization query and fills the GPU field. An open
// circuit or an empty result is a source failure; the cycle proceeds
// without the GPU signal.
func (s *Source) Collect(ctx context.Context, sample *interfaces.MetricSample) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	result, _, err := s.breaker.QueryPrometheus(queryCtx, s.config.Query)
	if err != nil {
		return fmt.Errorf("gpu utilization query failed: %w", err)
	}

	value, ok := result.(model.Value)
	if !ok {
		return fmt.Errorf("unexpected query result type %T", result)
	}
	util, err := utils.ScalarFromVector(value)
	if err != nil {
		return fmt.Errorf("gpu utilization query %q: %w", s.config.Query, err)
	}

	sample.GPUUtilization = &util
	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Collected GPU utilization",
		"query", s.config.Query, "value", util)
	return nil
}
