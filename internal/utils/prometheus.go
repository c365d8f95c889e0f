package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/apimachinery/pkg/util/wait"
)

// queryBackoff bounds transient Prometheus failures: three attempts with
// short exponential spacing, well under one sync period.
var queryBackoff = wait.Backoff{
	Steps:    3,
	Duration: 200 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

// NewPrometheusAPI builds a Prometheus v1 API client for the given base URL.
func NewPrometheusAPI(baseURL string) (promv1.API, error) {
	client, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client for %s: %w", baseURL, err)
	}
	return promv1.NewAPI(client), nil
}

// QueryPrometheusWithBackoff executes an instant query, retrying
// transient failures with exponential backoff. Context cancellation
// aborts the retry loop.
func QueryPrometheusWithBackoff(ctx context.Context, promAPI promv1.API, query string) (model.Value, promv1.Warnings, error) {
	var result model.Value
	var warnings promv1.Warnings

	err := wait.ExponentialBackoffWithContext(ctx, queryBackoff, func(ctx context.Context) (bool, error) {
		var queryErr error
		result, warnings, queryErr = promAPI.Query(ctx, query, time.Now())
		if queryErr != nil {
			// Retry on any error; the breaker above decides when to give up.
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("prometheus query %q failed after retries: %w", query, err)
	}
	return result, warnings, nil
}

// ScalarFromVector extracts a single float from an instant query result.
// Returns an error for empty results so callers can treat "no data" as a
// source failure rather than a zero reading.
func ScalarFromVector(value model.Value) (float64, error) {
	vector, ok := value.(model.Vector)
	if !ok {
		return 0, fmt.Errorf("expected vector result, got %s", value.Type())
	}
	if len(vector) == 0 {
		return 0, fmt.Errorf("query returned no samples")
	}
	return float64(vector[0].Value), nil
}

// FormatPrometheusDuration converts a Go time.Duration to Prometheus duration format.
// Prometheus uses formats like "5m", "1h", "30s", "1d".
func FormatPrometheusDuration(d time.Duration) string {
	// Handle days (Prometheus supports 'd' suffix)
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		days := d / (24 * time.Hour)
		return fmt.Sprintf("%dd", days)
	}

	// Handle hours
	if d >= time.Hour && d%time.Hour == 0 {
		hours := d / time.Hour
		return fmt.Sprintf("%dh", hours)
	}

	// Handle minutes
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := d / time.Minute
		return fmt.Sprintf("%dm", minutes)
	}

	// Handle seconds
	if d >= time.Second && d%time.Second == 0 {
		seconds := d / time.Second
		return fmt.Sprintf("%ds", seconds)
	}

	// Default to seconds (round down)
	seconds := d / time.Second
	if seconds > 0 {
		return fmt.Sprintf("%ds", seconds)
	}

	// Very short durations, use milliseconds (Prometheus doesn't support ms, use minimum 1s)
	return "1s"
}
