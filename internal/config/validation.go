package config

import "fmt"

// Validate checks for invalid configuration values. Any error here is
// fatal at startup; the control loop must never run with a config that
// could produce out-of-bounds or thrashing scale actions.
func Validate(c *Config) error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if c.Deployment == "" {
		return fmt.Errorf("deployment must not be empty")
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0,1], got %.3f", c.Alpha)
	}
	if c.MinReplicas < 1 {
		return fmt.Errorf("minReplicas must be >= 1, got %d", c.MinReplicas)
	}
	if c.MaxReplicas < c.MinReplicas {
		return fmt.Errorf("maxReplicas (%d) must be >= minReplicas (%d)", c.MaxReplicas, c.MinReplicas)
	}
	if c.UsersTargetPerPod <= 0 {
		return fmt.Errorf("usersTargetPerPod must be > 0, got %.1f", c.UsersTargetPerPod)
	}
	// Zero steps would silently turn every decision into a no-op, which is
	// indistinguishable from a healthy hold. Treat as a configuration error.
	if c.ScaleUpStep <= 0 {
		return fmt.Errorf("scaleUpStep must be > 0, got %d", c.ScaleUpStep)
	}
	if c.ScaleDownStep <= 0 {
		return fmt.Errorf("scaleDownStep must be > 0, got %d", c.ScaleDownStep)
	}
	if c.CooldownPeriod < 0 {
		return fmt.Errorf("cooldownPeriod must be >= 0, got %v", c.CooldownPeriod)
	}
	if c.SyncPeriod <= 0 {
		return fmt.Errorf("syncPeriod must be > 0, got %v", c.SyncPeriod)
	}
	if c.MaxConsecutiveSameDirection < 1 {
		return fmt.Errorf("maxConsecutiveSameDirection must be >= 1, got %d", c.MaxConsecutiveSameDirection)
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("scrapeTimeout must be > 0, got %v", c.ScrapeTimeout)
	}
	if c.MaxConcurrentScrapes < 1 {
		return fmt.Errorf("maxConcurrentScrapes must be >= 1, got %d", c.MaxConcurrentScrapes)
	}
	if c.PrometheusBaseURL != "" && c.GPUQuery == "" {
		return fmt.Errorf("gpuQuery must not be empty when a Prometheus base URL is set")
	}
	if c.PrometheusBaseURL != "" && c.GPUQueryWindow <= 0 {
		return fmt.Errorf("gpuQueryWindow must be > 0, got %v", c.GPUQueryWindow)
	}
	return nil
}
