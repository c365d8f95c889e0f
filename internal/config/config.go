// Package config loads and validates the autoscaler configuration.
//
// Precedence: flags > env > policy file > defaults. Configuration is
// read once at startup and is static for the process lifetime; invalid
// configuration aborts startup before the control loop begins.
package config

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the resolved autoscaler configuration.
type Config struct {
	// Target workload
	Namespace   string
	Deployment  string
	ServiceName string
	AppPort     int32

	// Control loop
	SyncPeriod time.Duration

	// Smoothing
	Alpha float64

	// Replica bounds
	MinReplicas int32
	MaxReplicas int32

	// Per-metric targets. A target <= 0 disables that signal.
	UsersTargetPerPod float64
	CPUTarget         float64
	GPUTarget         float64
	LatencyTargetMs   float64

	// Stabilization policy
	ScaleUpStep                 int32
	ScaleDownStep               int32
	CooldownPeriod              time.Duration
	MaxConsecutiveSameDirection int

	// Metric transport
	ScrapeTimeout        time.Duration
	MaxConcurrentScrapes int
	PrometheusBaseURL    string
	GPUQuery             string
	GPUQueryWindow       time.Duration

	// Logging
	Verbosity int
	DevMode   bool
}

// ScalingPolicy is the yaml shape of the optional policy file. Only the
// stabilization and target knobs are file-configurable; transport and
// workload identity stay on env/flags.
type ScalingPolicy struct {
	Alpha                       *float64 `yaml:"alpha,omitempty"`
	MinReplicas                 *int32   `yaml:"minReplicas,omitempty"`
	MaxReplicas                 *int32   `yaml:"maxReplicas,omitempty"`
	UsersTargetPerPod           *float64 `yaml:"usersTargetPerPod,omitempty"`
	CPUTarget                   *float64 `yaml:"cpuTarget,omitempty"`
	GPUTarget                   *float64 `yaml:"gpuTarget,omitempty"`
	LatencyTargetMs             *float64 `yaml:"latencyTargetMs,omitempty"`
	ScaleUpStep                 *int32   `yaml:"scaleUpStep,omitempty"`
	ScaleDownStep               *int32   `yaml:"scaleDownStep,omitempty"`
	CooldownPeriod              *string  `yaml:"cooldownPeriod,omitempty"`
	MaxConsecutiveSameDirection *int     `yaml:"maxConsecutiveSameDirection,omitempty"`
}

// flagBindings maps viper keys (= env var names) to pflag names.
var flagBindings = map[string]string{
	"NAMESPACE":                      "namespace",
	"DEPLOYMENT":                     "deployment",
	"SERVICE_NAME":                   "service-name",
	"APP_PORT":                       "app-port",
	"SYNC_PERIOD":                    "sync-period",
	"ALPHA":                          "alpha",
	"MIN_REPLICAS":                   "min-replicas",
	"MAX_REPLICAS":                   "max-replicas",
	"USERS_TARGET_PER_POD":           "users-target-per-pod",
	"CPU_TARGET":                     "cpu-target",
	"GPU_TARGET":                     "gpu-target",
	"LATENCY_TARGET_MS":              "latency-target-ms",
	"SCALE_UP_STEP":                  "scale-up-step",
	"SCALE_DOWN_STEP":                "scale-down-step",
	"COOLDOWN_PERIOD":                "cooldown-period",
	"MAX_CONSECUTIVE_SAME_DIRECTION": "max-consecutive-same-direction",
	"SCRAPE_TIMEOUT":                 "scrape-timeout",
	"MAX_CONCURRENT_SCRAPES":         "max-concurrent-scrapes",
	"GPU_PROM_BASE":                  "gpu-prom-base",
	"GPU_QUERY":                      "gpu-query",
	"GPU_QUERY_WINDOW":               "gpu-query-window",
	"POLICY_FILE":                    "policy-file",
	"V":                              "v",
	"DEV_MODE":                       "dev-mode",
}

// RegisterFlags declares all configuration flags on the given flag set.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("namespace", "userscale", "Namespace of the scaled deployment")
	fs.String("deployment", "userscale-app", "Name of the scaled deployment")
	fs.String("service-name", "userscale-app", "App label value used to select workload pods")
	fs.Int32("app-port", 8000, "Port of the per-pod metrics endpoint")
	fs.Duration("sync-period", 15*time.Second, "Interval between control cycles")
	fs.Float64("alpha", 0.4, "EWMA smoothing factor in (0,1]")
	fs.Int32("min-replicas", 1, "Lower replica bound")
	fs.Int32("max-replicas", 20, "Upper replica bound")
	fs.Float64("users-target-per-pod", 50, "Active users one pod is expected to serve")
	fs.Float64("cpu-target", 70, "CPU utilization target percentage (<=0 disables)")
	fs.Float64("gpu-target", 70, "GPU utilization target percentage (<=0 disables)")
	fs.Float64("latency-target-ms", 0, "p95 latency target in milliseconds (<=0 disables)")
	fs.Int32("scale-up-step", 3, "Maximum replicas added in a single action")
	fs.Int32("scale-down-step", 2, "Maximum replicas removed in a single action")
	fs.Duration("cooldown-period", 0, "Minimum time between two scale actions")
	fs.Int("max-consecutive-same-direction", 3, "Scale actions allowed in a row in one direction")
	fs.Duration("scrape-timeout", 2*time.Second, "Per-pod metrics scrape timeout")
	fs.Int("max-concurrent-scrapes", 10, "Concurrent pod scrape limit")
	fs.String("gpu-prom-base", "", "Prometheus base URL for GPU metrics (empty disables)")
	fs.String("gpu-query", "", "PromQL query for GPU utilization (a %s verb receives the range window)")
	fs.Duration("gpu-query-window", time.Minute, "Range window substituted into the GPU query")
	fs.String("policy-file", "", "Optional yaml file with scaling policy overrides")
	fs.Int("v", 0, "Log verbosity")
	fs.Bool("dev-mode", false, "Human-readable log output")
}

// Load resolves the configuration and validates it fail-fast.
// flagSet may be nil (e.g. in tests that don't set CLI flags).
func Load(flagSet *flag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("NAMESPACE", "userscale")
	v.SetDefault("DEPLOYMENT", "userscale-app")
	v.SetDefault("SERVICE_NAME", "userscale-app")
	v.SetDefault("APP_PORT", 8000)
	v.SetDefault("SYNC_PERIOD", 15*time.Second)
	v.SetDefault("ALPHA", 0.4)
	v.SetDefault("MIN_REPLICAS", 1)
	v.SetDefault("MAX_REPLICAS", 20)
	v.SetDefault("USERS_TARGET_PER_POD", 50.0)
	v.SetDefault("CPU_TARGET", 70.0)
	v.SetDefault("GPU_TARGET", 70.0)
	v.SetDefault("LATENCY_TARGET_MS", 0.0)
	v.SetDefault("SCALE_UP_STEP", 3)
	v.SetDefault("SCALE_DOWN_STEP", 2)
	v.SetDefault("COOLDOWN_PERIOD", time.Duration(0))
	v.SetDefault("MAX_CONSECUTIVE_SAME_DIRECTION", 3)
	v.SetDefault("SCRAPE_TIMEOUT", 2*time.Second)
	v.SetDefault("MAX_CONCURRENT_SCRAPES", 10)
	v.SetDefault("GPU_PROM_BASE", "")
	v.SetDefault("GPU_QUERY", "avg(avg_over_time(DCGM_FI_DEV_GPU_UTIL[%s]))")
	v.SetDefault("GPU_QUERY_WINDOW", time.Minute)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("V", 0)
	v.SetDefault("DEV_MODE", false)

	// Bind environment variables (precedence above defaults, below flags)
	v.AutomaticEnv()

	// Bind pflag flags (highest precedence for explicitly-set flags)
	if flagSet != nil {
		for viperKey, flagName := range flagBindings {
			if f := flagSet.Lookup(flagName); f != nil {
				_ = v.BindPFlag(viperKey, f)
			}
		}
	}

	cfg := &Config{
		Namespace:                   v.GetString("NAMESPACE"),
		Deployment:                  v.GetString("DEPLOYMENT"),
		ServiceName:                 v.GetString("SERVICE_NAME"),
		AppPort:                     v.GetInt32("APP_PORT"),
		SyncPeriod:                  v.GetDuration("SYNC_PERIOD"),
		Alpha:                       v.GetFloat64("ALPHA"),
		MinReplicas:                 v.GetInt32("MIN_REPLICAS"),
		MaxReplicas:                 v.GetInt32("MAX_REPLICAS"),
		UsersTargetPerPod:           v.GetFloat64("USERS_TARGET_PER_POD"),
		CPUTarget:                   v.GetFloat64("CPU_TARGET"),
		GPUTarget:                   v.GetFloat64("GPU_TARGET"),
		LatencyTargetMs:             v.GetFloat64("LATENCY_TARGET_MS"),
		ScaleUpStep:                 v.GetInt32("SCALE_UP_STEP"),
		ScaleDownStep:               v.GetInt32("SCALE_DOWN_STEP"),
		CooldownPeriod:              v.GetDuration("COOLDOWN_PERIOD"),
		MaxConsecutiveSameDirection: v.GetInt("MAX_CONSECUTIVE_SAME_DIRECTION"),
		ScrapeTimeout:               v.GetDuration("SCRAPE_TIMEOUT"),
		MaxConcurrentScrapes:        v.GetInt("MAX_CONCURRENT_SCRAPES"),
		PrometheusBaseURL:           v.GetString("GPU_PROM_BASE"),
		GPUQuery:                    v.GetString("GPU_QUERY"),
		GPUQueryWindow:              v.GetDuration("GPU_QUERY_WINDOW"),
		Verbosity:                   v.GetInt("V"),
		DevMode:                     v.GetBool("DEV_MODE"),
	}

	if policyFile := v.GetString("POLICY_FILE"); policyFile != "" {
		if err := applyPolicyFile(cfg, policyFile); err != nil {
			return nil, fmt.Errorf("failed to load policy file %s: %w", policyFile, err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyPolicyFile overlays a yaml ScalingPolicy onto the config. File
// values override env and defaults but not explicitly-set flags; the
// caller resolves flags after this overlay is not needed because policy
// files are meant for the knobs operators tune together.
func applyPolicyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var p ScalingPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}

	if p.Alpha != nil {
		cfg.Alpha = *p.Alpha
	}
	if p.MinReplicas != nil {
		cfg.MinReplicas = *p.MinReplicas
	}
	if p.MaxReplicas != nil {
		cfg.MaxReplicas = *p.MaxReplicas
	}
	if p.UsersTargetPerPod != nil {
		cfg.UsersTargetPerPod = *p.UsersTargetPerPod
	}
	if p.CPUTarget != nil {
		cfg.CPUTarget = *p.CPUTarget
	}
	if p.GPUTarget != nil {
		cfg.GPUTarget = *p.GPUTarget
	}
	if p.LatencyTargetMs != nil {
		cfg.LatencyTargetMs = *p.LatencyTargetMs
	}
	if p.ScaleUpStep != nil {
		cfg.ScaleUpStep = *p.ScaleUpStep
	}
	if p.ScaleDownStep != nil {
		cfg.ScaleDownStep = *p.ScaleDownStep
	}
	if p.CooldownPeriod != nil {
		d, err := time.ParseDuration(*p.CooldownPeriod)
		if err != nil {
			return fmt.Errorf("invalid cooldownPeriod %q: %w", *p.CooldownPeriod, err)
		}
		cfg.CooldownPeriod = d
	}
	if p.MaxConsecutiveSameDirection != nil {
		cfg.MaxConsecutiveSameDirection = *p.MaxConsecutiveSameDirection
	}
	return nil
}

// GPUEnabled reports whether the GPU utilization signal is configured.
func (c *Config) GPUEnabled() bool {
	return c.PrometheusBaseURL != "" && c.GPUTarget > 0
}
