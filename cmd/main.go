// The userscale autoscaler adjusts the replica count of a Deployment
// based on smoothed active-user, CPU, latency, and optional GPU signals.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/userscale/userscale-autoscaler/internal/actuator"
	"github.com/userscale/userscale-autoscaler/internal/collector"
	podsource "github.com/userscale/userscale-autoscaler/internal/collector/source/pod"
	promsource "github.com/userscale/userscale-autoscaler/internal/collector/source/prometheus"
	"github.com/userscale/userscale-autoscaler/internal/config"
	"github.com/userscale/userscale-autoscaler/internal/engine"
	"github.com/userscale/userscale-autoscaler/internal/interfaces"
	"github.com/userscale/userscale-autoscaler/internal/logging"
	"github.com/userscale/userscale-autoscaler/internal/runner"
	"github.com/userscale/userscale-autoscaler/internal/scaler"
	"github.com/userscale/userscale-autoscaler/internal/smoothing"
	"github.com/userscale/userscale-autoscaler/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "userscale-autoscaler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var kubeconfig string
	fs := flag.CommandLine
	fs.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (in-cluster config used when empty)")
	config.RegisterFlags(fs)
	flag.Parse()

	// Fatal on invalid configuration, before any cycle runs.
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(cfg.Verbosity, cfg.DevMode)
	ctrl.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.IntoContext(ctx, logger)

	restConfig, err := loadRESTConfig(kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to load Kubernetes config: %w", err)
	}

	k8sClient, err := client.New(restConfig, client.Options{})
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	act, err := actuator.NewFromConfig(restConfig, cfg.Namespace, cfg.Deployment)
	if err != nil {
		return fmt.Errorf("failed to create actuator: %w", err)
	}

	// Scaling state is seeded from the orchestrator's observed count.
	initialReplicas, err := act.CurrentReplicas(ctx)
	if err != nil {
		return fmt.Errorf("failed to read initial replica count: %w", err)
	}
	logger.Info("Observed initial replica count",
		"namespace", cfg.Namespace, "deployment", cfg.Deployment, "replicas", initialReplicas)

	sources := []interfaces.MetricSource{
		podsource.NewSource(k8sClient, podsource.Config{
			Namespace:            cfg.Namespace,
			AppLabel:             cfg.ServiceName,
			MetricsPort:          cfg.AppPort,
			ScrapeTimeout:        cfg.ScrapeTimeout,
			MaxConcurrentScrapes: cfg.MaxConcurrentScrapes,
		}),
	}
	if cfg.GPUEnabled() {
		promAPI, err := utils.NewPrometheusAPI(cfg.PrometheusBaseURL)
		if err != nil {
			return fmt.Errorf("failed to create Prometheus API client: %w", err)
		}
		sources = append(sources, promsource.NewSource(promAPI, promsource.Config{
			Query:  cfg.GPUQuery,
			Window: cfg.GPUQueryWindow,
		}))
		logger.Info("GPU utilization source enabled",
			"baseURL", cfg.PrometheusBaseURL, "query", cfg.GPUQuery, "window", cfg.GPUQueryWindow)
	}

	auto := runner.NewAutoscaler(
		collector.New(sources...),
		smoothing.NewSmoother(cfg.Alpha),
		engine.NewDecisionEngine(engine.Targets{
			UsersPerPod: cfg.UsersTargetPerPod,
			CPUPercent:  cfg.CPUTarget,
			GPUPercent:  cfg.GPUTarget,
			LatencyMs:   cfg.LatencyTargetMs,
		}, cfg.MinReplicas, cfg.MaxReplicas),
		scaler.NewController(scaler.Limits{
			ScaleUpStep:                 cfg.ScaleUpStep,
			ScaleDownStep:               cfg.ScaleDownStep,
			CooldownPeriod:              cfg.CooldownPeriod,
			MaxConsecutiveSameDirection: cfg.MaxConsecutiveSameDirection,
		}, initialReplicas, nil),
		act,
	)

	loop := runner.NewLoop(cfg.SyncPeriod, func(ctx context.Context) {
		auto.RunCycle(ctx)
	})
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// loadRESTConfig prefers in-cluster config and falls back to kubeconfig.
func loadRESTConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, nil).ClientConfig()
}
