// Package pod provides the per-pod metrics source.
//
// The scaled workload exposes a JSON /metrics endpoint on each pod with
// its active-user count, CPU utilization, and latency percentiles. This
// source discovers the Ready pods of the target workload via label
// selector and scrapes them concurrently each cycle.
package pod

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
	"github.com/userscale/userscale-autoscaler/internal/logging"
)

// Config contains configuration for pod scraping.
type Config struct {
	// Namespace of the scaled workload.
	Namespace string
	// AppLabel is the value of the "app" label on workload pods.
	AppLabel string

	// Metrics endpoint
	MetricsPort int32
	MetricsPath string // default: "/metrics"

	// Scraping behavior
	ScrapeTimeout        time.Duration // default: 2s per pod
	MaxConcurrentScrapes int           // default: 10
}

// Source implements interfaces.MetricSource for direct pod scraping.
// It owns the ActiveUsers, CPUUtilization, and LatencyMs sample fields.
type Source struct {
	config     Config
	k8sClient  client.Client
	httpClient *http.Client
}

// podMetrics is the JSON shape of the workload's /metrics endpoint.
type podMetrics struct {
	ActiveUsers  float64            `json:"active_users"`
	CPUPercent   float64            `json:"cpu_percent"`
	LatencyP95Ms map[string]float64 `json:"latency_ms_p95"`
}

// podReading is one successful scrape, aggregated in aggregate().
type podReading struct {
	users     float64
	cpu       float64
	latencyMs float64
}

// NewSource creates a pod metrics source.
func NewSource(k8sClient client.Client, config Config) *Source {
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.ScrapeTimeout == 0 {
		config.ScrapeTimeout = 2 * time.Second
	}
	if config.MaxConcurrentScrapes == 0 {
		config.MaxConcurrentScrapes = 10
	}

	return &Source{
		config:     config,
		k8sClient:  k8sClient,
		httpClient: &http.Client{Timeout: config.ScrapeTimeout},
	}
}

// Name identifies the source in logs.
func (s *Source) Name() string {
	return "pod-metrics"
}

// Collect scrapes all Ready pods and fills the user, CPU, and latency
// fields: users summed across pods, CPU and latency averaged. Fails only
// when discovery fails or no pod could be scraped.
func (s *Source) Collect(ctx context.Context, sample *interfaces.MetricSample) error {
	pods, err := s.discoverPods(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover pods: %w", err)
	}
	if len(pods) == 0 {
		return fmt.Errorf("no ready pods match app=%s in %s", s.config.AppLabel, s.config.Namespace)
	}

	readings := s.scrapeAllPods(ctx, pods)
	if len(readings) == 0 {
		return fmt.Errorf("all %d pod scrapes failed", len(pods))
	}

	users, cpu, latency := aggregate(readings)
	sample.ActiveUsers = &users
	sample.CPUUtilization = &cpu
	sample.LatencyMs = &latency

	ctrl.LoggerFrom(ctx).V(logging.DEBUG).Info("Scraped workload pods",
		"podCount", len(pods),
		"successCount", len(readings),
		"totalUsers", users,
		"avgCPU", cpu,
		"avgLatencyMs", latency)
	return nil
}

// discoverPods lists Ready pods matching the workload's app label.
func (s *Source) discoverPods(ctx context.Context) ([]corev1.Pod, error) {
	podList := &corev1.PodList{}
	selector := labels.SelectorFromSet(labels.Set{"app": s.config.AppLabel})
	if err := s.k8sClient.List(ctx, podList, &client.ListOptions{
		Namespace:     s.config.Namespace,
		LabelSelector: selector,
	}); err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	readyPods := []corev1.Pod{}
	for _, pod := range podList.Items {
		if isPodReady(&pod) {
			readyPods = append(readyPods, pod)
		}
	}
	return readyPods, nil
}

// isPodReady checks if pod is in Ready condition.
func isPodReady(pod *corev1.Pod) bool {
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

// scrapeAllPods scrapes metrics from all pods concurrently with bounded
// parallelism. A failed pod is skipped, not fatal.
func (s *Source) scrapeAllPods(ctx context.Context, pods []corev1.Pod) []podReading {
	logger := ctrl.LoggerFrom(ctx)
	readings := make([]podReading, 0, len(pods))
	var readingsMu sync.Mutex

	sem := make(chan struct{}, s.config.MaxConcurrentScrapes)
	var wg sync.WaitGroup

	for _, pod := range pods {
		wg.Add(1)
		go func(pod corev1.Pod) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			reading, err := s.scrapePod(ctx, &pod)
			if err != nil {
				logger.V(logging.VERBOSE).Error(err, "Failed to scrape pod", "pod", pod.Name)
				return
			}

			readingsMu.Lock()
			readings = append(readings, reading)
			readingsMu.Unlock()
		}(pod)
	}

	wg.Wait()
	return readings
}

// scrapePod fetches and decodes one pod's /metrics endpoint.
func (s *Source) scrapePod(ctx context.Context, pod *corev1.Pod) (podReading, error) {
	if pod.Status.PodIP == "" {
		return podReading{}, fmt.Errorf("pod %s has no IP address", pod.Name)
	}

	url := fmt.Sprintf("http://%s:%d%s", pod.Status.PodIP, s.config.MetricsPort, s.config.MetricsPath)

	reqCtx, cancel := context.WithTimeout(ctx, s.config.ScrapeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return podReading{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return podReading{}, fmt.Errorf("failed to scrape pod %s: %w", pod.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return podReading{}, fmt.Errorf("pod %s returned status %d", pod.Name, resp.StatusCode)
	}

	var m podMetrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return podReading{}, fmt.Errorf("failed to decode metrics from pod %s: %w", pod.Name, err)
	}

	return podReading{
		users:     m.ActiveUsers,
		cpu:       m.CPUPercent,
		latencyMs: worstLatency(m.LatencyP95Ms),
	}, nil
}

// worstLatency picks the highest p95 across the workload's endpoints;
// scaling should react to the slowest path, not the average one.
func worstLatency(byEndpoint map[string]float64) float64 {
	var worst float64
	for _, v := range byEndpoint {
		if v > worst {
			worst = v
		}
	}
	return worst
}

// aggregate combines per-pod readings: users are summed (total demand),
// CPU and latency are averaged (per-pod load level).
func aggregate(readings []podReading) (users, avgCPU, avgLatency float64) {
	for _, r := range readings {
		users += r.users
		avgCPU += r.cpu
		avgLatency += r.latencyMs
	}
	n := float64(len(readings))
	avgCPU /= n
	avgLatency /= n
	return users, avgCPU, avgLatency
}
