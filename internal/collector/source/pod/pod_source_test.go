package pod

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
	"github.com/userscale/userscale-autoscaler/internal/logging"
)

const (
	testNamespace = "userscale"
	testAppLabel  = "userscale-app"
)

func readyPod(name, ip string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: testNamespace,
			Labels:    map[string]string{"app": testAppLabel},
		},
		Status: corev1.PodStatus{
			PodIP: ip,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func notReadyPod(name, ip string) *corev1.Pod {
	p := readyPod(name, ip)
	p.Status.Conditions[0].Status = corev1.ConditionFalse
	return p
}

// metricsServer serves a distinct JSON body per request, in order.
func metricsServer(bodies ...string) *httptest.Server {
	var mu sync.Mutex
	next := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		body := bodies[next%len(bodies)]
		next++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func serverPort(srv *httptest.Server) int32 {
	return int32(srv.Listener.Addr().(*net.TCPAddr).Port)
}

var _ = Describe("Pod metrics source", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = logging.NewTestLoggerIntoContext(context.Background())
	})

	newSource := func(port int32, objs ...client.Object) *Source {
		k8sClient := fake.NewClientBuilder().WithObjects(objs...).Build()
		return NewSource(k8sClient, Config{
			Namespace:     testNamespace,
			AppLabel:      testAppLabel,
			MetricsPort:   port,
			ScrapeTimeout: time.Second,
		})
	}

	It("should sum users and average CPU and latency across pods", func() {
		srv := metricsServer(
			`{"active_users": 10, "cpu_percent": 40, "latency_ms_p95": {"/chat": 100, "/search": 250}}`,
			`{"active_users": 20, "cpu_percent": 60, "latency_ms_p95": {"/chat": 150}}`,
		)
		defer srv.Close()

		src := newSource(serverPort(srv),
			readyPod("app-0", "127.0.0.1"),
			readyPod("app-1", "127.0.0.1"),
		)

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).To(Succeed())
		Expect(sample.ActiveUsers).To(HaveValue(Equal(30.0)))
		Expect(sample.CPUUtilization).To(HaveValue(Equal(50.0)))
		// Worst endpoint p95 per pod (250, 150), then averaged.
		Expect(sample.LatencyMs).To(HaveValue(Equal(200.0)))
	})

	It("should skip pods that are not Ready", func() {
		srv := metricsServer(`{"active_users": 7, "cpu_percent": 33, "latency_ms_p95": {"/": 80}}`)
		defer srv.Close()

		src := newSource(serverPort(srv),
			readyPod("app-0", "127.0.0.1"),
			notReadyPod("app-1", "127.0.0.1"),
		)

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).To(Succeed())
		Expect(sample.ActiveUsers).To(HaveValue(Equal(7.0)))
	})

	It("should tolerate individual scrape failures", func() {
		srv := metricsServer(`{"active_users": 12, "cpu_percent": 45, "latency_ms_p95": {"/": 60}}`)
		defer srv.Close()

		src := newSource(serverPort(srv),
			readyPod("app-0", "127.0.0.1"),
			readyPod("app-1", ""), // no IP yet, scrape fails
		)

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).To(Succeed())
		Expect(sample.ActiveUsers).To(HaveValue(Equal(12.0)))
		Expect(sample.CPUUtilization).To(HaveValue(Equal(45.0)))
	})

	It("should fail when no ready pods match the workload label", func() {
		src := newSource(9999, notReadyPod("app-0", "127.0.0.1"))

		var sample interfaces.MetricSample
		err := src.Collect(ctx, &sample)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no ready pods"))
		Expect(sample.Empty()).To(BeTrue())
	})

	It("should fail when every scrape fails", func() {
		src := newSource(1, readyPod("app-0", "127.0.0.1")) // port 1 refuses connections

		var sample interfaces.MetricSample
		err := src.Collect(ctx, &sample)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("scrapes failed"))
		Expect(sample.Empty()).To(BeTrue())
	})

	It("should reject non-200 responses", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		src := newSource(serverPort(srv), readyPod("app-0", "127.0.0.1"))

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).NotTo(Succeed())
	})

	Describe("worstLatency", func() {
		It("should pick the slowest endpoint", func() {
			Expect(worstLatency(map[string]float64{"/a": 10, "/b": 340, "/c": 55})).To(Equal(340.0))
		})

		It("should return zero for an empty map", func() {
			Expect(worstLatency(nil)).To(BeZero())
		})
	})
})
