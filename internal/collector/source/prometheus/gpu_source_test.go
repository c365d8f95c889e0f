package prometheus

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
	"github.com/userscale/userscale-autoscaler/internal/logging"
)

// mockPromAPI overrides Query on the embedded API interface.
type mockPromAPI struct {
	promv1.API
	result model.Value
	err    error
	query  string
}

func (m *mockPromAPI) Query(_ context.Context, query string, _ time.Time, _ ...promv1.Option) (model.Value, promv1.Warnings, error) {
	m.query = query
	return m.result, nil, m.err
}

var _ = Describe("GPU utilization source", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = logging.NewTestLoggerIntoContext(context.Background())
	})

	It("should fill the GPU field from the query result", func() {
		api := &mockPromAPI{result: model.Vector{
			&model.Sample{Value: 68.5, Timestamp: model.Now()},
		}}
		src := NewSource(api, Config{})

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).To(Succeed())
		Expect(sample.GPUUtilization).To(HaveValue(Equal(68.5)))
		Expect(api.query).To(Equal("avg(avg_over_time(DCGM_FI_DEV_GPU_UTIL[1m]))"))
	})

	It("should substitute the configured window into the query", func() {
		api := &mockPromAPI{result: model.Vector{
			&model.Sample{Value: 40, Timestamp: model.Now()},
		}}
		src := NewSource(api, Config{Window: 30 * time.Second})

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).To(Succeed())
		Expect(api.query).To(Equal("avg(avg_over_time(DCGM_FI_DEV_GPU_UTIL[30s]))"))
	})

	It("should use a query without a window verb verbatim", func() {
		api := &mockPromAPI{result: model.Vector{
			&model.Sample{Value: 40, Timestamp: model.Now()},
		}}
		src := NewSource(api, Config{Query: "avg(DCGM_FI_DEV_GPU_UTIL)", Window: time.Minute})

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).To(Succeed())
		Expect(api.query).To(Equal("avg(DCGM_FI_DEV_GPU_UTIL)"))
	})

	It("should use the configured query", func() {
		api := &mockPromAPI{result: model.Vector{
			&model.Sample{Value: 12, Timestamp: model.Now()},
		}}
		src := NewSource(api, Config{Query: `avg(DCGM_FI_DEV_GPU_UTIL{pool="inference"})`})

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).To(Succeed())
		Expect(api.query).To(ContainSubstring(`pool="inference"`))
	})

	It("should fail on an empty result without touching the sample", func() {
		api := &mockPromAPI{result: model.Vector{}}
		src := NewSource(api, Config{})

		var sample interfaces.MetricSample
		err := src.Collect(ctx, &sample)
		Expect(err).To(HaveOccurred())
		Expect(sample.GPUUtilization).To(BeNil())
	})

	It("should fail on a non-vector result", func() {
		api := &mockPromAPI{result: model.Matrix{}}
		src := NewSource(api, Config{})

		var sample interfaces.MetricSample
		Expect(src.Collect(ctx, &sample)).NotTo(Succeed())
	})

	It("should surface query errors", func() {
		api := &mockPromAPI{err: errors.New("connection refused")}
		src := NewSource(api, Config{QueryTimeout: 5 * time.Second})

		var sample interfaces.MetricSample
		err := src.Collect(ctx, &sample)
		Expect(err).To(HaveOccurred())
		Expect(sample.GPUUtilization).To(BeNil())
	})
})
