package smoothing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/utils/ptr"

	"github.com/userscale/userscale-autoscaler/internal/interfaces"
)

var _ = Describe("Smoother", func() {

	Describe("Cold start", func() {
		It("should return the raw value unchanged on the first observation", func() {
			s := NewSmoother(0.4)
			Expect(s.Observe(interfaces.MetricActiveUsers, 25)).To(Equal(25.0))

			v, ok := s.Value(interfaces.MetricActiveUsers)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(25.0))
		})
	})

	Describe("Update rule", func() {
		It("should weight new values by alpha", func() {
			s := NewSmoother(0.4)
			s.Observe(interfaces.MetricCPU, 100)
			// 0.4*50 + 0.6*100 = 80
			Expect(s.Observe(interfaces.MetricCPU, 50)).To(BeNumerically("~", 80.0, 1e-9))
		})

		It("should converge to a constant input", func() {
			for _, alpha := range []float64{0.1, 0.4, 0.9, 1.0} {
				s := NewSmoother(alpha)
				s.Observe(interfaces.MetricLatency, 500)
				var v float64
				for i := 0; i < 200; i++ {
					v = s.Observe(interfaces.MetricLatency, 42)
				}
				Expect(v).To(BeNumerically("~", 42.0, 0.01), "alpha=%v", alpha)
			}
		})

		It("should replace history entirely with alpha=1", func() {
			s := NewSmoother(1.0)
			s.Observe(interfaces.MetricGPU, 10)
			Expect(s.Observe(interfaces.MetricGPU, 90)).To(Equal(90.0))
		})
	})

	Describe("Absent metrics", func() {
		It("should keep the last smoothed value when a metric is absent", func() {
			s := NewSmoother(0.5)
			s.Smooth(interfaces.MetricSample{ActiveUsers: ptr.To(20.0), CPUUtilization: ptr.To(60.0)})

			// CPU source failed this cycle
			out := s.Smooth(interfaces.MetricSample{ActiveUsers: ptr.To(40.0)})

			Expect(out).To(HaveKeyWithValue(interfaces.MetricCPU, 60.0))
			Expect(out).To(HaveKeyWithValue(interfaces.MetricActiveUsers, 30.0))
		})

		It("should not initialize metrics that were never observed", func() {
			s := NewSmoother(0.5)
			out := s.Smooth(interfaces.MetricSample{ActiveUsers: ptr.To(10.0)})

			Expect(out).NotTo(HaveKey(interfaces.MetricGPU))
			_, ok := s.Value(interfaces.MetricGPU)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Smooth", func() {
		It("should update every metric present in the sample", func() {
			s := NewSmoother(0.4)
			out := s.Smooth(interfaces.MetricSample{
				ActiveUsers:    ptr.To(100.0),
				CPUUtilization: ptr.To(75.0),
				LatencyMs:      ptr.To(120.0),
				GPUUtilization: ptr.To(55.0),
			})

			Expect(out).To(HaveLen(4))
			Expect(out[interfaces.MetricActiveUsers]).To(Equal(100.0))
			Expect(out[interfaces.MetricCPU]).To(Equal(75.0))
			Expect(out[interfaces.MetricLatency]).To(Equal(120.0))
			Expect(out[interfaces.MetricGPU]).To(Equal(55.0))
		})
	})
})
