package backend_test

import (
	"errors"
	"net/url"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
)

func TestBackend(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Backend Suite")
}

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}

var _ = Describe("Backend", func() {
	var b *backend.Backend

	BeforeEach(func() {
		b = backend.New("node-1", mustParseURL("http://localhost:8081"), 2)
	})

	Describe("New", func() {
		It("should start healthy with zero connections", func() {
			Expect(b.IsHealthy()).To(BeTrue())
			Expect(b.IsDraining()).To(BeFalse())
			Expect(b.ActiveConnections()).To(Equal(0))
		})

		It("should expose id, url and weight", func() {
			Expect(b.ID()).To(Equal("node-1"))
			Expect(b.URL().String()).To(Equal("http://localhost:8081"))
			Expect(b.Weight()).To(Equal(2))
		})
	})

	Describe("request accounting", func() {
		It("should count in-flight and total connections", func() {
			b.OnRequestStart()
			b.OnRequestStart()
			Expect(b.ActiveConnections()).To(Equal(2))

			b.OnRequestComplete(10*time.Millisecond, nil)
			Expect(b.ActiveConnections()).To(Equal(1))
			Expect(b.Stats().TotalConnections).To(Equal(int64(2)))
		})

		It("should floor the connection count at zero", func() {
			b.OnRequestComplete(10*time.Millisecond, nil)
			Expect(b.ActiveConnections()).To(Equal(0))
		})

		It("should average response times as (old+latest)/2", func() {
			b.OnRequestComplete(100*time.Millisecond, nil)
			Expect(b.EMATime()).To(Equal(100 * time.Millisecond))

			b.OnRequestComplete(50*time.Millisecond, nil)
			Expect(b.EMATime()).To(Equal(75 * time.Millisecond))
		})
	})

	Describe("error tracking", func() {
		It("should stay healthy up to the error threshold", func() {
			for i := 0; i < 10; i++ {
				b.OnRequestComplete(time.Millisecond, errors.New("connection refused"))
			}
			Expect(b.IsHealthy()).To(BeTrue())
		})

		It("should become unhealthy once errors exceed the threshold", func() {
			for i := 0; i < 11; i++ {
				b.OnRequestComplete(time.Millisecond, errors.New("connection refused"))
			}
			Expect(b.IsHealthy()).To(BeFalse())
			Expect(b.Stats().LastError).To(Equal("connection refused"))
		})
	})

	Describe("probe outcomes", func() {
		It("should report a recovery transition exactly once", func() {
			b.ProbeFailure(errors.New("timeout"))
			Expect(b.IsHealthy()).To(BeFalse())

			Expect(b.ProbeSuccess(5 * time.Millisecond)).To(BeTrue())
			Expect(b.ProbeSuccess(5 * time.Millisecond)).To(BeFalse())
			Expect(b.IsHealthy()).To(BeTrue())
		})

		It("should report a degradation transition exactly once", func() {
			Expect(b.ProbeFailure(errors.New("timeout"))).To(BeTrue())
			Expect(b.ProbeFailure(errors.New("timeout"))).To(BeFalse())
		})

		It("should work error debt off on success, with a floor of zero", func() {
			for i := 0; i < 11; i++ {
				b.OnRequestComplete(time.Millisecond, errors.New("boom"))
			}
			Expect(b.IsHealthy()).To(BeFalse())
			Expect(b.Stats().ErrorCount).To(Equal(11))

			b.ProbeSuccess(time.Millisecond)
			Expect(b.Stats().ErrorCount).To(Equal(10))
			Expect(b.IsHealthy()).To(BeTrue())

			for i := 0; i < 20; i++ {
				b.ProbeSuccess(time.Millisecond)
			}
			Expect(b.Stats().ErrorCount).To(Equal(0))
		})

		It("should stamp the last health check time", func() {
			Expect(b.Stats().LastHealthCheck.IsZero()).To(BeTrue())
			b.ProbeSuccess(time.Millisecond)
			Expect(b.Stats().LastHealthCheck.IsZero()).To(BeFalse())
		})
	})

	Describe("draining", func() {
		It("should flag the backend without touching health", func() {
			b.SetDraining(true)
			Expect(b.IsDraining()).To(BeTrue())
			Expect(b.IsHealthy()).To(BeTrue())
		})
	})

	Describe("Update", func() {
		It("should rebuild the proxy when the URL changes", func() {
			b.SetURL(mustParseURL("http://localhost:9091"))
			Expect(b.URL().String()).To(Equal("http://localhost:9091"))
			Expect(b.ReverseProxy()).NotTo(BeNil())
		})

		It("should update the weight", func() {
			b.SetWeight(7)
			Expect(b.Weight()).To(Equal(7))
		})
	})
})
