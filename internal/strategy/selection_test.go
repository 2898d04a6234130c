package strategy_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
	"github.com/raccoon-warez/cipherwave-relay/internal/strategy"
)

var _ = Describe("LeastConn", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewLeastConn()
		backends = newPool(1, 1, 1)
	})

	It("should pick the backend with the fewest active connections", func() {
		backends[0].OnRequestStart()
		backends[0].OnRequestStart()
		backends[1].OnRequestStart()

		Expect(strat.Select(backends)).To(Equal(backends[2]))
	})

	It("should never pick a backend with more connections than another", func() {
		backends[1].OnRequestStart()

		for i := 0; i < 50; i++ {
			chosen := strat.Select(backends)
			for _, other := range backends {
				Expect(chosen.ActiveConnections()).To(BeNumerically("<=", other.ActiveConnections()))
			}
			chosen.OnRequestStart()
		}
	})

	It("should break ties by registration order", func() {
		Expect(strat.Select(backends)).To(Equal(backends[0]))
	})

	It("should return nil for an empty set", func() {
		Expect(strat.Select([]*backend.Backend{})).To(BeNil())
	})
})

var _ = Describe("WeightedRandom", func() {
	var strat strategy.Strategy

	BeforeEach(func() {
		strat = strategy.NewWeightedRandom()
	})

	It("should split selections roughly evenly between equal weights", func() {
		backends := newPool(1, 1)

		counts := make(map[string]int)
		for i := 0; i < 1000; i++ {
			counts[strat.Select(backends).ID()]++
		}

		Expect(counts["node-1"]).To(And(BeNumerically(">=", 400), BeNumerically("<=", 600)))
		Expect(counts["node-2"]).To(And(BeNumerically(">=", 400), BeNumerically("<=", 600)))
	})

	It("should favor heavier backends proportionally", func() {
		backends := newPool(9, 1)

		counts := make(map[string]int)
		for i := 0; i < 1000; i++ {
			counts[strat.Select(backends).ID()]++
		}

		Expect(counts["node-1"]).To(BeNumerically(">", counts["node-2"]))
		Expect(counts["node-1"]).To(BeNumerically(">=", 800))
	})

	It("should fall back to the first backend when all weights are zero", func() {
		backends := newPool(0, 0)
		Expect(strat.Select(backends)).To(Equal(backends[0]))
	})

	It("should return nil for an empty set", func() {
		Expect(strat.Select([]*backend.Backend{})).To(BeNil())
	})
})

var _ = Describe("ResponseTime", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewResponseTime()
		backends = newPool(1, 1, 1)
	})

	It("should select the backend with the lowest response time average", func() {
		backends[0].OnRequestComplete(100*time.Millisecond, nil)
		backends[1].OnRequestComplete(50*time.Millisecond, nil)
		backends[2].OnRequestComplete(200*time.Millisecond, nil)

		Expect(strat.Select(backends)).To(Equal(backends[1]))
	})

	It("should prefer a backend without any observation", func() {
		backends[0].OnRequestComplete(5*time.Millisecond, nil)
		backends[1].OnRequestComplete(5*time.Millisecond, nil)

		Expect(strat.Select(backends)).To(Equal(backends[2]))
	})

	It("should return nil for an empty set", func() {
		Expect(strat.Select([]*backend.Backend{})).To(BeNil())
	})
})

var _ = Describe("FromName", func() {
	It("should map every configured algorithm name", func() {
		for _, name := range []string{"round-robin", "least-conn", "weighted-random", "response-time"} {
			Expect(strategy.FromName(name)).NotTo(BeNil())
		}
	})

	It("should fall back to round-robin for unknown names", func() {
		strat := strategy.FromName("fastest-ever")
		backends := newPool(1, 1)

		Expect(strat.Select(backends)).To(Equal(backends[0]))
		Expect(strat.Select(backends)).To(Equal(backends[1]))
	})
})
