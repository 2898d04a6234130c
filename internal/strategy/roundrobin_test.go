package strategy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
	"github.com/raccoon-warez/cipherwave-relay/internal/strategy"
)

var _ = Describe("RoundRobin", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobin()
		backends = newPool(1, 1, 1)
	})

	Describe("Select", func() {
		It("should visit each backend exactly once per cycle, in registration order", func() {
			Expect(strat.Select(backends)).To(Equal(backends[0]))
			Expect(strat.Select(backends)).To(Equal(backends[1]))
			Expect(strat.Select(backends)).To(Equal(backends[2]))
			Expect(strat.Select(backends)).To(Equal(backends[0]))
		})

		It("should distribute load evenly", func() {
			counts := make(map[string]int)
			for i := 0; i < 300; i++ {
				counts[strat.Select(backends).ID()]++
			}
			Expect(counts["node-1"]).To(Equal(100))
			Expect(counts["node-2"]).To(Equal(100))
			Expect(counts["node-3"]).To(Equal(100))
		})

		It("should wrap modulo the current set size as the pool shrinks", func() {
			strat.Select(backends)
			strat.Select(backends)

			shrunk := backends[:2]
			selected := strat.Select(shrunk)
			Expect(shrunk).To(ContainElement(selected))
		})

		It("should return nil for an empty set", func() {
			Expect(strat.Select([]*backend.Backend{})).To(BeNil())
		})
	})
})
