package strategy

import (
	"math/rand/v2"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
)

// weightedRandom draws uniformly in [0, totalWeight) and walks the
// candidate set subtracting each backend's weight until the draw is spent.
// Backends receive traffic proportionally to their weights.
type weightedRandom struct{}

// NewWeightedRandom creates a weighted-random strategy instance.
func NewWeightedRandom() Strategy {
	return &weightedRandom{}
}

func (w *weightedRandom) Select(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	totalWeight := 0
	for _, b := range backends {
		if weight := b.Weight(); weight > 0 {
			totalWeight += weight
		}
	}

	// All weights zero or negative: degenerate draw, take the first.
	if totalWeight <= 0 {
		return backends[0]
	}

	remainder := rand.IntN(totalWeight)
	for _, b := range backends {
		weight := b.Weight()
		if weight <= 0 {
			continue
		}

		remainder -= weight
		if remainder < 0 {
			return b
		}
	}

	return backends[0]
}
