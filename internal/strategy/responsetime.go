package strategy

import (
	"time"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
)

// responseTime picks the backend with the lowest response time average.
// A backend without any observation yet is preferred outright so fresh
// backends start receiving traffic.
type responseTime struct{}

// NewResponseTime creates a response-time strategy instance.
func NewResponseTime() Strategy {
	return &responseTime{}
}

func (rt *responseTime) Select(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	var chosen *backend.Backend
	var best time.Duration

	for _, b := range backends {
		ema := b.EMATime()
		if ema == 0 {
			return b
		}

		if chosen == nil || ema < best {
			chosen = b
			best = ema
		}
	}

	return chosen
}
