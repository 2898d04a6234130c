package strategy

import (
	"math"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
)

// leastConn picks the backend with the fewest active connections. Ties go
// to the earliest-registered backend.
type leastConn struct{}

// NewLeastConn creates a least-connections strategy instance.
func NewLeastConn() Strategy {
	return &leastConn{}
}

func (l *leastConn) Select(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	var chosen *backend.Backend
	best := math.MaxInt32

	for _, b := range backends {
		active := b.ActiveConnections()
		if active < best {
			best = active
			chosen = b
		}
	}

	return chosen
}
