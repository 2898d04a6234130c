package strategy

import (
	"sync/atomic"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
)

// roundRobin cycles over the candidate set in registration order. The
// index wraps modulo the current set size, so it stays valid as backends
// come and go.
type roundRobin struct {
	current uint64
}

// NewRoundRobin creates a round-robin strategy instance.
func NewRoundRobin() Strategy {
	return &roundRobin{}
}

func (rr *roundRobin) Select(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	n := atomic.AddUint64(&rr.current, 1)
	return backends[(n-1)%uint64(len(backends))]
}
