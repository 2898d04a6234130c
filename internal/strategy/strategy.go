package strategy

import (
	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
)

// Strategy selects one backend from the candidate set. The balancer passes
// the healthy, non-draining backends in registration order; strategies do
// not re-filter.
type Strategy interface {
	Select(backends []*backend.Backend) *backend.Backend
}

// FromName maps a configured algorithm name to its implementation.
// Unknown names fall back to round-robin.
func FromName(name string) Strategy {
	switch name {
	case "least-conn":
		return NewLeastConn()
	case "weighted-random":
		return NewWeightedRandom()
	case "response-time":
		return NewResponseTime()
	case "round-robin":
		return NewRoundRobin()
	default:
		return NewRoundRobin()
	}
}
