package loadbalancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
	"github.com/raccoon-warez/cipherwave-relay/internal/strategy"
)

// ErrNoHealthyBackend is returned when the healthy, non-draining set is empty.
var ErrNoHealthyBackend = errors.New("no healthy backend available")

// ErrBackendNotFound is returned for operations on an unknown backend id.
var ErrBackendNotFound = errors.New("backend not found")

// Balancer owns the backend registry and the sticky session table.
// Both tables are touched only under the balancer's mutex, keeping them
// single-owner the way the registry design requires.
type Balancer struct {
	logger *slog.Logger
	strat  strategy.Strategy

	mutex    sync.Mutex
	backends []*backend.Backend // registration order
	byID     map[string]*backend.Backend
	sticky   map[string]string // session key -> backend id
}

// Stats is the operational snapshot served by the admin API.
type Stats struct {
	TotalServers        int                `json:"totalServers"`
	HealthyServers      int                `json:"healthyServers"`
	TotalConnections    int64              `json:"totalConnections"`
	ActiveConnections   int                `json:"activeConnections"`
	TotalErrors         int                `json:"totalErrors"`
	AverageResponseTime time.Duration      `json:"averageResponseTime"`
	Servers             []backend.Snapshot `json:"servers"`
}

// New creates a balancer using the given routing strategy.
func New(strat strategy.Strategy, logger *slog.Logger) *Balancer {
	return &Balancer{
		logger: logger,
		strat:  strat,
		byID:   make(map[string]*backend.Backend),
		sticky: make(map[string]string),
	}
}

// AddBackend registers a backend. It starts healthy with zero connections.
func (lb *Balancer) AddBackend(id string, u *url.URL, weight int) (*backend.Backend, error) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	if _, exists := lb.byID[id]; exists {
		return nil, fmt.Errorf("backend %q already registered", id)
	}

	b := backend.New(id, u, weight)
	lb.backends = append(lb.backends, b)
	lb.byID[id] = b

	lb.logger.Info("Backend registered",
		slog.String("backend", id),
		slog.String("url", u.String()),
		slog.Int("weight", weight))

	return b, nil
}

// RemoveBackend deregisters a backend. Sticky entries pointing at it are
// left in place; they fall through to the strategy on their next lookup.
func (lb *Balancer) RemoveBackend(id string) error {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	if _, exists := lb.byID[id]; !exists {
		return ErrBackendNotFound
	}

	delete(lb.byID, id)
	for i, b := range lb.backends {
		if b.ID() == id {
			lb.backends = append(lb.backends[:i], lb.backends[i+1:]...)
			break
		}
	}

	lb.logger.Info("Backend removed", slog.String("backend", id))
	return nil
}

// Drain excludes a backend from new routing decisions. Existing sticky
// mappings to it keep resolving until natural disconnect.
func (lb *Balancer) Drain(id string) error {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	b, exists := lb.byID[id]
	if !exists {
		return ErrBackendNotFound
	}

	b.SetDraining(true)
	lb.logger.Info("Backend draining", slog.String("backend", id))
	return nil
}

// Update applies a partial configuration change. Nil fields are left
// untouched.
func (lb *Balancer) Update(id string, u *url.URL, weight *int) error {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	b, exists := lb.byID[id]
	if !exists {
		return ErrBackendNotFound
	}

	if u != nil {
		b.SetURL(u)
	}
	if weight != nil {
		b.SetWeight(*weight)
	}

	lb.logger.Info("Backend updated", slog.String("backend", id))
	return nil
}

// Backend looks up a backend by id.
func (lb *Balancer) Backend(id string) (*backend.Backend, bool) {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	b, ok := lb.byID[id]
	return b, ok
}

// Backends returns the registry in registration order.
func (lb *Balancer) Backends() []*backend.Backend {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	out := make([]*backend.Backend, len(lb.backends))
	copy(out, lb.backends)
	return out
}

// Route selects a backend for the given session key. A sticky entry that
// still resolves to a healthy backend wins unconditionally, draining or
// not. Otherwise the strategy runs over the healthy, non-draining set and
// its pick becomes the new sticky mapping for the key.
func (lb *Balancer) Route(ctx context.Context, sessionKey string) (*backend.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	if sessionKey != "" {
		if id, ok := lb.sticky[sessionKey]; ok {
			if b, alive := lb.byID[id]; alive && b.IsHealthy() {
				return b, nil
			}
			// Stale entry: backend gone or unhealthy, fall through.
			delete(lb.sticky, sessionKey)
		}
	}

	candidates := lb.routableLocked()
	if len(candidates) == 0 {
		return nil, ErrNoHealthyBackend
	}

	chosen := lb.strat.Select(candidates)
	if chosen == nil {
		return nil, ErrNoHealthyBackend
	}

	if sessionKey != "" {
		lb.sticky[sessionKey] = chosen.ID()
	}

	return chosen, nil
}

// Strategy returns the configured routing strategy.
func (lb *Balancer) Strategy() strategy.Strategy {
	return lb.strat
}

func (lb *Balancer) routableLocked() []*backend.Backend {
	routable := make([]*backend.Backend, 0, len(lb.backends))
	for _, b := range lb.backends {
		if b.IsHealthy() && !b.IsDraining() {
			routable = append(routable, b)
		}
	}
	return routable
}

// Stats aggregates registry-wide counters plus per-backend snapshots.
func (lb *Balancer) Stats() Stats {
	lb.mutex.Lock()
	defer lb.mutex.Unlock()

	stats := Stats{
		Servers: make([]backend.Snapshot, 0, len(lb.backends)),
	}

	var emaSum time.Duration
	var emaCount int

	for _, b := range lb.backends {
		snap := b.Stats()
		stats.Servers = append(stats.Servers, snap)

		stats.TotalServers++
		if snap.Healthy {
			stats.HealthyServers++
		}
		stats.TotalConnections += snap.TotalConnections
		stats.ActiveConnections += snap.Connections
		stats.TotalErrors += snap.ErrorCount

		if snap.ResponseTimeEMA > 0 {
			emaSum += snap.ResponseTimeEMA
			emaCount++
		}
	}

	if emaCount > 0 {
		stats.AverageResponseTime = emaSum / time.Duration(emaCount)
	}

	return stats
}
