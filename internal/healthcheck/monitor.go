package healthcheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
	"github.com/raccoon-warez/cipherwave-relay/internal/loadbalancer"
	"github.com/raccoon-warez/cipherwave-relay/internal/metrics"
)

// Monitor probes every registered backend once per cycle. Probes within a
// cycle run concurrently and are individually bounded by the probe
// timeout; the cycle concludes only after every probe has settled, and a
// new cycle never starts while one is in flight.
type Monitor struct {
	logger    *slog.Logger
	balancer  *loadbalancer.Balancer
	collector *metrics.Collector
	interval  time.Duration
	timeout   time.Duration
	path      string
	client    *http.Client
}

// NewMonitor creates a monitor probing GET <backend><path> every interval.
func NewMonitor(
	balancer *loadbalancer.Balancer,
	collector *metrics.Collector,
	interval time.Duration,
	timeout time.Duration,
	path string,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		logger:    logger,
		balancer:  balancer,
		collector: collector,
		interval:  interval,
		timeout:   timeout,
		path:      path,
		client:    &http.Client{},
	}
}

// Start runs probe cycles until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped")
			return
		case <-ticker.C:
			// Synchronous: the next tick is not serviced until this
			// cycle has fully settled.
			m.RunCycle(ctx)
		}
	}
}

// RunCycle probes all backends concurrently and waits for every outcome.
func (m *Monitor) RunCycle(ctx context.Context) {
	backends := m.balancer.Backends()
	if len(backends) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, b := range backends {
		wg.Add(1)
		go func(b *backend.Backend) {
			defer wg.Done()
			m.probe(ctx, b)
		}(b)
	}
	wg.Wait()

	healthy := 0
	for _, b := range backends {
		if b.IsHealthy() {
			healthy++
		}
	}

	m.collector.Emit(metrics.MetricEvent{
		Type:         metrics.EventProbeCycle,
		Timestamp:    time.Now(),
		HealthyCount: healthy,
		TotalCount:   len(backends),
	})

	m.logger.Info("Probe cycle complete",
		slog.Int("healthy", healthy),
		slog.Int("total", len(backends)))
}

func (m *Monitor) probe(ctx context.Context, b *backend.Backend) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	probeURL := b.URL().ResolveReference(&url.URL{Path: m.path})

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, probeURL.String(), nil)
	if err != nil {
		m.onFailure(b, err)
		return
	}

	start := time.Now()
	res, err := m.client.Do(req)
	if err != nil {
		m.onFailure(b, err)
		return
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		m.onFailure(b, fmt.Errorf("probe returned status %d", res.StatusCode))
		return
	}

	if recovered := b.ProbeSuccess(time.Since(start)); recovered {
		m.logger.Info("Backend recovered",
			slog.String("backend", b.ID()),
			slog.String("url", b.URL().String()))
		m.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventBackendRecovered,
			Timestamp: time.Now(),
			Backend:   b.ID(),
			Healthy:   true,
		})
	}
}

func (m *Monitor) onFailure(b *backend.Backend, probeErr error) {
	if degraded := b.ProbeFailure(probeErr); degraded {
		m.logger.Warn("Backend degraded",
			slog.String("backend", b.ID()),
			slog.String("url", b.URL().String()),
			slog.String("error", probeErr.Error()))
		m.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventBackendDegraded,
			Timestamp: time.Now(),
			Backend:   b.ID(),
		})
	}
}
