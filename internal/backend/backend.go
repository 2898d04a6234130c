package backend

import (
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

// errorThreshold is the error count past which a backend is ejected from
// routing until a successful probe brings the count back down.
const errorThreshold = 10

// Backend represents one signal node behind the balancer: health and
// draining state, connection counters, error tracking, and a moving
// average of response times.
type Backend struct {
	id    string
	url   *url.URL
	proxy *httputil.ReverseProxy

	mutex            sync.Mutex
	weight           int
	healthy          bool
	draining         bool
	connections      int
	totalConnections int64
	errorCount       int
	lastError        string
	responseTimeEMA  time.Duration
	hasEMA           bool
	lastHealthCheck  time.Time
}

// Snapshot is a point-in-time copy of a backend's state for stats reporting.
type Snapshot struct {
	ID               string        `json:"id"`
	URL              string        `json:"url"`
	Weight           int           `json:"weight"`
	Healthy          bool          `json:"healthy"`
	Draining         bool          `json:"draining"`
	Connections      int           `json:"connections"`
	TotalConnections int64         `json:"totalConnections"`
	ErrorCount       int           `json:"errorCount"`
	LastError        string        `json:"lastError,omitempty"`
	ResponseTimeEMA  time.Duration `json:"responseTimeEma"`
	LastHealthCheck  time.Time     `json:"lastHealthCheck"`
}

// New creates a backend for the given URL. Backends start healthy so they
// are routable before the first probe cycle completes.
func New(id string, u *url.URL, weight int) *Backend {
	return &Backend{
		id:      id,
		url:     u,
		proxy:   newProxy(u),
		weight:  weight,
		healthy: true,
	}
}

func newProxy(u *url.URL) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = proxyErrorHandler
	return proxy
}

// ID returns the backend's registration id.
func (b *Backend) ID() string {
	return b.id
}

// URL returns the backend server URL.
func (b *Backend) URL() *url.URL {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.url
}

// ReverseProxy returns the HTTP reverse proxy for this backend.
// The proxy passes WebSocket upgrades through.
func (b *Backend) ReverseProxy() *httputil.ReverseProxy {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.proxy
}

// Weight returns the configured routing weight.
func (b *Backend) Weight() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.weight
}

// SetWeight updates the routing weight.
func (b *Backend) SetWeight(weight int) {
	b.mutex.Lock()
	b.weight = weight
	b.mutex.Unlock()
}

// SetURL repoints the backend at a new URL and rebuilds its proxy.
func (b *Backend) SetURL(u *url.URL) {
	b.mutex.Lock()
	b.url = u
	b.proxy = newProxy(u)
	b.mutex.Unlock()
}

// OnRequestStart reserves the backend for an in-flight request.
func (b *Backend) OnRequestStart() {
	b.mutex.Lock()
	b.connections++
	b.totalConnections++
	b.mutex.Unlock()
}

// OnRequestComplete releases the reservation taken by OnRequestStart and
// folds the observed round-trip time into the response time average.
// A transport failure counts toward the error threshold and ejects the
// backend once crossed, independently of health probes.
func (b *Backend) OnRequestComplete(elapsed time.Duration, requestErr error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.connections > 0 {
		b.connections--
	}

	b.recordResponseLocked(elapsed)

	if requestErr != nil {
		b.errorCount++
		b.lastError = requestErr.Error()
		if b.errorCount > errorThreshold {
			b.healthy = false
		}
	}
}

// ActiveConnections returns the current number of in-flight requests.
func (b *Backend) ActiveConnections() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.connections
}

// IsHealthy returns true if the backend is currently routable health-wise.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.healthy
}

// IsDraining returns true if the backend is excluded from new routing
// decisions.
func (b *Backend) IsDraining() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.draining
}

// SetDraining marks the backend as draining. Existing sessions keep
// resolving to it until they disconnect naturally.
func (b *Backend) SetDraining(draining bool) {
	b.mutex.Lock()
	b.draining = draining
	b.mutex.Unlock()
}

// ProbeSuccess records a successful health probe: the backend becomes
// healthy and works one unit of error debt off. Returns true if the
// healthy flag transitioned.
func (b *Backend) ProbeSuccess(elapsed time.Duration) (recovered bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.errorCount > 0 {
		b.errorCount--
	}
	b.recordResponseLocked(elapsed)
	b.lastHealthCheck = time.Now()

	if !b.healthy {
		b.healthy = true
		return true
	}
	return false
}

// ProbeFailure records a failed health probe. Returns true if the healthy
// flag transitioned.
func (b *Backend) ProbeFailure(probeErr error) (degraded bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.errorCount++
	if probeErr != nil {
		b.lastError = probeErr.Error()
	}
	b.lastHealthCheck = time.Now()

	if b.healthy {
		b.healthy = false
		return true
	}
	return false
}

// EMATime returns the current response time average. Zero means no
// observation has been recorded yet.
func (b *Backend) EMATime() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEMA {
		return 0
	}
	return b.responseTimeEMA
}

// ema = (old + latest) / 2, seeded with the first observation.
func (b *Backend) recordResponseLocked(elapsed time.Duration) {
	if !b.hasEMA {
		b.responseTimeEMA = elapsed
		b.hasEMA = true
		return
	}
	b.responseTimeEMA = (b.responseTimeEMA + elapsed) / 2
}

// Stats returns a copy of the backend's current state.
func (b *Backend) Stats() Snapshot {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return Snapshot{
		ID:               b.id,
		URL:              b.url.String(),
		Weight:           b.weight,
		Healthy:          b.healthy,
		Draining:         b.draining,
		Connections:      b.connections,
		TotalConnections: b.totalConnections,
		ErrorCount:       b.errorCount,
		LastError:        b.lastError,
		ResponseTimeEMA:  b.responseTimeEMA,
		LastHealthCheck:  b.lastHealthCheck,
	}
}
