package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

type proxyErrorKey struct{}

// ProxyError is a per-request slot the reverse proxy fills when the
// round-trip to the selected backend fails. The handler installs it via
// TrackProxyError and reads it after the proxy returns.
type ProxyError struct {
	mutex sync.Mutex
	err   error
}

// Err returns the recorded transport failure, if any.
func (p *ProxyError) Err() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.err
}

func (p *ProxyError) record(err error) {
	p.mutex.Lock()
	p.err = err
	p.mutex.Unlock()
}

// TrackProxyError attaches a transport failure slot to the context.
func TrackProxyError(ctx context.Context) (context.Context, *ProxyError) {
	slot := &ProxyError{}
	return context.WithValue(ctx, proxyErrorKey{}, slot), slot
}

// proxyErrorHandler records the failure for the in-flight request and
// answers service-unavailable. If response headers were already sent the
// write is a no-op; there is no mid-request retry against another backend.
func proxyErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if slot, ok := r.Context().Value(proxyErrorKey{}).(*ProxyError); ok {
		slot.record(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{"error": "Backend unavailable"})
}
