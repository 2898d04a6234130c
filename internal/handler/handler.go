package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/raccoon-warez/cipherwave-relay/internal/backend"
	"github.com/raccoon-warez/cipherwave-relay/internal/loadbalancer"
	"github.com/raccoon-warez/cipherwave-relay/internal/metrics"
)

// sessionCookie carries the sticky session token for clients that are not
// joining a specific room.
const sessionCookie = "cw_session"

// ProxyHandler routes each inbound request to a signal node and proxies
// it there, WebSocket upgrades included.
type ProxyHandler struct {
	logger    *slog.Logger
	balancer  *loadbalancer.Balancer
	collector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the underlying connection over so the reverse proxy can
// switch protocols on WebSocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// NewProxyHandler creates the balancer's proxy handler.
func NewProxyHandler(logger *slog.Logger, balancer *loadbalancer.Balancer, collector *metrics.Collector) *ProxyHandler {
	return &ProxyHandler{
		logger:    logger,
		balancer:  balancer,
		collector: collector,
	}
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)
	sessionKey := sessionKey(r, clientIP)

	h.logger.Debug("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("session", sessionKey))

	selected, err := h.balancer.Route(r.Context(), sessionKey)
	if err != nil {
		if errors.Is(err, loadbalancer.ErrNoHealthyBackend) {
			h.logger.Warn("No healthy backends available", slog.String("client", clientIP))
			writeJSONError(w, http.StatusServiceUnavailable, "No healthy server available")
			return
		}
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	h.emit(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Backend:   selected.ID(),
	})
	h.emit(metrics.MetricEvent{
		Type:      metrics.EventBackendSelected,
		Timestamp: time.Now(),
		Backend:   selected.ID(),
	})

	r.Header.Set("X-Forwarded-For", clientIP)
	r.Header.Set("X-Load-Balancer", "cipherwave-lb")

	ctx, proxyErr := backend.TrackProxyError(r.Context())
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

	selected.OnRequestStart()
	start := time.Now()

	// The proxy round-trip returning is the single completion signal;
	// socket close does not decrement a second time. Deferred so an
	// aborted response stream still releases the reservation.
	defer func() {
		elapsed := time.Since(start)
		selected.OnRequestComplete(elapsed, proxyErr.Err())

		if err := proxyErr.Err(); err != nil {
			h.logger.Error("Backend transport failure",
				slog.String("backend", selected.ID()),
				slog.String("error", err.Error()))
		}

		h.emit(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Timestamp:  time.Now(),
			Backend:    selected.ID(),
			Duration:   elapsed,
			StatusCode: wrapped.statusCode,
		})
	}()

	selected.ReverseProxy().ServeHTTP(wrapped, r.WithContext(ctx))
}

// sessionKey derives the sticky key: the room id when the client names
// one (so both peers of a room land on the same signal node), otherwise
// the session cookie, otherwise the client address.
func sessionKey(r *http.Request, clientIP string) string {
	if room := r.URL.Query().Get("room"); room != "" {
		return "room:" + room
	}

	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return "session:" + cookie.Value
	}

	return "addr:" + clientIP
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (h *ProxyHandler) emit(event metrics.MetricEvent) {
	if h.collector == nil {
		return
	}
	h.collector.Emit(event)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
