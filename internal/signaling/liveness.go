package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tracker detects dead client sockets with a fixed-interval ping/pong
// sweep. At each tick a connection that has not ponged since the previous
// tick is terminated; survivors have their alive flag reset and are
// pinged again. Worst-case detection latency is two intervals.
type Tracker struct {
	logger   *slog.Logger
	interval time.Duration

	mutex   sync.Mutex
	clients map[*Client]struct{}
}

// NewTracker creates a liveness tracker sweeping at the given interval.
func NewTracker(interval time.Duration, logger *slog.Logger) *Tracker {
	return &Tracker{
		logger:   logger,
		interval: interval,
		clients:  make(map[*Client]struct{}),
	}
}

// Track registers a connection for liveness sweeps.
func (t *Tracker) Track(c *Client) {
	t.mutex.Lock()
	t.clients[c] = struct{}{}
	t.mutex.Unlock()
}

// Untrack removes a connection, typically on disconnect.
func (t *Tracker) Untrack(c *Client) {
	t.mutex.Lock()
	delete(t.clients, c)
	t.mutex.Unlock()
}

// ConnectionCount reports the number of tracked connections.
func (t *Tracker) ConnectionCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.clients)
}

// Start sweeps until the context is cancelled.
func (t *Tracker) Start(ctx context.Context) {
	go t.run(ctx)
}

func (t *Tracker) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Liveness tracker stopped")
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Sweep terminates connections that missed a full cycle and pings the
// rest.
func (t *Tracker) Sweep() {
	t.mutex.Lock()
	clients := make([]*Client, 0, len(t.clients))
	for c := range t.clients {
		clients = append(clients, c)
	}
	t.mutex.Unlock()

	for _, c := range clients {
		if !c.alive.Load() {
			t.logger.Info("Terminating dead connection",
				slog.String("client", c.remoteAddr))
			c.Terminate()
			continue
		}

		c.alive.Store(false)
		if err := c.ping(); err != nil {
			t.logger.Debug("Ping failed, terminating",
				slog.String("client", c.remoteAddr),
				slog.String("error", err.Error()))
			c.Terminate()
		}
	}
}
