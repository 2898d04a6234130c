package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventBackendSelected   EventType = "backend_selected"
	EventResponseCompleted EventType = "response_completed"
	EventBackendRecovered  EventType = "backend_recovered"
	EventBackendDegraded   EventType = "backend_degraded"
	EventProbeCycle        EventType = "probe_cycle"
)

// MetricEvent is one observation emitted by the request path or the
// health monitor. Fields beyond Type are populated per event type.
type MetricEvent struct {
	Type         EventType
	Timestamp    time.Time
	Backend      string
	Duration     time.Duration
	StatusCode   int
	Healthy      bool
	HealthyCount int
	TotalCount   int
}

// Collector consumes metric events from a buffered channel in its own
// goroutine so the request path never blocks on bookkeeping.
type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// EventChannel returns the send side of the event pipeline. Senders must
// use non-blocking sends; a full buffer drops the event.
func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit performs the non-blocking send convention for callers.
func (c *Collector) Emit(event MetricEvent) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Backend)

	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventBackendRecovered:
		c.metrics.RecordHealthTransition(event.Backend, true)

	case EventBackendDegraded:
		c.metrics.RecordHealthTransition(event.Backend, false)

	case EventProbeCycle:
		c.metrics.RecordProbeCycle(event.HealthyCount, event.TotalCount)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(algorithm string) Snapshot {
	return c.metrics.Snapshot(algorithm)
}
