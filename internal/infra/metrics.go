package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	ticksReceived   atomic.Uint64
	ticksDropped    atomic.Uint64
	ordersPlaced    atomic.Uint64
	ordersCancelled atomic.Uint64
	ordersFilled    atomic.Uint64
	rejections      atomic.Uint64
	unknownOutcomes atomic.Uint64
	retries         atomic.Uint64
	feedReconnects  atomic.Uint64
	errorsTotal     atomic.Uint64

	// Latency tracking for trading API calls
	callLatencySumNs atomic.Int64
	callLatencyCount atomic.Uint64

	// Gauges
	feedConnected atomic.Int32
}

// RecordTick records one tick delivered to the engine.
func (m *Metrics) RecordTick() { m.ticksReceived.Add(1) }

// RecordTickDropped records a tick dropped by the bounded queue.
func (m *Metrics) RecordTickDropped() { m.ticksDropped.Add(1) }

// RecordOrderPlaced records a venue-confirmed placement.
func (m *Metrics) RecordOrderPlaced() { m.ordersPlaced.Add(1) }

// RecordOrderCancelled records a venue-confirmed cancellation.
func (m *Metrics) RecordOrderCancelled() { m.ordersCancelled.Add(1) }

// RecordOrderFilled records a fill observed through the open order sync.
func (m *Metrics) RecordOrderFilled() { m.ordersFilled.Add(1) }

// RecordRejection records an explicit venue rejection.
func (m *Metrics) RecordRejection() { m.rejections.Add(1) }

// RecordUnknownOutcome records an operation that timed out ambiguously.
func (m *Metrics) RecordUnknownOutcome() { m.unknownOutcomes.Add(1) }

// RecordRetry records one retried trading API attempt.
func (m *Metrics) RecordRetry() { m.retries.Add(1) }

// RecordFeedReconnect records one feed reconnect attempt.
func (m *Metrics) RecordFeedReconnect() { m.feedReconnects.Add(1) }

// RecordError records an error occurrence.
func (m *Metrics) RecordError() { m.errorsTotal.Add(1) }

// RecordCallLatency records one trading API call duration.
func (m *Metrics) RecordCallLatency(d time.Duration) {
	m.callLatencySumNs.Add(int64(d))
	m.callLatencyCount.Add(1)
}

// SetFeedConnected sets the feed connection gauge.
func (m *Metrics) SetFeedConnected(connected bool) {
	if connected {
		m.feedConnected.Store(1)
	} else {
		m.feedConnected.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TicksReceived   uint64
	TicksDropped    uint64
	OrdersPlaced    uint64
	OrdersCancelled uint64
	OrdersFilled    uint64
	Rejections      uint64
	UnknownOutcomes uint64
	Retries         uint64
	FeedReconnects  uint64
	ErrorsTotal     uint64
	AvgCallLatency  time.Duration
	FeedConnected   bool
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency time.Duration
	count := m.callLatencyCount.Load()
	if count > 0 {
		avgLatency = time.Duration(m.callLatencySumNs.Load() / int64(count))
	}

	return MetricsSnapshot{
		TicksReceived:   m.ticksReceived.Load(),
		TicksDropped:    m.ticksDropped.Load(),
		OrdersPlaced:    m.ordersPlaced.Load(),
		OrdersCancelled: m.ordersCancelled.Load(),
		OrdersFilled:    m.ordersFilled.Load(),
		Rejections:      m.rejections.Load(),
		UnknownOutcomes: m.unknownOutcomes.Load(),
		Retries:         m.retries.Load(),
		FeedReconnects:  m.feedReconnects.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		AvgCallLatency:  avgLatency,
		FeedConnected:   m.feedConnected.Load() == 1,
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ticksReceived.Store(0)
	m.ticksDropped.Store(0)
	m.ordersPlaced.Store(0)
	m.ordersCancelled.Store(0)
	m.ordersFilled.Store(0)
	m.rejections.Store(0)
	m.unknownOutcomes.Store(0)
	m.retries.Store(0)
	m.feedReconnects.Store(0)
	m.errorsTotal.Store(0)
	m.callLatencySumNs.Store(0)
	m.callLatencyCount.Store(0)
	m.feedConnected.Store(0)
}
