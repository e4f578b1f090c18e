// Package metrics provides operational metrics tracking for the bridge
// connection core: connection churn, message flow, queue pressure and
// heartbeat latency. All counters are safe for concurrent access.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks operational metrics for the protocol core.
type Metrics struct {
	// Connection metrics
	ConnectionAttempts  atomic.Int64
	ConnectionSuccesses atomic.Int64
	ConnectionFailures  atomic.Int64
	Reconnections       atomic.Int64
	GiveUps             atomic.Int64

	// Message metrics
	MessagesSent     atomic.Int64
	MessagesReceived atomic.Int64
	MessageErrors    atomic.Int64

	// Outbound queue metrics
	MessagesQueued atomic.Int64
	QueueDrops     atomic.Int64
	queueHighWater atomic.Int64

	// Heartbeat metrics
	startTime    time.Time
	lastPong     atomic.Value // time.Time
	avgLatencyNs atomic.Int64
	latencyCount atomic.Int64

	mu sync.RWMutex
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	Timestamp           time.Time `json:"timestamp"`
	Uptime              string    `json:"uptime"`
	ConnectionAttempts  int64     `json:"connection_attempts"`
	ConnectionSuccesses int64     `json:"connection_successes"`
	ConnectionFailures  int64     `json:"connection_failures"`
	Reconnections       int64     `json:"reconnections"`
	GiveUps             int64     `json:"give_ups"`
	MessagesSent        int64     `json:"messages_sent"`
	MessagesReceived    int64     `json:"messages_received"`
	MessageErrors       int64     `json:"message_errors"`
	MessagesQueued      int64     `json:"messages_queued"`
	QueueDrops          int64     `json:"queue_drops"`
	QueueHighWater      int64     `json:"queue_high_water"`
	AvgLatencyMs        float64   `json:"avg_latency_ms"`
	LastPong            string    `json:"last_pong,omitempty"`
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordLatency records a heartbeat round-trip measurement and updates the
// running average.
func (m *Metrics) RecordLatency(d time.Duration) {
	ns := d.Nanoseconds()
	count := m.latencyCount.Add(1)
	m.lastPong.Store(time.Now())

	// Running average: newAvg = oldAvg + (newValue - oldAvg) / count
	// Use a CAS loop for atomic update of the average.
	for {
		oldAvg := m.avgLatencyNs.Load()
		newAvg := oldAvg + (ns-oldAvg)/count
		if m.avgLatencyNs.CompareAndSwap(oldAvg, newAvg) {
			break
		}
		// Reload count in case it changed.
		count = m.latencyCount.Load()
		if count == 0 {
			count = 1
		}
	}
}

// ObserveQueueDepth records the outbound queue depth, tracking the
// high-water mark.
func (m *Metrics) ObserveQueueDepth(depth int) {
	d := int64(depth)
	for {
		hw := m.queueHighWater.Load()
		if d <= hw || m.queueHighWater.CompareAndSwap(hw, d) {
			return
		}
	}
}

// Uptime returns the duration since the metrics instance was created.
func (m *Metrics) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}

// AvgLatency returns the average recorded heartbeat latency.
// Returns 0 if no latency has been recorded.
func (m *Metrics) AvgLatency() time.Duration {
	return time.Duration(m.avgLatencyNs.Load())
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		Timestamp:           time.Now(),
		Uptime:              m.Uptime().Round(time.Millisecond).String(),
		ConnectionAttempts:  m.ConnectionAttempts.Load(),
		ConnectionSuccesses: m.ConnectionSuccesses.Load(),
		ConnectionFailures:  m.ConnectionFailures.Load(),
		Reconnections:       m.Reconnections.Load(),
		GiveUps:             m.GiveUps.Load(),
		MessagesSent:        m.MessagesSent.Load(),
		MessagesReceived:    m.MessagesReceived.Load(),
		MessageErrors:       m.MessageErrors.Load(),
		MessagesQueued:      m.MessagesQueued.Load(),
		QueueDrops:          m.QueueDrops.Load(),
		QueueHighWater:      m.queueHighWater.Load(),
		AvgLatencyMs:        float64(m.avgLatencyNs.Load()) / float64(time.Millisecond),
	}

	if v := m.lastPong.Load(); v != nil {
		if t, ok := v.(time.Time); ok && !t.IsZero() {
			snap.LastPong = t.Format(time.RFC3339)
		}
	}

	return snap
}

// ToJSON returns a JSON-encoded representation of the current snapshot.
func (m *Metrics) ToJSON() ([]byte, error) {
	return json.Marshal(m.Snapshot())
}

// Reset resets all metric counters to zero and restarts the uptime clock.
func (m *Metrics) Reset() {
	m.ConnectionAttempts.Store(0)
	m.ConnectionSuccesses.Store(0)
	m.ConnectionFailures.Store(0)
	m.Reconnections.Store(0)
	m.GiveUps.Store(0)
	m.MessagesSent.Store(0)
	m.MessagesReceived.Store(0)
	m.MessageErrors.Store(0)
	m.MessagesQueued.Store(0)
	m.QueueDrops.Store(0)
	m.queueHighWater.Store(0)
	m.avgLatencyNs.Store(0)
	m.latencyCount.Store(0)
	m.lastPong.Store(time.Time{})

	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
}
