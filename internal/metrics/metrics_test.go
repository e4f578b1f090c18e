package metrics

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ConnectionAttempts.Add(3)
	m.ConnectionSuccesses.Add(2)
	m.ConnectionFailures.Add(1)
	m.Reconnections.Add(1)
	m.MessagesSent.Add(10)
	m.MessagesReceived.Add(20)
	m.MessagesQueued.Add(4)
	m.QueueDrops.Add(1)

	snap := m.Snapshot()
	if snap.ConnectionAttempts != 3 || snap.ConnectionSuccesses != 2 || snap.ConnectionFailures != 1 {
		t.Errorf("connection counters = %d/%d/%d",
			snap.ConnectionAttempts, snap.ConnectionSuccesses, snap.ConnectionFailures)
	}
	if snap.MessagesSent != 10 || snap.MessagesReceived != 20 {
		t.Errorf("message counters = %d/%d", snap.MessagesSent, snap.MessagesReceived)
	}
	if snap.MessagesQueued != 4 || snap.QueueDrops != 1 {
		t.Errorf("queue counters = %d/%d", snap.MessagesQueued, snap.QueueDrops)
	}
}

func TestMetrics_LatencyAverage(t *testing.T) {
	m := NewMetrics()

	m.RecordLatency(100 * time.Millisecond)
	m.RecordLatency(200 * time.Millisecond)

	avg := m.AvgLatency()
	if avg < 140*time.Millisecond || avg > 160*time.Millisecond {
		t.Errorf("AvgLatency() = %v, want ~150ms", avg)
	}

	snap := m.Snapshot()
	if snap.LastPong == "" {
		t.Error("Snapshot.LastPong empty after RecordLatency")
	}
}

func TestMetrics_QueueHighWater(t *testing.T) {
	m := NewMetrics()

	m.ObserveQueueDepth(3)
	m.ObserveQueueDepth(7)
	m.ObserveQueueDepth(5)

	if hw := m.Snapshot().QueueHighWater; hw != 7 {
		t.Errorf("QueueHighWater = %d, want 7", hw)
	}
}

func TestMetrics_ToJSON(t *testing.T) {
	m := NewMetrics()
	m.MessagesSent.Add(1)

	data, err := m.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["messages_sent"].(float64) != 1 {
		t.Errorf("messages_sent = %v, want 1", decoded["messages_sent"])
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.MessagesSent.Add(5)
	m.RecordLatency(time.Millisecond)

	m.Reset()

	snap := m.Snapshot()
	if snap.MessagesSent != 0 {
		t.Errorf("MessagesSent after Reset = %d, want 0", snap.MessagesSent)
	}
	if m.AvgLatency() != 0 {
		t.Errorf("AvgLatency after Reset = %v, want 0", m.AvgLatency())
	}
}
