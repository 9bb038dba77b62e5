package kernel

import (
	"sync"
	"sync/atomic"
	"time"
)

// DropCause labels why an envelope was not delivered to a destination.
type DropCause string

const (
	DropUnknownTarget  DropCause = "unknown_target"
	DropCircuitOpen    DropCause = "circuit_open"
	DropQueueFull      DropCause = "queue_full"
	DropEnqueueTimeout DropCause = "enqueue_timeout"
	DropExpired        DropCause = "expired"
)

// RouterStats aggregates routing counters. They are mutated from both
// producer and worker goroutines, so everything is an atomic counter;
// Snapshot assembles a consistent-enough view without stopping the world.
type RouterStats struct {
	received          atomic.Uint64
	deliveredInternal atomic.Uint64
	deliveredExternal atomic.Uint64
	broadcastNoMatch  atomic.Uint64
	persistFailures   atomic.Uint64

	droppedUnknownTarget  atomic.Uint64
	droppedCircuitOpen    atomic.Uint64
	droppedQueueFull      atomic.Uint64
	droppedEnqueueTimeout atomic.Uint64
	droppedExpired        atomic.Uint64
}

func (s *RouterStats) recordReceived() {
	s.received.Add(1)
}

func (s *RouterStats) recordDelivered(tract Tract) {
	if tract == TractInternal {
		s.deliveredInternal.Add(1)
	} else {
		s.deliveredExternal.Add(1)
	}
}

func (s *RouterStats) recordDrop(cause DropCause) {
	switch cause {
	case DropUnknownTarget:
		s.droppedUnknownTarget.Add(1)
	case DropCircuitOpen:
		s.droppedCircuitOpen.Add(1)
	case DropQueueFull:
		s.droppedQueueFull.Add(1)
	case DropEnqueueTimeout:
		s.droppedEnqueueTimeout.Add(1)
	case DropExpired:
		s.droppedExpired.Add(1)
	}
}

func (s *RouterStats) recordBroadcastNoMatch() {
	s.broadcastNoMatch.Add(1)
}

func (s *RouterStats) recordPersistFailure() {
	s.persistFailures.Add(1)
}

// RouterStatsSnapshot is the read-only view of the aggregate counters.
type RouterStatsSnapshot struct {
	Received             uint64               `json:"received"`
	DeliveredInternal    uint64               `json:"delivered_internal"`
	DeliveredExternal    uint64               `json:"delivered_external"`
	Dropped              map[DropCause]uint64 `json:"dropped"`
	BroadcastNoMatch     uint64               `json:"broadcast_no_match"`
	StatePersistFailures uint64               `json:"state_persist_failures"`
	QueueDepths          map[string]int       `json:"queue_depths"`
}

func (s *RouterStats) snapshot() RouterStatsSnapshot {
	return RouterStatsSnapshot{
		Received:          s.received.Load(),
		DeliveredInternal: s.deliveredInternal.Load(),
		DeliveredExternal: s.deliveredExternal.Load(),
		Dropped: map[DropCause]uint64{
			DropUnknownTarget:  s.droppedUnknownTarget.Load(),
			DropCircuitOpen:    s.droppedCircuitOpen.Load(),
			DropQueueFull:      s.droppedQueueFull.Load(),
			DropEnqueueTimeout: s.droppedEnqueueTimeout.Load(),
			DropExpired:        s.droppedExpired.Load(),
		},
		BroadcastNoMatch:     s.broadcastNoMatch.Load(),
		StatePersistFailures: s.persistFailures.Load(),
	}
}

// ParticleMetrics tracks per-particle execution counters. Updated once per
// invocation under the mutex; never rolled back.
type ParticleMetrics struct {
	mu sync.Mutex

	cycles          uint64
	failures        uint64
	persistFailures uint64
	lastLatency     time.Duration
	totalLatency    time.Duration
	lastProcessedAt time.Time
	custom          map[string]float64
}

func newParticleMetrics() *ParticleMetrics {
	return &ParticleMetrics{custom: make(map[string]float64)}
}

func (m *ParticleMetrics) recordSuccess(latency time.Duration, custom map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cycles++
	m.lastLatency = latency
	m.totalLatency += latency
	m.lastProcessedAt = time.Now().UTC()
	for k, v := range custom {
		m.custom[k] = v
	}
}

func (m *ParticleMetrics) recordFailure(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures++
	m.lastLatency = latency
	m.totalLatency += latency
	m.lastProcessedAt = time.Now().UTC()
}

func (m *ParticleMetrics) recordPersistFailure() {
	m.mu.Lock()
	m.persistFailures++
	m.mu.Unlock()
}

// ParticleMetricsSnapshot is the read-only view of one particle's counters.
type ParticleMetricsSnapshot struct {
	CycleCount      uint64             `json:"cycle_count"`
	FailureCount    uint64             `json:"failure_count"`
	PersistFailures uint64             `json:"persist_failures"`
	LastLatencyNs   int64              `json:"last_latency_ns"`
	AvgLatencyNs    int64              `json:"avg_latency_ns"`
	LastProcessedAt time.Time          `json:"last_processed_at,omitzero"`
	Custom          map[string]float64 `json:"custom,omitempty"`
}

func (m *ParticleMetrics) snapshot() ParticleMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := ParticleMetricsSnapshot{
		CycleCount:      m.cycles,
		FailureCount:    m.failures,
		PersistFailures: m.persistFailures,
		LastLatencyNs:   int64(m.lastLatency),
		LastProcessedAt: m.lastProcessedAt,
	}
	if total := m.cycles + m.failures; total > 0 {
		snap.AvgLatencyNs = int64(m.totalLatency) / int64(total)
	}
	if len(m.custom) > 0 {
		snap.Custom = make(map[string]float64, len(m.custom))
		for k, v := range m.custom {
			snap.Custom[k] = v
		}
	}
	return snap
}
