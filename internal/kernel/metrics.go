package kernel

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dualtract/callosum/internal/kernel/jsoncodec"
	loggingpkg "github.com/dualtract/callosum/internal/kernel/logging"
)

// routerMetrics holds the Prometheus collectors backing the exporter. All
// methods are nil-safe so the hot path can skip collection when metrics are
// disabled.
type routerMetrics struct {
	receivedTotal  *prometheus.CounterVec
	deliveredTotal *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	breakerState   *prometheus.GaugeVec
	latencySeconds *prometheus.HistogramVec

	registerer prometheus.Registerer
}

func newRouterCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callosum",
			Subsystem: "router",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newRouterMetrics(registerer prometheus.Registerer) (*routerMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &routerMetrics{
		receivedTotal:  newRouterCounterVec("envelopes_received_total", "Envelopes submitted to the router.", []string{"tract", "mode"}),
		deliveredTotal: newRouterCounterVec("envelopes_delivered_total", "Envelopes accepted for execution.", []string{"tract"}),
		droppedTotal:   newRouterCounterVec("envelopes_dropped_total", "Envelopes dropped at admission or dequeue.", []string{"cause"}),
		failuresTotal:  newRouterCounterVec("particle_failures_total", "Failed particle invocations.", []string{"particle_id"}),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "callosum",
				Subsystem: "router",
				Name:      "queue_depth",
				Help:      "Current per-particle queue depth.",
			},
			[]string{"particle_id"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "callosum",
				Subsystem: "router",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per particle (0=closed, 1=open, 2=half_open).",
			},
			[]string{"particle_id"},
		),
		latencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "callosum",
				Subsystem: "router",
				Name:      "invocation_latency_seconds",
				Help:      "Particle invocation latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"particle_id"},
		),
		registerer: registerer,
	}

	collectors := []prometheus.Collector{
		m.receivedTotal, m.deliveredTotal, m.droppedTotal,
		m.failuresTotal, m.queueDepth, m.breakerState, m.latencySeconds,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *routerMetrics) incReceived(tract Tract, broadcast bool) {
	if m == nil {
		return
	}
	mode := "targeted"
	if broadcast {
		mode = "broadcast"
	}
	m.receivedTotal.WithLabelValues(tract.String(), mode).Inc()
}

func (m *routerMetrics) incDelivered(tract Tract) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(tract.String()).Inc()
}

func (m *routerMetrics) incDropped(cause DropCause) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(string(cause)).Inc()
}

func (m *routerMetrics) incFailures(particleID string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(particleID).Inc()
}

func (m *routerMetrics) setQueueDepth(particleID string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(particleID).Set(float64(depth))
}

func (m *routerMetrics) setBreakerState(particleID string, state BreakerState) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(particleID).Set(float64(state))
}

func (m *routerMetrics) observeLatency(particleID string, latency time.Duration) {
	if m == nil {
		return
	}
	m.latencySeconds.WithLabelValues(particleID).Observe(latency.Seconds())
}

func (m *routerMetrics) removeParticle(particleID string) {
	if m == nil {
		return
	}
	m.queueDepth.DeleteLabelValues(particleID)
	m.breakerState.DeleteLabelValues(particleID)
}

// ParticleSnapshot bundles one particle's metrics, breaker state, and queue
// depth for the read-only report.
type ParticleSnapshot struct {
	ParticleID string                  `json:"particle_id"`
	Metrics    ParticleMetricsSnapshot `json:"metrics"`
	Breaker    BreakerSnapshot         `json:"breaker"`
	QueueDepth int                     `json:"queue_depth"`
}

// MetricsSnapshot is the point-in-time view consumed by external readiness
// or health computation. The router never stores a composite score itself.
type MetricsSnapshot struct {
	Router      RouterStatsSnapshot         `json:"router"`
	Particles   map[string]ParticleSnapshot `json:"particles"`
	CollectedAt time.Time                   `json:"collected_at"`
}

// metricsMux builds the HTTP handler serving the Prometheus endpoint and the
// JSON snapshot endpoint.
func metricsMux(r *Router, log loggingpkg.ServiceLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := r.Snapshot()
		data, err := jsoncodec.Marshal(snap)
		if err != nil {
			log.Error("Failed to marshal metrics snapshot", err, nil)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})
	return mux
}
