package kernel

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	configpkg "github.com/dualtract/callosum/internal/kernel/config"
	"github.com/dualtract/callosum/internal/kernel/jsoncodec"
	loggingpkg "github.com/dualtract/callosum/internal/kernel/logging"
	"github.com/dualtract/callosum/internal/kernel/statestore"
)

func TestRouterMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := newRouterMetrics(reg)
	if err != nil {
		t.Fatalf("failed to build metrics: %v", err)
	}

	m.incReceived(TractInternal, false)
	m.incReceived(TractInternal, true)
	m.incDelivered(TractInternal)
	m.incDropped(DropQueueFull)
	m.incFailures("flaky")
	m.setQueueDepth("flaky", 3)
	m.setBreakerState("flaky", BreakerOpen)
	m.observeLatency("flaky", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.receivedTotal.WithLabelValues("internal", "targeted")); got != 1 {
		t.Fatalf("received targeted: got %v", got)
	}
	if got := testutil.ToFloat64(m.receivedTotal.WithLabelValues("internal", "broadcast")); got != 1 {
		t.Fatalf("received broadcast: got %v", got)
	}
	if got := testutil.ToFloat64(m.droppedTotal.WithLabelValues("queue_full")); got != 1 {
		t.Fatalf("dropped: got %v", got)
	}
	if got := testutil.ToFloat64(m.queueDepth.WithLabelValues("flaky")); got != 3 {
		t.Fatalf("queue depth: got %v", got)
	}
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("flaky")); got != float64(BreakerOpen) {
		t.Fatalf("breaker state: got %v", got)
	}
}

func TestRouterMetricsNilReceiverIsSafe(t *testing.T) {
	var m *routerMetrics

	m.incReceived(TractInternal, false)
	m.incDelivered(TractExternal)
	m.incDropped(DropExpired)
	m.incFailures("x")
	m.setQueueDepth("x", 1)
	m.setBreakerState("x", BreakerClosed)
	m.observeLatency("x", time.Millisecond)
	m.removeParticle("x")
}

func TestRouterMetricsRemoveParticle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := newRouterMetrics(reg)
	if err != nil {
		t.Fatalf("failed to build metrics: %v", err)
	}

	m.setQueueDepth("temp", 5)
	m.removeParticle("temp")

	if got := testutil.CollectAndCount(m.queueDepth); got != 0 {
		t.Fatalf("expected no queue depth series, got %d", got)
	}
}

func TestRouterMetricsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newRouterMetrics(reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := newRouterMetrics(reg); err != nil {
		t.Fatalf("re-registration must be tolerated: %v", err)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	conf := configpkg.Default()
	conf.Workers = 1

	r, err := NewRouter(conf, nil, RouterDependencies{Store: statestore.NewMemoryStore()})
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	err = r.Register(Registration{ParticleID: "probe", Process: noopProcess})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	mux := metricsMux(r, loggingpkg.NewNopServiceLogger())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/snapshot")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var snap MetricsSnapshot
	if err := jsoncodec.Unmarshal(body, &snap); err != nil {
		t.Fatalf("snapshot not decodable: %v", err)
	}
	if _, ok := snap.Particles["probe"]; !ok {
		t.Fatalf("snapshot missing registered particle: %+v", snap.Particles)
	}
	if snap.CollectedAt.IsZero() {
		t.Fatal("snapshot timestamp not set")
	}

	post, err := srv.Client().Post(srv.URL+"/snapshot", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != 405 {
		t.Fatalf("expected 405 for POST, got %d", post.StatusCode)
	}
}
