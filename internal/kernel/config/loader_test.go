package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
queue_depth: 16
admission: block
enqueue_timeout: 2s
breaker_threshold: 3
handler_timeout: 10s
workers: 4
max_priority: 5
store_path: /var/lib/callosum/state.db
metrics_enabled: true
metrics_port: 9190
ingress_topic: callosum.ingress
result_topic: callosum.results
`

func TestLoadReader(t *testing.T) {
	conf, err := LoadReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if conf.QueueDepth != 16 || conf.Admission != AdmissionBlock {
		t.Fatalf("queue settings: %+v", conf)
	}
	if conf.EnqueueTimeout != 2*time.Second || conf.HandlerTimeout != 10*time.Second {
		t.Fatalf("timeouts: %v / %v", conf.EnqueueTimeout, conf.HandlerTimeout)
	}
	if conf.BreakerThreshold != 3 {
		t.Fatalf("breaker threshold: %d", conf.BreakerThreshold)
	}
	// Unset fields fall back to defaults.
	if conf.BreakerCooldown != 30*time.Second {
		t.Fatalf("breaker cooldown default: %v", conf.BreakerCooldown)
	}
	if conf.StorePath != "/var/lib/callosum/state.db" {
		t.Fatalf("store path: %q", conf.StorePath)
	}
	if !conf.MetricsEnabled || conf.MetricsPort != 9190 {
		t.Fatalf("metrics: %v/%d", conf.MetricsEnabled, conf.MetricsPort)
	}
	if conf.IngressTopic != "callosum.ingress" || conf.ResultTopic != "callosum.results" {
		t.Fatalf("topics: %q/%q", conf.IngressTopic, conf.ResultTopic)
	}
}

func TestLoadReaderRejectsInvalidYAML(t *testing.T) {
	if _, err := LoadReader(strings.NewReader("queue_depth: [not a number")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadReaderRejectsInvalidConfig(t *testing.T) {
	_, err := LoadReader(strings.NewReader("admission: maybe"))
	if err == nil || !strings.Contains(err.Error(), "admission policy") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	conf, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if conf.QueueDepth != 16 {
		t.Fatalf("queue depth: %d", conf.QueueDepth)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
