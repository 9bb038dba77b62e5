package config

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()

	if c.QueueDepth != 64 {
		t.Fatalf("queue depth: got %d", c.QueueDepth)
	}
	if c.Admission != AdmissionReject {
		t.Fatalf("admission: got %q", c.Admission)
	}
	if c.EnqueueTimeout != 5*time.Second {
		t.Fatalf("enqueue timeout: got %v", c.EnqueueTimeout)
	}
	if c.BreakerThreshold != 5 || c.BreakerCooldown != 30*time.Second {
		t.Fatalf("breaker defaults: %d / %v", c.BreakerThreshold, c.BreakerCooldown)
	}
	if c.HandlerTimeout != 30*time.Second {
		t.Fatalf("handler timeout: got %v", c.HandlerTimeout)
	}
	if c.Workers != runtime.GOMAXPROCS(0) {
		t.Fatalf("workers: got %d", c.Workers)
	}
	if c.MinPriority != 0 || c.MaxPriority != 10 {
		t.Fatalf("priority range: [%d, %d]", c.MinPriority, c.MaxPriority)
	}
	if c.EnvelopeTTL != 0 {
		t.Fatalf("envelope ttl should default to disabled, got %v", c.EnvelopeTTL)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	c := &Config{
		QueueDepth:  5,
		Admission:   AdmissionBlock,
		Workers:     3,
		MinPriority: -2,
		MaxPriority: 2,
	}
	c.ApplyDefaults()

	if c.QueueDepth != 5 || c.Admission != AdmissionBlock || c.Workers != 3 {
		t.Fatalf("explicit values were overwritten: %+v", c)
	}
	if c.MinPriority != -2 || c.MaxPriority != 2 {
		t.Fatalf("priority range overwritten: [%d, %d]", c.MinPriority, c.MaxPriority)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown admission policy",
			mutate:  func(c *Config) { c.Admission = "maybe" },
			wantErr: "admission policy",
		},
		{
			name:    "negative envelope ttl",
			mutate:  func(c *Config) { c.EnvelopeTTL = -time.Second },
			wantErr: "envelope ttl",
		},
		{
			name:    "inverted priority range",
			mutate:  func(c *Config) { c.MinPriority, c.MaxPriority = 5, 1 },
			wantErr: "min 5 exceeds max 1",
		},
		{
			name:    "invalid metrics port",
			mutate:  func(c *Config) { c.MetricsPort = 70000 },
			wantErr: "invalid port",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)

			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	c := Default()
	c.Admission = "maybe"
	c.MetricsPort = -1

	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"admission policy", "invalid port"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidateConfigNil(t *testing.T) {
	if err := ValidateConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
