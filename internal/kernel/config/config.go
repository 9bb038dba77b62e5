// Package config holds the static configuration surface of the routing
// kernel. Configuration is loaded once at startup; there is no hot reload.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// AdmissionPolicy selects how enqueue behaves when a particle queue is full.
type AdmissionPolicy string

const (
	// AdmissionReject fails enqueue immediately with ErrQueueFull.
	AdmissionReject AdmissionPolicy = "reject"
	// AdmissionBlock suspends the caller until space frees up or
	// EnqueueTimeout elapses, then fails with ErrEnqueueTimeout.
	AdmissionBlock AdmissionPolicy = "block"
)

// Config groups the routing kernel settings. Zero values fall back to the
// defaults applied by ApplyDefaults.
type Config struct {
	// QueueDepth is the default per-particle queue capacity.
	QueueDepth int `yaml:"queue_depth"`

	// Admission selects the backpressure policy for targeted delivery.
	// Broadcast always admits non-blocking so a full queue cannot stall
	// delivery to the other destinations.
	Admission AdmissionPolicy `yaml:"admission"`

	// EnqueueTimeout bounds how long a blocked enqueue may wait. Only used
	// with AdmissionBlock.
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`

	// BreakerThreshold is the consecutive-failure count that opens a
	// particle's circuit breaker.
	BreakerThreshold int `yaml:"breaker_threshold"`

	// BreakerCooldown is how long an open breaker waits before allowing a
	// half-open trial.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`

	// HandlerTimeout bounds a single particle invocation. An invocation
	// exceeding it is abandoned and counted as a failure.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`

	// Workers is the executor pool size. Defaults to GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MinPriority and MaxPriority bound Envelope.Priority at construction.
	MinPriority int `yaml:"min_priority"`
	MaxPriority int `yaml:"max_priority"`

	// EnvelopeTTL drops envelopes that sat queued longer than this before a
	// worker reached them. Zero disables expiry.
	EnvelopeTTL time.Duration `yaml:"envelope_ttl"`

	// StorePath is the bbolt file backing particle state. Empty selects the
	// in-memory store.
	StorePath string `yaml:"store_path"`

	// Metrics configuration.
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// MetricsPort is the port where the Prometheus endpoint and the JSON
	// snapshot endpoint are exposed. Zero disables the HTTP listener.
	MetricsPort int `yaml:"metrics_port"`

	// Watermill bridge topics. Empty disables the corresponding direction.
	IngressTopic string `yaml:"ingress_topic"`
	ResultTopic  string `yaml:"result_topic"`
}

// Default creates a Config with the stock settings applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.Admission == "" {
		c.Admission = AdmissionReject
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = 5 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.MinPriority == 0 && c.MaxPriority == 0 {
		c.MaxPriority = 10
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateQueue()...)
	errs = append(errs, c.validateBreaker()...)
	errs = append(errs, c.validateExecution()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateQueue() []error {
	var errs []error
	if c.QueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("queue: depth must be positive, got %d", c.QueueDepth))
	}
	switch AdmissionPolicy(strings.ToLower(string(c.Admission))) {
	case AdmissionReject, AdmissionBlock:
	default:
		errs = append(errs, fmt.Errorf("queue: unknown admission policy %q", c.Admission))
	}
	if c.EnqueueTimeout < 0 {
		errs = append(errs, errors.New("queue: enqueue timeout cannot be negative"))
	}
	if c.EnvelopeTTL < 0 {
		errs = append(errs, errors.New("queue: envelope ttl cannot be negative"))
	}
	return errs
}

func (c *Config) validateBreaker() []error {
	var errs []error
	if c.BreakerThreshold <= 0 {
		errs = append(errs, errors.New("breaker: threshold must be positive"))
	}
	if c.BreakerCooldown <= 0 {
		errs = append(errs, errors.New("breaker: cooldown must be positive"))
	}
	return errs
}

func (c *Config) validateExecution() []error {
	var errs []error
	if c.HandlerTimeout <= 0 {
		errs = append(errs, errors.New("executor: handler timeout must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("executor: worker count must be positive"))
	}
	if c.MinPriority > c.MaxPriority {
		errs = append(errs, fmt.Errorf("priority: min %d exceeds max %d", c.MinPriority, c.MaxPriority))
	}
	return errs
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
