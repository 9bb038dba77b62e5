package kernel

import (
	"context"
	"sync"
	"sync/atomic"

	configpkg "github.com/dualtract/callosum/internal/kernel/config"
	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
)

// State is a particle's private structured value, persisted between
// invocations. The executor hands each invocation its own deep copy and
// persists whatever the process function returns.
type State map[string]any

// Filter is a particle's capability predicate over envelopes. Broadcast
// envelopes are delivered only to particles whose filter matches; a particle
// registered without a filter receives targeted traffic only.
type Filter func(Envelope) bool

// ProcessResult is what a process function returns on success.
type ProcessResult struct {
	// Output is the invocation result, surfaced through dispatch hooks and
	// the result publisher.
	Output any

	// State replaces the particle's persisted state. Nil keeps the previous
	// state unchanged.
	State State

	// Custom merges handler-defined numeric fields into ParticleMetrics.
	Custom map[string]float64
}

// ProcessFunc is a particle's processing function. It receives the envelope
// and the particle's current state and must not retain either past the
// call; invocations for the same particle never overlap.
type ProcessFunc func(ctx context.Context, env Envelope, state State) (ProcessResult, error)

// Registration describes a particle to register.
type Registration struct {
	// ParticleID is the unique, restart-stable identifier. Also the state
	// store key.
	ParticleID string

	// Filter is the broadcast capability predicate. Optional.
	Filter Filter

	// InitialState seeds the particle's state when the store has none.
	InitialState State

	// Process is the particle's processing function. Required.
	Process ProcessFunc

	// QueueDepth overrides the configured default queue capacity when
	// positive.
	QueueDepth int
}

// particle is a registered execution unit together with its queue, breaker,
// metrics, and cached state.
type particle struct {
	id      string
	filter  Filter
	process ProcessFunc
	initial State

	queue   *boundedQueue
	breaker *breaker
	metrics *ParticleMetrics

	// scheduled guards the particle's presence in the router's work
	// channel: a particle is scheduled at most once at a time, which is
	// what serializes same-particle invocations.
	scheduled atomic.Bool

	// gone flips at deregistration so workers discard queued work.
	gone atomic.Bool

	// state is the cached persisted state. Only the executor touches it,
	// and invocations per particle are serialized, so no lock is needed.
	state       State
	stateLoaded bool
}

func (p *particle) matches(env Envelope) bool {
	return p.filter != nil && p.filter(env)
}

// registry holds the registered particles keyed by id.
type registry struct {
	mu        sync.RWMutex
	particles map[string]*particle
}

func newRegistry() *registry {
	return &registry{particles: make(map[string]*particle)}
}

// register validates the registration and creates the particle with its
// queue, breaker, and metrics. Fails with ErrDuplicateParticle when the id
// is taken.
func (r *registry) register(reg Registration, conf *configpkg.Config) (*particle, error) {
	if reg.ParticleID == "" {
		return nil, errspkg.ErrParticleIDRequired
	}
	if reg.Process == nil {
		return nil, errspkg.ErrProcessFnRequired
	}

	depth := conf.QueueDepth
	if reg.QueueDepth > 0 {
		depth = reg.QueueDepth
	}

	p := &particle{
		id:      reg.ParticleID,
		filter:  reg.Filter,
		process: reg.Process,
		initial: reg.InitialState,
		queue:   newBoundedQueue(depth),
		breaker: newBreaker(conf.BreakerThreshold, conf.BreakerCooldown),
		metrics: newParticleMetrics(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.particles[p.id]; exists {
		return nil, errspkg.ErrDuplicateParticle
	}
	r.particles[p.id] = p
	return p, nil
}

// deregister removes the particle, dropping its queue and breaker. The
// persisted state is left in the store on purpose: a re-registration under
// the same id resumes from it.
func (r *registry) deregister(id string) (*particle, error) {
	r.mu.Lock()
	p, ok := r.particles[id]
	if ok {
		delete(r.particles, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil, errspkg.ErrUnknownParticle
	}

	p.gone.Store(true)
	p.queue.drain()
	return p, nil
}

func (r *registry) lookup(id string) (*particle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.particles[id]
	return p, ok
}

// matching returns the particles whose capability filter matches env.
func (r *registry) matching(env Envelope) []*particle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*particle
	for _, p := range r.particles {
		if p.matches(env) {
			out = append(out, p)
		}
	}
	return out
}

// all returns every registered particle.
func (r *registry) all() []*particle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*particle, 0, len(r.particles))
	for _, p := range r.particles {
		out = append(out, p)
	}
	return out
}
