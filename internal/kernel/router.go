package kernel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/dualtract/callosum/internal/kernel/config"
	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
	loggingpkg "github.com/dualtract/callosum/internal/kernel/logging"
	"github.com/dualtract/callosum/internal/kernel/statestore"
)

// RouteOutcome reports what happened to a routed envelope. For targeted
// delivery Attempted and Delivered are at most 1 and admission failures are
// also returned as typed errors; for broadcast the per-destination failures
// are aggregated here instead of raised.
type RouteOutcome struct {
	Broadcast bool              `json:"broadcast"`
	Attempted int               `json:"attempted"`
	Delivered int               `json:"delivered"`
	Dropped   map[DropCause]int `json:"dropped,omitempty"`
}

func (o *RouteOutcome) recordDrop(cause DropCause) {
	if o.Dropped == nil {
		o.Dropped = make(map[DropCause]int)
	}
	o.Dropped[cause]++
}

// RouterDependencies holds the optional collaborators for NewRouter. Leave
// fields nil to use the defaults derived from configuration.
type RouterDependencies struct {
	// Store overrides the state store selected by Config.StorePath.
	Store statestore.Store
	// Hooks observe every particle invocation.
	Hooks DispatchHooks
	// Registerer receives the Prometheus collectors. Defaults to the
	// global registerer.
	Registerer prometheus.Registerer
}

// Router is the corpus callosum: it mediates between envelope producers and
// the registered particle pool, applying breaker and backpressure checks at
// admission and draining per-particle queues through a bounded worker pool.
type Router struct {
	conf *configpkg.Config
	log  loggingpkg.ServiceLogger

	registry *registry
	exec     *executor
	stats    *RouterStats
	metrics  *routerMetrics

	store     statestore.Store
	ownsStore bool

	work   chan *particle
	done   chan struct{}
	closed atomic.Bool
}

// NewRouter constructs a Router for the supplied configuration. Register
// particles on the returned Router, then call Run.
func NewRouter(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps RouterDependencies) (*Router, error) {
	if conf == nil {
		conf = configpkg.Default()
	} else {
		conf.ApplyDefaults()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = loggingpkg.NewNopServiceLogger()
	}

	store := deps.Store
	ownsStore := false
	if store == nil {
		var err error
		store, err = openConfiguredStore(conf)
		if err != nil {
			return nil, err
		}
		ownsStore = true
	}

	var metrics *routerMetrics
	if conf.MetricsEnabled {
		var err error
		metrics, err = newRouterMetrics(deps.Registerer)
		if err != nil {
			if ownsStore {
				store.Close()
			}
			return nil, err
		}
	}

	stats := &RouterStats{}
	r := &Router{
		conf:      conf,
		log:       log,
		registry:  newRegistry(),
		stats:     stats,
		metrics:   metrics,
		store:     store,
		ownsStore: ownsStore,
		work:      make(chan *particle, 1024),
		done:      make(chan struct{}),
	}
	r.exec = newExecutor(store, conf.HandlerTimeout, log, stats, deps.Hooks, metrics)

	log.Info("Creating router", loggingpkg.LogFields{
		"workers":     conf.Workers,
		"queue_depth": conf.QueueDepth,
		"admission":   string(conf.Admission),
	})

	return r, nil
}

func openConfiguredStore(conf *configpkg.Config) (statestore.Store, error) {
	if conf.StorePath == "" {
		return statestore.NewMemoryStore(), nil
	}
	store, err := statestore.OpenBolt(conf.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store at %s: %w", conf.StorePath, err)
	}
	return store, nil
}

// Register adds a particle to the pool. Fails with ErrDuplicateParticle when
// the id is already registered.
func (r *Router) Register(reg Registration) error {
	p, err := r.registry.register(reg, r.conf)
	if err != nil {
		return err
	}
	r.metrics.setBreakerState(p.id, BreakerClosed)
	r.metrics.setQueueDepth(p.id, 0)
	r.log.Info("Registered particle", loggingpkg.LogFields{"particle_id": p.id})
	return nil
}

// Deregister removes a particle, dropping its queue and breaker. Persisted
// state is kept so a later registration under the same id resumes from it.
func (r *Router) Deregister(particleID string) error {
	p, err := r.registry.deregister(particleID)
	if err != nil {
		return err
	}
	r.metrics.removeParticle(p.id)
	r.log.Info("Deregistered particle", loggingpkg.LogFields{"particle_id": p.id})
	return nil
}

// Route submits an envelope for delivery. Targeted envelopes go to exactly
// the named particle or fail with a typed admission error; broadcast
// envelopes go best-effort to every matching particle with per-destination
// failures aggregated into the outcome.
func (r *Router) Route(ctx context.Context, env Envelope) (RouteOutcome, error) {
	if r.closed.Load() {
		return RouteOutcome{}, errspkg.ErrRouterClosed
	}

	r.stats.recordReceived()
	r.metrics.incReceived(env.Tract, env.Broadcast())

	if env.Broadcast() {
		return r.routeBroadcast(env), nil
	}
	return r.routeTargeted(ctx, env)
}

func (r *Router) routeTargeted(ctx context.Context, env Envelope) (RouteOutcome, error) {
	outcome := RouteOutcome{Attempted: 1}

	p, ok := r.registry.lookup(env.Target)
	if !ok {
		outcome.recordDrop(DropUnknownTarget)
		r.recordDrop(DropUnknownTarget)
		return outcome, errspkg.ErrUnknownTarget
	}

	if err := p.breaker.allow(); err != nil {
		outcome.recordDrop(DropCircuitOpen)
		r.recordDrop(DropCircuitOpen)
		return outcome, err
	}

	var err error
	if admissionIsBlocking(r.conf.Admission) {
		err = p.queue.enqueue(ctx, env, r.conf.EnqueueTimeout)
	} else {
		err = p.queue.tryEnqueue(env)
	}
	if err != nil {
		p.breaker.cancelTrial()
		switch {
		case errors.Is(err, errspkg.ErrQueueFull):
			outcome.recordDrop(DropQueueFull)
			r.recordDrop(DropQueueFull)
		case errors.Is(err, errspkg.ErrEnqueueTimeout):
			outcome.recordDrop(DropEnqueueTimeout)
			r.recordDrop(DropEnqueueTimeout)
		}
		return outcome, err
	}

	outcome.Delivered = 1
	r.recordDelivered(env.Tract)
	r.metrics.setQueueDepth(p.id, p.queue.depth())
	r.schedule(p)
	return outcome, nil
}

// routeBroadcast delivers best-effort to every matching particle. Admission
// is always non-blocking here: one full queue must not stall delivery to
// the remaining destinations.
func (r *Router) routeBroadcast(env Envelope) RouteOutcome {
	outcome := RouteOutcome{Broadcast: true}

	matches := r.registry.matching(env)
	if len(matches) == 0 {
		r.stats.recordBroadcastNoMatch()
		return outcome
	}

	for _, p := range matches {
		outcome.Attempted++

		if err := p.breaker.allow(); err != nil {
			outcome.recordDrop(DropCircuitOpen)
			r.recordDrop(DropCircuitOpen)
			continue
		}
		if err := p.queue.tryEnqueue(env); err != nil {
			p.breaker.cancelTrial()
			outcome.recordDrop(DropQueueFull)
			r.recordDrop(DropQueueFull)
			continue
		}

		outcome.Delivered++
		r.recordDelivered(env.Tract)
		r.metrics.setQueueDepth(p.id, p.queue.depth())
		r.schedule(p)
	}
	return outcome
}

func (r *Router) recordDelivered(tract Tract) {
	r.stats.recordDelivered(tract)
	r.metrics.incDelivered(tract)
}

func (r *Router) recordDrop(cause DropCause) {
	r.stats.recordDrop(cause)
	r.metrics.incDropped(cause)
}

// schedule queues the particle for a worker turn. A particle sits in the
// work channel at most once; re-arming happens after the worker's turn.
func (r *Router) schedule(p *particle) {
	if p.gone.Load() {
		return
	}
	if !p.scheduled.CompareAndSwap(false, true) {
		return
	}
	r.dispatch(p)
}

func (r *Router) dispatch(p *particle) {
	select {
	case r.work <- p:
	default:
		// The work channel sizing covers any realistic particle count, but
		// never block a producer on it. The fallback send must give up at
		// shutdown: nothing drains the channel once the workers stop.
		go func() {
			select {
			case r.work <- p:
			case <-r.done:
			}
		}()
	}
}

// Run starts the worker pool and the metrics listener and blocks until the
// context is cancelled. After Run returns, Route fails with ErrRouterClosed.
func (r *Router) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	var metricsSrv *http.Server
	if r.conf.MetricsEnabled && r.conf.MetricsPort > 0 {
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", r.conf.MetricsPort),
			Handler: metricsMux(r, r.log),
		}
		srv := metricsSrv
		r.log.Info("Starting metrics server", loggingpkg.LogFields{"address": srv.Addr})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	for i := 0; i < r.conf.Workers; i++ {
		g.Go(func() error {
			return r.worker(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		r.closed.Store(true)
		close(r.done)
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	err := g.Wait()
	if r.ownsStore {
		if closeErr := r.store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (r *Router) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-r.work:
			r.runParticle(ctx, p)
		}
	}
}

// runParticle executes one queued envelope for the particle, then re-arms
// scheduling. One envelope per turn keeps drains fair across particles.
func (r *Router) runParticle(ctx context.Context, p *particle) {
	if !p.gone.Load() {
		if item, ok := p.queue.pop(); ok {
			if r.expired(item) {
				// Admission may have claimed the half-open trial for this
				// envelope; discarding without executing must give it back or
				// the breaker stays wedged in half-open.
				p.breaker.cancelTrial()
				r.recordDrop(DropExpired)
				r.log.Debug("Dropping expired envelope", loggingpkg.LogFields{
					"particle_id": p.id,
					"envelope_id": item.env.ID,
				})
			} else {
				r.exec.execute(ctx, p, item)
			}
			r.metrics.setQueueDepth(p.id, p.queue.depth())
		}
	}

	p.scheduled.Store(false)
	if !p.gone.Load() && p.queue.depth() > 0 {
		r.schedule(p)
	}
}

func (r *Router) expired(item *queueItem) bool {
	ttl := r.conf.EnvelopeTTL
	return ttl > 0 && time.Since(item.env.CreatedAt) > ttl
}

// Snapshot returns the read-only metrics report: aggregate router stats plus
// per-particle metrics and breaker states.
func (r *Router) Snapshot() MetricsSnapshot {
	routerSnap := r.stats.snapshot()
	routerSnap.QueueDepths = make(map[string]int)

	particles := make(map[string]ParticleSnapshot)
	for _, p := range r.registry.all() {
		depth := p.queue.depth()
		routerSnap.QueueDepths[p.id] = depth
		particles[p.id] = ParticleSnapshot{
			ParticleID: p.id,
			Metrics:    p.metrics.snapshot(),
			Breaker:    p.breaker.snapshot(),
			QueueDepth: depth,
		}
	}

	return MetricsSnapshot{
		Router:      routerSnap,
		Particles:   particles,
		CollectedAt: time.Now().UTC(),
	}
}

// PriorityBounds exposes the configured priority range for envelope
// construction.
func (r *Router) PriorityBounds() PriorityRange {
	return PriorityRange{Min: r.conf.MinPriority, Max: r.conf.MaxPriority}
}
