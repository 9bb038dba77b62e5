package kernel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
	"github.com/dualtract/callosum/internal/kernel/jsoncodec"
	loggingpkg "github.com/dualtract/callosum/internal/kernel/logging"
	"github.com/dualtract/callosum/internal/kernel/statestore"
)

// executor invokes particles: load state, invoke with a timeout, persist the
// new state, record metrics and breaker outcomes. It never retries; retry is
// a producer-level policy.
type executor struct {
	store   statestore.Store
	timeout time.Duration
	log     loggingpkg.ServiceLogger
	stats   *RouterStats
	hooks   DispatchHooks
	metrics *routerMetrics
	tracer  trace.Tracer
}

func newExecutor(store statestore.Store, timeout time.Duration, log loggingpkg.ServiceLogger, stats *RouterStats, hooks DispatchHooks, metrics *routerMetrics) *executor {
	return &executor{
		store:   store,
		timeout: timeout,
		log:     log,
		stats:   stats,
		hooks:   hooks,
		metrics: metrics,
		tracer:  otel.Tracer("callosum-executor"),
	}
}

type invocationOutcome struct {
	result ProcessResult
	err    error
}

// execute runs one queued envelope through the particle. Same-particle calls
// never overlap (the router schedules a particle at most once at a time), so
// the state read-modify-persist sequence needs no locking.
func (e *executor) execute(ctx context.Context, p *particle, item *queueItem) {
	env := item.env
	item.attempt++

	dispatchCtx := DispatchContext{
		ParticleID:    p.id,
		EnvelopeID:    env.ID,
		CorrelationID: env.CorrelationID,
		Tract:         env.Tract,
		Attempt:       item.attempt,
		StartedAt:     time.Now(),
	}
	if e.hooks.OnStart != nil {
		e.hooks.OnStart(dispatchCtx)
	}

	spanCtx, span := e.tracer.Start(ctx, "ExecuteParticle")
	span.SetAttributes(
		attribute.String("particle.id", p.id),
		attribute.String("envelope.id", env.ID),
		attribute.String("envelope.tract", env.Tract.String()),
	)
	defer span.End()

	state := e.loadState(spanCtx, p)

	invokeCtx, cancel := context.WithTimeout(spanCtx, e.timeout)
	defer cancel()

	// Buffered so a late completion after timeout is discarded instead of
	// leaking the goroutine.
	outcomeCh := make(chan invocationOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcomeCh <- invocationOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		result, err := p.process(invokeCtx, env, state)
		outcomeCh <- invocationOutcome{result: result, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var outcome invocationOutcome
	select {
	case outcome = <-outcomeCh:
	case <-timer.C:
		outcome = invocationOutcome{err: errspkg.ErrHandlerTimeout}
	}

	latency := time.Since(dispatchCtx.StartedAt)
	dispatchCtx.Duration = latency
	e.metrics.observeLatency(p.id, latency)

	if outcome.err != nil {
		e.finishFailure(p, dispatchCtx, outcome.err, latency)
		return
	}

	e.finishSuccess(spanCtx, p, dispatchCtx, outcome.result, latency)
}

// loadState returns the particle's current state, loading it lazily from
// the store on first use. A store read failure falls back to the declared
// initial state so an unavailable adapter degrades instead of blocking the
// particle.
func (e *executor) loadState(ctx context.Context, p *particle) State {
	if !p.stateLoaded {
		stored, found, err := e.store.Get(ctx, p.id)
		switch {
		case err != nil:
			e.log.Error("Failed to load particle state, using initial state", err,
				loggingpkg.LogFields{"particle_id": p.id})
			p.state = cloneState(p.initial)
		case found:
			var state State
			if err := jsoncodec.Unmarshal(stored, &state); err != nil {
				e.log.Error("Stored particle state is unreadable, using initial state", err,
					loggingpkg.LogFields{"particle_id": p.id})
				p.state = cloneState(p.initial)
			} else {
				p.state = state
			}
		default:
			p.state = cloneState(p.initial)
		}
		p.stateLoaded = true
	}

	return cloneState(p.state)
}

func (e *executor) finishSuccess(ctx context.Context, p *particle, dispatchCtx DispatchContext, result ProcessResult, latency time.Duration) {
	if result.State != nil {
		p.state = result.State
		e.persistState(ctx, p, result.State)
	}

	p.metrics.recordSuccess(latency, result.Custom)
	p.breaker.recordSuccess()
	e.metrics.setBreakerState(p.id, p.breaker.snapshot().State)

	if e.hooks.OnDone != nil {
		e.hooks.OnDone(dispatchCtx, result.Output)
	}
}

func (e *executor) finishFailure(p *particle, dispatchCtx DispatchContext, cause error, latency time.Duration) {
	err := &errspkg.HandlerError{
		ParticleID: p.id,
		EnvelopeID: dispatchCtx.EnvelopeID,
		Err:        cause,
	}

	p.metrics.recordFailure(latency)
	p.breaker.recordFailure()
	e.metrics.setBreakerState(p.id, p.breaker.snapshot().State)
	e.metrics.incFailures(p.id)

	if e.hooks.OnError != nil {
		e.hooks.OnError(dispatchCtx, err)
	}
}

// persistState writes the new state through the adapter. A write failure is
// warning-grade: the invocation result stands, the failure is counted.
func (e *executor) persistState(ctx context.Context, p *particle, state State) {
	data, err := jsoncodec.Marshal(state)
	if err == nil {
		err = e.store.Put(ctx, p.id, data)
	}
	if err != nil {
		persistErr := &errspkg.StatePersistError{ParticleID: p.id, Err: err}
		e.log.Error("Failed to persist particle state", persistErr,
			loggingpkg.LogFields{"particle_id": p.id})
		p.metrics.recordPersistFailure()
		e.stats.recordPersistFailure()
	}
}

func cloneState(s State) State {
	if s == nil {
		return State{}
	}
	clone, err := jsoncodec.Clone(s)
	if err != nil {
		// A state that survived a previous marshal cannot fail to clone;
		// an unmarshalable initial state degrades to empty.
		return State{}
	}
	return clone
}
