package kernel

import (
	"time"

	loggingpkg "github.com/dualtract/callosum/internal/kernel/logging"
)

// DispatchContext describes one particle invocation to hooks.
type DispatchContext struct {
	// ParticleID is the particle handling the envelope.
	ParticleID string
	// EnvelopeID is the envelope being handled.
	EnvelopeID string
	// CorrelationID is the envelope's correlation id, if any.
	CorrelationID string
	// Tract is the envelope's origin domain.
	Tract Tract
	// Attempt is 1 for the first execution of an envelope. Producers that
	// re-route a failed request create a fresh envelope, so this stays 1
	// unless a future retry policy bumps it.
	Attempt int
	// StartedAt is when the invocation began.
	StartedAt time.Time
	// Duration is how long the invocation took (set in OnDone and OnError).
	Duration time.Duration
}

// DispatchHooks defines callbacks around particle invocations. All hooks
// are optional; nil hooks are simply not called.
type DispatchHooks struct {
	// OnStart is called before the process function is invoked.
	OnStart func(ctx DispatchContext)

	// OnDone is called after a successful invocation with its output.
	OnDone func(ctx DispatchContext, output any)

	// OnError is called when an invocation fails, times out, or panics.
	OnError func(ctx DispatchContext, err error)
}

// Merge combines two DispatchHooks; the hooks from other run after h's.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnStart: chainStartHooks(h.OnStart, other.OnStart),
		OnDone:  chainDoneHooks(h.OnDone, other.OnDone),
		OnError: chainErrorHooks(h.OnError, other.OnError),
	}
}

func chainStartHooks(a, b func(DispatchContext)) func(DispatchContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext) {
		a(ctx)
		b(ctx)
	}
}

func chainDoneHooks(a, b func(DispatchContext, any)) func(DispatchContext, any) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, output any) {
		a(ctx, output)
		b(ctx, output)
	}
}

func chainErrorHooks(a, b func(DispatchContext, error)) func(DispatchContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx DispatchContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// LoggingHooks returns hooks that log invocation lifecycle events.
func LoggingHooks(log loggingpkg.ServiceLogger) DispatchHooks {
	return DispatchHooks{
		OnStart: func(ctx DispatchContext) {
			log.Debug("Invoking particle", loggingpkg.LogFields{
				"particle_id": ctx.ParticleID,
				"envelope_id": ctx.EnvelopeID,
				"tract":       ctx.Tract.String(),
			})
		},
		OnDone: func(ctx DispatchContext, output any) {
			log.Debug("Particle invocation complete", loggingpkg.LogFields{
				"particle_id": ctx.ParticleID,
				"envelope_id": ctx.EnvelopeID,
				"duration":    ctx.Duration.String(),
			})
		},
		OnError: func(ctx DispatchContext, err error) {
			log.Error("Particle invocation failed", err, loggingpkg.LogFields{
				"particle_id": ctx.ParticleID,
				"envelope_id": ctx.EnvelopeID,
				"duration":    ctx.Duration.String(),
			})
		},
	}
}
