package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	idspkg "github.com/dualtract/callosum/internal/kernel/ids"
	"github.com/dualtract/callosum/internal/kernel/jsoncodec"
	loggingpkg "github.com/dualtract/callosum/internal/kernel/logging"
)

// ParseTract converts a wire-level tract name into a Tract.
func ParseTract(s string) (Tract, error) {
	switch strings.ToLower(s) {
	case "internal", "":
		return TractInternal, nil
	case "external":
		return TractExternal, nil
	default:
		return TractInternal, fmt.Errorf("callosum: unknown tract %q", s)
	}
}

// ingressPayload is the JSON shape the bridge accepts on its topic.
type ingressPayload struct {
	Tract         string          `json:"tract"`
	Target        string          `json:"target,omitempty"`
	Priority      int             `json:"priority"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// IngressBridge feeds envelopes into the router from a Watermill subscriber,
// so external producers can submit routing requests over any transport a
// Watermill Pub/Sub covers. Malformed messages are acked, counted, and
// logged rather than redelivered: the router never retries on its own, and
// a poison ingress message would never become valid.
type IngressBridge struct {
	router *Router
	sub    message.Subscriber
	topic  string
	log    loggingpkg.ServiceLogger

	invalid atomic.Uint64
}

// NewIngressBridge wires a subscriber topic to the router.
func NewIngressBridge(router *Router, sub message.Subscriber, topic string, log loggingpkg.ServiceLogger) *IngressBridge {
	if log == nil {
		log = loggingpkg.NewNopServiceLogger()
	}
	return &IngressBridge{
		router: router,
		sub:    sub,
		topic:  topic,
		log:    log,
	}
}

// Run consumes the ingress topic until the context is cancelled or the
// subscriber closes its channel.
func (b *IngressBridge) Run(ctx context.Context) error {
	messages, err := b.sub.Subscribe(ctx, b.topic)
	if err != nil {
		return fmt.Errorf("callosum: ingress subscribe failed: %w", err)
	}

	for msg := range messages {
		b.handle(ctx, msg)
	}
	return nil
}

func (b *IngressBridge) handle(ctx context.Context, msg *message.Message) {
	// Always ack: admission failures are surfaced through stats and logs,
	// never through broker redelivery.
	defer msg.Ack()

	env, err := b.decode(msg)
	if err != nil {
		b.invalid.Add(1)
		b.log.Error("Discarding malformed ingress message", err, loggingpkg.LogFields{
			"message_uuid": msg.UUID,
			"topic":        b.topic,
		})
		return
	}

	outcome, err := b.router.Route(ctx, env)
	if err != nil {
		b.log.Error("Ingress envelope rejected", err, loggingpkg.LogFields{
			"envelope_id": env.ID,
			"target":      env.Target,
		})
		return
	}
	b.log.Trace("Ingress envelope routed", loggingpkg.LogFields{
		"envelope_id": env.ID,
		"delivered":   outcome.Delivered,
	})
}

func (b *IngressBridge) decode(msg *message.Message) (Envelope, error) {
	var in ingressPayload
	if err := jsoncodec.Unmarshal(msg.Payload, &in); err != nil {
		return Envelope{}, err
	}

	tract, err := ParseTract(in.Tract)
	if err != nil {
		return Envelope{}, err
	}
	if len(in.Payload) == 0 {
		return Envelope{}, fmt.Errorf("callosum: ingress message %s has no payload", msg.UUID)
	}

	opts := []EnvelopeOption{WithID(msg.UUID)}
	if in.CorrelationID != "" {
		opts = append(opts, WithCorrelationID(in.CorrelationID))
	} else if cid := msg.Metadata.Get("correlation_id"); cid != "" {
		opts = append(opts, WithCorrelationID(cid))
	}

	return NewEnvelope(tract, in.Target, in.Priority, in.Payload, b.router.PriorityBounds(), opts...)
}

// InvalidMessages reports how many malformed ingress messages were
// discarded.
func (b *IngressBridge) InvalidMessages() uint64 {
	return b.invalid.Load()
}

// resultMessage is the JSON shape the result publisher emits.
type resultMessage struct {
	ParticleID    string `json:"particle_id"`
	EnvelopeID    string `json:"envelope_id"`
	CorrelationID string `json:"correlation_id"`
	Output        any    `json:"output"`
}

// ResultPublisher publishes successful invocation outputs to a Watermill
// topic, carrying the originating correlation id in the message metadata so
// a producer can pair responses with requests. Attach it through
// DispatchHooks.
type ResultPublisher struct {
	pub   message.Publisher
	topic string
	log   loggingpkg.ServiceLogger
}

// NewResultPublisher wires a publisher topic for invocation outputs.
func NewResultPublisher(pub message.Publisher, topic string, log loggingpkg.ServiceLogger) *ResultPublisher {
	if log == nil {
		log = loggingpkg.NewNopServiceLogger()
	}
	return &ResultPublisher{pub: pub, topic: topic, log: log}
}

// Hooks returns the dispatch hooks that publish outputs. Invocations with a
// nil output publish nothing.
func (rp *ResultPublisher) Hooks() DispatchHooks {
	return DispatchHooks{
		OnDone: func(ctx DispatchContext, output any) {
			if output == nil {
				return
			}
			rp.publish(ctx, output)
		},
	}
}

func (rp *ResultPublisher) publish(ctx DispatchContext, output any) {
	correlationID := ctx.CorrelationID
	if correlationID == "" {
		correlationID = idspkg.NewCorrelationID()
	}

	body, err := jsoncodec.Marshal(resultMessage{
		ParticleID:    ctx.ParticleID,
		EnvelopeID:    ctx.EnvelopeID,
		CorrelationID: correlationID,
		Output:        output,
	})
	if err != nil {
		rp.log.Error("Failed to encode invocation result", err, loggingpkg.LogFields{
			"particle_id": ctx.ParticleID,
			"envelope_id": ctx.EnvelopeID,
		})
		return
	}

	msg := message.NewMessage(idspkg.NewEnvelopeID(), body)
	msg.Metadata.Set("correlation_id", correlationID)
	msg.Metadata.Set("particle_id", ctx.ParticleID)

	if err := rp.pub.Publish(rp.topic, msg); err != nil {
		rp.log.Error("Failed to publish invocation result", err, loggingpkg.LogFields{
			"particle_id": ctx.ParticleID,
			"envelope_id": ctx.EnvelopeID,
			"topic":       rp.topic,
		})
	}
}
