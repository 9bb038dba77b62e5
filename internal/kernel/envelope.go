package kernel

import (
	"fmt"
	"time"

	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
	idspkg "github.com/dualtract/callosum/internal/kernel/ids"
	"github.com/dualtract/callosum/internal/kernel/jsoncodec"
)

// Tract tags which domain an envelope belongs to: planning traffic from the
// internal tract, execution traffic from the external tract.
type Tract uint8

const (
	TractInternal Tract = iota
	TractExternal
)

func (t Tract) String() string {
	switch t {
	case TractInternal:
		return "internal"
	case TractExternal:
		return "external"
	default:
		return fmt.Sprintf("tract(%d)", uint8(t))
	}
}

// Envelope is the immutable unit of routing. Construct one with NewEnvelope;
// none of the fields change after construction. Router bookkeeping (attempt
// counts, queue timestamps) lives on the queue item, not here.
type Envelope struct {
	// ID is the unique, time-sortable envelope identifier.
	ID string `json:"id"`

	// Tract records the origin domain, used for delivery statistics.
	Tract Tract `json:"tract"`

	// Target names the destination particle. Empty means broadcast to every
	// particle whose filter matches.
	Target string `json:"target,omitempty"`

	// Priority orders envelopes within a particle queue. Higher drains
	// first; ties break by arrival order.
	Priority int `json:"priority"`

	// Payload is the particle-specific message body as canonical JSON. The
	// router never interprets it.
	Payload []byte `json:"payload"`

	// CorrelationID links a response to its originating request. Optional.
	CorrelationID string `json:"correlation_id,omitempty"`

	// CreatedAt is the construction timestamp, used for latency measurement
	// and queue-age expiry.
	CreatedAt time.Time `json:"created_at"`
}

// EnvelopeOption customises envelope construction.
type EnvelopeOption func(*Envelope)

// WithCorrelationID links the envelope to a request/response exchange.
func WithCorrelationID(id string) EnvelopeOption {
	return func(e *Envelope) { e.CorrelationID = id }
}

// WithID overrides the generated envelope id. The ingress bridge uses this
// to keep the upstream message id when replaying traffic into the router.
func WithID(id string) EnvelopeOption {
	return func(e *Envelope) { e.ID = id }
}

// WithCreatedAt overrides the construction timestamp.
func WithCreatedAt(ts time.Time) EnvelopeOption {
	return func(e *Envelope) { e.CreatedAt = ts }
}

// PriorityRange bounds Envelope.Priority at construction time.
type PriorityRange struct {
	Min, Max int
}

// Contains reports whether p falls inside the range. A zero range accepts
// everything.
func (r PriorityRange) Contains(p int) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	return p >= r.Min && p <= r.Max
}

// NewEnvelope validates and constructs an Envelope. The payload must be a
// non-nil value that marshals to JSON; it is stored in its canonical JSON
// form so the envelope can be handed across goroutines without aliasing the
// caller's value. Fails with *InvalidEnvelopeError on a nil or unmarshalable
// payload or an out-of-range priority.
func NewEnvelope(tract Tract, target string, priority int, payload any, bounds PriorityRange, opts ...EnvelopeOption) (Envelope, error) {
	if payload == nil {
		return Envelope{}, &errspkg.InvalidEnvelopeError{Reason: "payload is required"}
	}
	if !bounds.Contains(priority) {
		return Envelope{}, &errspkg.InvalidEnvelopeError{
			Reason: fmt.Sprintf("priority %d outside configured range [%d, %d]", priority, bounds.Min, bounds.Max),
		}
	}

	body, err := jsoncodec.Marshal(payload)
	if err != nil {
		return Envelope{}, &errspkg.InvalidEnvelopeError{Reason: "payload is not JSON-serialisable: " + err.Error()}
	}

	env := Envelope{
		ID:        idspkg.NewEnvelopeID(),
		Tract:     tract,
		Target:    target,
		Priority:  priority,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env, nil
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	return jsoncodec.Unmarshal(e.Payload, v)
}

// Broadcast reports whether the envelope has no explicit target.
func (e Envelope) Broadcast() bool {
	return e.Target == ""
}
