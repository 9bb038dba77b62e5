// Package callosum is a message-routing kernel mediating between a planning
// producer (the internal tract) and a pool of independent, stateful-but-
// idempotent execution particles (the external tract). The Router resolves
// each envelope to one particle (targeted) or to every particle whose
// capability filter matches (broadcast), applies per-particle circuit
// breaker and bounded-queue backpressure checks at admission, and hands
// accepted envelopes to a bounded worker pool for execution.
//
// Delivery semantics: targeted routing either accepts the envelope for
// asynchronous execution, fails synchronously with a typed error
// (UnknownTarget, QueueFull, EnqueueTimeout, CircuitOpen), or blocks up to
// the configured timeout under the block admission policy; it is never
// silently dropped. Broadcast is best-effort per destination: one
// particle's open breaker or full queue never stalls delivery to the rest,
// and the aggregate outcome is reported in RouteOutcome and reconstructable
// from RouterStats.
//
// Each particle's state is loaded before and persisted after every
// invocation through the state store adapter (bbolt-backed or in-memory),
// and invocations for the same particle are serialized so the
// read-modify-persist sequence is atomic without the particle being
// concurrency-safe. Handler failures, panics, and timeouts are absorbed at
// the executor boundary, counted, and fed to the breaker; nothing crashes
// the dispatch loop.
//
// # Observability
//
// The router exports Prometheus collectors plus a JSON snapshot endpoint
// with aggregate RouterStats, per-particle metrics, and breaker states.
// Composite readiness scoring belongs to external consumers of the
// snapshot; the router stores no such figure itself.
//
// # Bridge
//
// IngressBridge consumes envelope JSON from any Watermill subscriber and
// routes it; ResultPublisher publishes invocation outputs with correlation
// metadata. Together they let remote producers use the kernel over
// whatever transport their Watermill Pub/Sub provides.
package callosum
