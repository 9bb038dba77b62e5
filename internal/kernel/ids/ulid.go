// Package ids generates the time-sortable identifiers used for envelopes and
// correlation ids.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEnvelopeID returns a 26-character ULID. Ids issued by one process sort
// by creation time, which keeps arrival-order tiebreaks in queue dumps
// readable.
func NewEnvelopeID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewCorrelationID returns a fresh correlation identifier. Same alphabet as
// envelope ids so both can share log fields and metadata keys.
func NewCorrelationID() string {
	return NewEnvelopeID()
}
