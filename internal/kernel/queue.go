package kernel

import (
	"container/heap"
	"context"
	"sync"
	"time"

	configpkg "github.com/dualtract/callosum/internal/kernel/config"
	errspkg "github.com/dualtract/callosum/internal/kernel/errors"
)

// queueItem carries an envelope through a particle queue together with the
// router-internal bookkeeping the envelope itself must not hold.
type queueItem struct {
	env        Envelope
	seq        uint64
	enqueuedAt time.Time
	attempt    int
}

// boundedQueue is a per-particle priority queue with a hard capacity.
// Admission is controlled by a slot channel so REJECT can test for space
// without locking and BLOCK can wait on it with a timeout; ordering is a
// max-heap on (priority, arrival sequence) under the mutex.
type boundedQueue struct {
	capacity int
	slots    chan struct{}

	mu    sync.Mutex
	items envHeap
	seq   uint64
}

func newBoundedQueue(capacity int) *boundedQueue {
	return &boundedQueue{
		capacity: capacity,
		slots:    make(chan struct{}, capacity),
		items:    make(envHeap, 0, capacity),
	}
}

// tryEnqueue admits env without blocking. Used for the REJECT policy and
// for every broadcast destination regardless of policy.
func (q *boundedQueue) tryEnqueue(env Envelope) error {
	select {
	case q.slots <- struct{}{}:
	default:
		return errspkg.ErrQueueFull
	}
	q.push(env)
	return nil
}

// enqueue admits env under the BLOCK policy: it suspends the caller until a
// slot frees up, the timeout elapses (ErrEnqueueTimeout), or the context is
// cancelled.
func (q *boundedQueue) enqueue(ctx context.Context, env Envelope, timeout time.Duration) error {
	select {
	case q.slots <- struct{}{}:
		q.push(env)
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.slots <- struct{}{}:
		q.push(env)
		return nil
	case <-timer.C:
		return errspkg.ErrEnqueueTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *boundedQueue) push(env Envelope) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.items, &queueItem{
		env:        env,
		seq:        q.seq,
		enqueuedAt: time.Now(),
	})
	q.mu.Unlock()
}

// pop removes and returns the highest-priority item, releasing its
// admission slot. Returns false when the queue is empty.
func (q *boundedQueue) pop() (*queueItem, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	q.mu.Unlock()

	// Every heap item holds exactly one slot token.
	<-q.slots
	return item, true
}

// depth reports the number of queued envelopes.
func (q *boundedQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain empties the queue, releasing all slots, and returns the number of
// items discarded. Used at deregistration.
func (q *boundedQueue) drain() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = q.items[:0]
	q.mu.Unlock()

	for i := 0; i < n; i++ {
		<-q.slots
	}
	return n
}

func admissionIsBlocking(policy configpkg.AdmissionPolicy) bool {
	return policy == configpkg.AdmissionBlock
}

// envHeap orders items by priority descending, then by arrival sequence
// ascending. Implements heap.Interface.
type envHeap []*queueItem

func (h envHeap) Len() int { return len(h) }

func (h envHeap) Less(i, j int) bool {
	if h[i].env.Priority != h[j].env.Priority {
		return h[i].env.Priority > h[j].env.Priority
	}
	return h[i].seq < h[j].seq
}

func (h envHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *envHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *envHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
