package ids

import (
	"sync"
	"testing"
)

func TestNewEnvelopeIDFormat(t *testing.T) {
	id := NewEnvelopeID()
	if len(id) != 26 {
		t.Fatalf("expected 26-character ulid, got %q", id)
	}
}

func TestNewEnvelopeIDSortsByIssueOrder(t *testing.T) {
	prev := NewEnvelopeID()
	for i := 0; i < 100; i++ {
		next := NewEnvelopeID()
		if next <= prev {
			t.Fatalf("ids out of order: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNewEnvelopeIDConcurrentUniqueness(t *testing.T) {
	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := NewEnvelopeID()
				mu.Lock()
				if _, dup := seen[id]; dup {
					mu.Unlock()
					t.Errorf("duplicate id %s", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestNewCorrelationIDSharesAlphabet(t *testing.T) {
	if len(NewCorrelationID()) != 26 {
		t.Fatal("correlation id is not a ulid")
	}
}
