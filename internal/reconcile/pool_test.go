package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pairlink/pairlink/internal/model"
)

func poolCandidates(n int) []model.Identity {
	out := make([]model.Identity, n)
	for i := range out {
		out[i] = model.Identity{UID: string(rune('a' + i))}
	}
	return out
}

func TestRunPool_ProcessesEveryItemOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make(map[string]int)

	runPool(context.Background(), 3, poolCandidates(5), func(_ context.Context, id model.Identity) {
		mu.Lock()
		seen[id.UID]++
		mu.Unlock()
	})

	if len(seen) != 5 {
		t.Fatalf("processed %d distinct items, want 5", len(seen))
	}
	for uid, n := range seen {
		if n != 1 {
			t.Errorf("item %s processed %d times, want 1", uid, n)
		}
	}
}

func TestRunPool_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var current, peak atomic.Int64
	gate := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		runPool(context.Background(), 3, poolCandidates(10), func(_ context.Context, _ model.Identity) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-gate
			current.Add(-1)
		})
	}()

	// Let the workers saturate, then release everything.
	for i := 0; i < 10; i++ {
		gate <- struct{}{}
	}
	<-done

	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want at most 3", got)
	}
}

func TestRunPool_EmptyAndZeroWidth(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	runPool(context.Background(), 3, nil, func(_ context.Context, _ model.Identity) {
		calls.Add(1)
	})
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0 for empty candidate list", calls.Load())
	}

	runPool(context.Background(), 0, poolCandidates(2), func(_ context.Context, _ model.Identity) {
		calls.Add(1)
	})
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 with clamped width", calls.Load())
	}
}
