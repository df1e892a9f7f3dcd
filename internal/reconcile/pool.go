package reconcile

import (
	"context"
	"sync"

	"github.com/pairlink/pairlink/internal/model"
)

// candidateStack is the shared work list a job's workers draw from. Items are
// popped from the top; there is no fixed partitioning, the first idle worker
// takes the next item.
type candidateStack struct {
	mu    sync.Mutex
	items []model.Identity
}

func (s *candidateStack) pop() (model.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return model.Identity{}, false
	}
	item := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return item, true
}

// runPool processes every candidate with a fixed number of workers. Each
// worker finishes its current item before pulling the next, and the stack is
// fully drained before runPool returns; a started run is never cancelled
// part-way. process must handle its own errors, per-item failures never stop
// the pool.
func runPool(ctx context.Context, width int, candidates []model.Identity, process func(context.Context, model.Identity)) {
	if width < 1 {
		width = 1
	}

	stack := &candidateStack{items: candidates}

	var wg sync.WaitGroup
	for i := 0; i < width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := stack.pop()
				if !ok {
					return
				}
				process(ctx, item)
			}
		}()
	}
	wg.Wait()
}
