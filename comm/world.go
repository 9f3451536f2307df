package comm

import (
	"context"
	"sync"
)

// world is the in-process rendezvous point shared by every PE
// goroutine in one run. A collective call is one round: each PE
// contributes a value and blocks until every PE has contributed, then
// all PEs observe the full, ordered set of contributions for that
// round. This is the same bulk-synchronous barrier-and-exchange
// pattern every Comm method implements, expressed without a wire
// format since all PEs share one address space.
type world struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	round   int
	arrived int
	slot    []any
	last    []any // the last completed round's contributions, read by waiters
}

func newWorld(size int) *world {
	w := &world{size: size, slot: make([]any, size)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// rendezvous contributes mine on behalf of rank and returns the full
// ordered contribution set once every PE has arrived for this round.
// It is cancellation-aware: a canceled ctx wakes every still-waiting
// PE so a fatal error on one PE does not hang the others.
func (w *world) rendezvous(ctx context.Context, rank int, mine any) ([]any, error) {
	w.mu.Lock()
	myRound := w.round
	w.slot[rank] = mine
	w.arrived++

	if w.arrived == w.size {
		w.arrived = 0
		w.round++
		result := append([]any(nil), w.slot...)
		w.last = result
		w.mu.Unlock()
		w.cond.Broadcast()
		return result, nil
	}
	w.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	defer stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	for w.round == myRound {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.cond.Wait()
	}
	// w.slot may already hold a faster PE's next-round contribution;
	// w.last cannot change until this PE arrives for the next round.
	return append([]any(nil), w.last...), nil
}
