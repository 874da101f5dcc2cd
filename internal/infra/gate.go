package infra

import (
	"context"
	"sync"
)

// MaxGateConcurrency is the hard upper bound on in-flight tasks,
// regardless of configuration. Upstream estimator sites are rate-limited
// and a misconfigured fan-out must not hammer them.
const MaxGateConcurrency = 32

// Gate is a FIFO admission gate bounding how many tasks run at once.
// Additional submissions queue in arrival order and are released as slots
// free up. A plain buffered-channel semaphore does not guarantee FIFO
// fairness under contention, hence the explicit waiter queue.
type Gate struct {
	mu       sync.Mutex
	max      int
	inFlight int
	waiters  []chan struct{}
}

// NewGate creates a gate admitting at most max concurrent tasks, clamped
// to [1, MaxGateConcurrency].
func NewGate(max int) *Gate {
	if max < 1 {
		max = 1
	}
	if max > MaxGateConcurrency {
		max = MaxGateConcurrency
	}
	return &Gate{max: max}
}

// Acquire blocks until a slot is free or ctx is cancelled. Waiters are
// admitted strictly in arrival order.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.inFlight < g.max {
		g.inFlight++
		g.mu.Unlock()
		return nil
	}

	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ch {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The slot was granted while we were cancelling; hand it back.
		g.Release()
		return ctx.Err()
	}
}

// Release frees a slot, handing it directly to the oldest waiter if any.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.waiters) > 0 {
		ch := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(ch) // in-flight count is unchanged: the slot changes hands
		return
	}
	if g.inFlight > 0 {
		g.inFlight--
	}
}

// InFlight returns the number of currently admitted tasks.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Max returns the configured concurrency limit.
func (g *Gate) Max() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}
