package assistant

import "sync/atomic"

// Guard is a single-slot turn lock. A second acquire while held is rejected,
// never queued.
type Guard struct {
	busy atomic.Bool
}

func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Guard) Release() {
	g.busy.Store(false)
}

func (g *Guard) Busy() bool {
	return g.busy.Load()
}
