package relay

import "sync/atomic"

// eventGuard is a one-shot idempotency flag with a single pending-to-fired
// transition. It backs the exactly-once guarantees around the "ended"
// lifecycle event, shutdown, and the channel's closed notification.
type eventGuard struct {
	fired atomic.Bool
}

// TryFire attempts the pending-to-fired transition. Exactly one caller wins;
// all others observe false.
func (g *eventGuard) TryFire() bool {
	return g.fired.CompareAndSwap(false, true)
}

// Fired reports whether the guard has fired.
func (g *eventGuard) Fired() bool {
	return g.fired.Load()
}

// reset rearms the guard. Only used by the channel when a new connection is
// established, so the closed notification can fire once per connection.
func (g *eventGuard) reset() {
	g.fired.Store(false)
}
