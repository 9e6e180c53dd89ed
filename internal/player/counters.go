package player

import "sync/atomic"

type playerCounters struct {
	ticks  atomic.Int64
	holds  atomic.Int64
	missed atomic.Int64
}

func newPlayerCounters() *playerCounters {
	return &playerCounters{}
}

func (c *playerCounters) snapshot() (ticks, holds, missed int64) {
	return c.ticks.Load(), c.holds.Load(), c.missed.Load()
}
