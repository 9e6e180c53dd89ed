package transport

import "sync/atomic"

type transportCounters struct {
	stateChanges atomic.Int64
	pollRounds   atomic.Int64
	pushRetries  atomic.Int64
	delivered    atomic.Int64
	droppedLWW   atomic.Int64
}

func newTransportCounters() *transportCounters {
	return &transportCounters{}
}

func (c *transportCounters) snapshot() (stateChanges, pollRounds, pushRetries, delivered, droppedLWW int64) {
	return c.stateChanges.Load(), c.pollRounds.Load(), c.pushRetries.Load(), c.delivered.Load(), c.droppedLWW.Load()
}
