package push

import "sync/atomic"

type pushCounters struct {
	connects    atomic.Int64
	disconnects atomic.Int64
	updates     atomic.Int64
	dropped     atomic.Int64
}

func newPushCounters() *pushCounters {
	return &pushCounters{}
}

func (c *pushCounters) snapshot() (connects, disconnects, updates, dropped int64) {
	return c.connects.Load(), c.disconnects.Load(), c.updates.Load(), c.dropped.Load()
}
