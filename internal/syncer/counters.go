package syncer

import "sync/atomic"

type syncCounters struct {
	fetches   atomic.Int64
	merged    atomic.Int64
	refreshes atomic.Int64
	applied   atomic.Int64
	failures  atomic.Int64
}

func newSyncCounters() *syncCounters {
	return &syncCounters{}
}

func (c *syncCounters) snapshot() (fetches, merged, refreshes, applied, failures int64) {
	return c.fetches.Load(), c.merged.Load(), c.refreshes.Load(), c.applied.Load(), c.failures.Load()
}
