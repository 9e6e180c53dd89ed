package store

import "sync/atomic"

type storeCounters struct {
	hits            atomic.Int64
	misses          atomic.Int64
	promotions      atomic.Int64
	evicted         atomic.Int64
	capacityErrs    atomic.Int64
	snapshotsServed atomic.Int64
}

func newStoreCounters() *storeCounters {
	return &storeCounters{}
}

func (c *storeCounters) snapshot() (hits, misses, promotions, evicted, capacityErrs int64) {
	return c.hits.Load(), c.misses.Load(), c.promotions.Load(), c.evicted.Load(), c.capacityErrs.Load()
}
