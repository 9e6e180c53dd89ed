package fetch

import "sync/atomic"

type fetchCounters struct {
	attempts    atomic.Int64
	retries     atomic.Int64
	rateLimited atomic.Int64
	failures    atomic.Int64
}

func newFetchCounters() *fetchCounters {
	return &fetchCounters{}
}

func (c *fetchCounters) snapshot() (attempts, retries, rateLimited, failures int64) {
	return c.attempts.Load(), c.retries.Load(), c.rateLimited.Load(), c.failures.Load()
}
