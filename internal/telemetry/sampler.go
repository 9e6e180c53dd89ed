package telemetry

import (
	"github.com/skysense/go-aq-sync/internal/fetch"
	"github.com/skysense/go-aq-sync/internal/store"
	"github.com/skysense/go-aq-sync/internal/syncer"
	"github.com/skysense/go-aq-sync/internal/transport"
)

type sampler struct {
	store    store.Storer
	fetcher  fetch.Fetcher
	selector transport.Selecting
	syncer   syncer.Syncer
}

func newSampler(st store.Storer, f fetch.Fetcher, sel transport.Selecting, sy syncer.Syncer) sampler {
	return sampler{store: st, fetcher: f, selector: sel, syncer: sy}
}

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	storeHits        int64
	storeMisses      int64
	storePromotions  int64
	storeEvicted     int64
	storeCapacityErr int64

	fetchAttempts    int64
	fetchRetries     int64
	fetchRateLimited int64
	fetchFailures    int64

	stateChanges int64
	pollRounds   int64
	pushRetries  int64
	delivered    int64
	droppedLWW   int64

	syncFetches  int64
	syncMerged   int64
	syncRefresh  int64
	syncApplied  int64
	syncFailures int64
}

func (s sampler) snapshot() snapshot {
	hits, misses, promotions, evicted, capErrs := s.store.StoreMetrics()
	attempts, retries, rateLimited, failures := s.fetcher.FetchMetrics()
	changes, rounds, pRetries, delivered, dropped := s.selector.TransportMetrics()
	fetches, merged, refresh, applied, sFailures := s.syncer.SyncMetrics()

	return snapshot{
		storeHits:        hits,
		storeMisses:      misses,
		storePromotions:  promotions,
		storeEvicted:     evicted,
		storeCapacityErr: capErrs,

		fetchAttempts:    attempts,
		fetchRetries:     retries,
		fetchRateLimited: rateLimited,
		fetchFailures:    failures,

		stateChanges: changes,
		pollRounds:   rounds,
		pushRetries:  pRetries,
		delivered:    delivered,
		droppedLWW:   dropped,

		syncFetches:  fetches,
		syncMerged:   merged,
		syncRefresh:  refresh,
		syncApplied:  applied,
		syncFailures: sFailures,
	}
}

func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		storeHits:        cur.storeHits - prev.storeHits,
		storeMisses:      cur.storeMisses - prev.storeMisses,
		storePromotions:  cur.storePromotions - prev.storePromotions,
		storeEvicted:     cur.storeEvicted - prev.storeEvicted,
		storeCapacityErr: cur.storeCapacityErr - prev.storeCapacityErr,

		fetchAttempts:    cur.fetchAttempts - prev.fetchAttempts,
		fetchRetries:     cur.fetchRetries - prev.fetchRetries,
		fetchRateLimited: cur.fetchRateLimited - prev.fetchRateLimited,
		fetchFailures:    cur.fetchFailures - prev.fetchFailures,

		stateChanges: cur.stateChanges - prev.stateChanges,
		pollRounds:   cur.pollRounds - prev.pollRounds,
		pushRetries:  cur.pushRetries - prev.pushRetries,
		delivered:    cur.delivered - prev.delivered,
		droppedLWW:   cur.droppedLWW - prev.droppedLWW,

		syncFetches:  cur.syncFetches - prev.syncFetches,
		syncMerged:   cur.syncMerged - prev.syncMerged,
		syncRefresh:  cur.syncRefresh - prev.syncRefresh,
		syncApplied:  cur.syncApplied - prev.syncApplied,
		syncFailures: cur.syncFailures - prev.syncFailures,
	}
}
