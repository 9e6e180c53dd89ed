package store

import "errors"

// ErrCapacity is returned by a tier rejecting a write for quota reasons.
// The store reacts by evicting the oldest slice of that tier and retrying
// once, then falling through to the next tier.
var ErrCapacity = errors.New("tier capacity exceeded")

// Tier is one storage level of the cache. Tiers are checked in a fixed
// priority order; new tiers slot into the list without touching the store's
// control flow.
type Tier interface {
	ID() TierID
	Get(key string) (*Entry, bool, error)
	Set(entry *Entry) error
	Delete(key string) error
	Keys() ([]string, error)
	Len() (int, error)

	// EvictOldest removes the given fraction of entries ordered by
	// StoredAt, oldest first, and reports how many were removed.
	EvictOldest(fraction float64) (int, error)

	Close() error
}

// snapshotTier is implemented by tiers able to hold offline snapshots
// outside the regular TTL path. The store uses the highest-priority one.
type snapshotTier interface {
	GetSnapshot(key string) (*Entry, bool, error)
	SetSnapshot(entry *Entry) error
}

func oldestQuota(total int, fraction float64) int {
	n := int(float64(total) * fraction)
	if n < 1 && total > 0 {
		n = 1
	}
	return n
}
