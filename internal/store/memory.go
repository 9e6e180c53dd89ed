package store

import (
	"sort"
	"sync"

	"github.com/zeebo/xxh3"
)

// memoryTier is the always-present lowest tier. Entries are kept under
// their xxh3 hash; the original key is compared on every hit so hash
// collisions degrade to a miss instead of serving a foreign payload.
type memoryTier struct {
	mu       sync.RWMutex
	entries  map[uint64]*Entry
	snaps    map[string]*Entry
	maxItems int
}

func newMemoryTier(maxItems int) *memoryTier {
	return &memoryTier{
		entries:  make(map[uint64]*Entry),
		snaps:    make(map[string]*Entry),
		maxItems: maxItems,
	}
}

func (t *memoryTier) ID() TierID { return TierMemory }

func hashKey(key string) uint64 { return xxh3.HashString(key) }

func (t *memoryTier) Get(key string) (*Entry, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[hashKey(key)]
	if !ok || e.Key != key {
		// absent or hash collision
		return nil, false, nil
	}
	return e, true, nil
}

func (t *memoryTier) Set(entry *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := hashKey(entry.Key)
	if _, exists := t.entries[h]; !exists && len(t.entries) >= t.maxItems {
		return ErrCapacity
	}
	cp := *entry
	cp.Tier = TierMemory
	t.entries[h] = &cp
	return nil
}

func (t *memoryTier) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := hashKey(key)
	if e, ok := t.entries[h]; ok && e.Key == key {
		delete(t.entries, h)
	}
	return nil
}

func (t *memoryTier) Keys() ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

func (t *memoryTier) Len() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries), nil
}

func (t *memoryTier) EvictOldest(fraction float64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	quota := oldestQuota(len(t.entries), fraction)
	if quota == 0 {
		return 0, nil
	}

	all := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StoredAt.Before(all[j].StoredAt) })

	for _, e := range all[:quota] {
		delete(t.entries, hashKey(e.Key))
	}
	return quota, nil
}

func (t *memoryTier) GetSnapshot(key string) (*Entry, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.snaps[key]
	return e, ok, nil
}

func (t *memoryTier) SetSnapshot(entry *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *entry
	cp.Tier = TierMemory
	t.snaps[entry.Key] = &cp
	return nil
}

func (t *memoryTier) Close() error { return nil }
