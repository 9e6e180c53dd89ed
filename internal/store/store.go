package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/skysense/go-aq-sync/config"
	"github.com/skysense/go-aq-sync/model"
)

// Storer is the cache contract the orchestrator depends on.
type Storer interface {
	Get(key string) (*Entry, bool)
	Set(key string, payload []byte) bool
	IsStale(key string) bool
	Delete(key string)
	Invalidate(pattern string) int
	GetOfflineSnapshot(key string) (*Entry, bool)
	SetOfflineSnapshot(key string, payload []byte) error
	StoreMetrics() (hits, misses, promotions, evicted, capacityErrs int64)
	Close() error
}

// Store is the tiered cache. Reads check tiers in priority order and
// promote lower-tier hits into the primary tier; writes start at the
// primary tier and fall through on capacity failure after one
// evict-and-retry round.
type Store struct {
	cfg      *config.CacheCfg
	clock    clock.Clock
	logger   *slog.Logger
	tiers    []Tier
	snaps    snapshotTier
	counters *storeCounters
}

// New builds the tier list from the config: sqlite (structured) when a db
// path is set, a file tier when a directory is set, and always the memory
// tier last.
func New(cfg *config.CacheCfg, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	s := &Store{
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		counters: newStoreCounters(),
	}

	if cfg.DBPath != "" {
		structured, err := newSQLiteTier(cfg.DBPath, cfg.DBMaxRows)
		if err != nil {
			return nil, fmt.Errorf("structured tier: %w", err)
		}
		s.tiers = append(s.tiers, structured)
	}
	if cfg.FileDir != "" {
		serialized, err := newFileTier(cfg.FileDir, cfg.FileMaxBytes)
		if err != nil {
			return nil, fmt.Errorf("serialized tier: %w", err)
		}
		s.tiers = append(s.tiers, serialized)
	}
	mem := newMemoryTier(cfg.MemoryMaxItems)
	s.tiers = append(s.tiers, mem)

	// snapshots live in the highest tier able to hold them
	for _, t := range s.tiers {
		if st, ok := t.(snapshotTier); ok {
			s.snaps = st
			break
		}
	}

	return s, nil
}

// Get returns the first hit walking tiers in priority order. A hit below
// the primary tier is promoted into it so the next read is cheap.
func (s *Store) Get(key string) (*Entry, bool) {
	for i, t := range s.tiers {
		entry, ok, err := t.Get(key)
		if err != nil {
			s.logger.Warn("tier read failed", "tier", t.ID().String(), "key", key, "err", err)
			continue
		}
		if !ok {
			continue
		}
		s.counters.hits.Add(1)
		if i > 0 {
			s.promote(entry)
		}
		return entry, true
	}
	s.counters.misses.Add(1)
	return nil, false
}

func (s *Store) promote(entry *Entry) {
	primary := s.tiers[0]
	if err := primary.Set(entry); err != nil {
		// promotion is an optimization; capacity or IO failures keep the
		// entry servable from its current tier
		s.logger.Debug("tier promotion skipped", "key", entry.Key, "err", err)
		return
	}
	s.counters.promotions.Add(1)
}

// Set writes the payload with the kind-resolved TTL. It reports false only
// when every tier rejected the entry, which callers treat as non-fatal.
func (s *Store) Set(key string, payload []byte) bool {
	entry := &Entry{
		Key:      key,
		Payload:  payload,
		StoredAt: s.clock.Now(),
		TTL:      s.cfg.TTLFor(string(model.KindOf(key))),
	}

	for _, t := range s.tiers {
		if s.setTier(t, entry) {
			return true
		}
	}
	s.logger.Warn("entry rejected by every tier", "key", key)
	return false
}

func (s *Store) setTier(t Tier, entry *Entry) bool {
	err := t.Set(entry)
	if err == nil {
		return true
	}
	if !errors.Is(err, ErrCapacity) {
		s.logger.Warn("tier write failed", "tier", t.ID().String(), "key", entry.Key, "err", err)
		return false
	}

	s.counters.capacityErrs.Add(1)
	evicted, evictErr := t.EvictOldest(s.cfg.EvictFraction)
	if evictErr != nil {
		s.logger.Warn("tier eviction failed", "tier", t.ID().String(), "err", evictErr)
		return false
	}
	s.counters.evicted.Add(int64(evicted))

	if err = t.Set(entry); err != nil {
		return false
	}
	return true
}

// IsStale is a pure function of the clock, StoredAt and TTL. Absent keys
// are stale. Unlike Get it never promotes.
func (s *Store) IsStale(key string) bool {
	for _, t := range s.tiers {
		if entry, ok, err := t.Get(key); err == nil && ok {
			return entry.IsStaleAt(s.clock.Now())
		}
	}
	return true
}

// Delete removes exactly one key from every tier. Unlike Invalidate it
// never treats the key as a pattern, so "current:Delhi" cannot take
// "current:DelhiCantt" with it.
func (s *Store) Delete(key string) {
	for _, t := range s.tiers {
		if err := t.Delete(key); err != nil {
			s.logger.Warn("tier delete failed", "tier", t.ID().String(), "key", key, "err", err)
		}
	}
}

// Invalidate removes all entries matching the prefix or glob pattern from
// every tier and reports how many were dropped.
func (s *Store) Invalidate(pattern string) int {
	removed := 0
	for _, t := range s.tiers {
		keys, err := t.Keys()
		if err != nil {
			s.logger.Warn("tier key scan failed", "tier", t.ID().String(), "err", err)
			continue
		}
		for _, key := range keys {
			if !model.MatchKey(pattern, key) {
				continue
			}
			if err = t.Delete(key); err != nil {
				s.logger.Warn("tier delete failed", "tier", t.ID().String(), "key", key, "err", err)
				continue
			}
			removed++
		}
	}
	return removed
}

// GetOfflineSnapshot serves the last-resort payload for a key. Snapshots
// older than their fixed TTL are not returned.
func (s *Store) GetOfflineSnapshot(key string) (*Entry, bool) {
	entry, ok, err := s.snaps.GetSnapshot(key)
	if err != nil {
		s.logger.Warn("snapshot read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok || entry.IsStaleAt(s.clock.Now()) {
		return nil, false
	}
	s.counters.snapshotsServed.Add(1)
	return entry, true
}

// SetOfflineSnapshot overwrites the single snapshot for a key. Snapshots
// are never merged.
func (s *Store) SetOfflineSnapshot(key string, payload []byte) error {
	return s.snaps.SetSnapshot(&Entry{
		Key:      key,
		Payload:  payload,
		StoredAt: s.clock.Now(),
		TTL:      s.cfg.SnapshotTTL,
	})
}

func (s *Store) StoreMetrics() (hits, misses, promotions, evicted, capacityErrs int64) {
	return s.counters.snapshot()
}

func (s *Store) Close() error {
	var firstErr error
	for _, t := range s.tiers {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
