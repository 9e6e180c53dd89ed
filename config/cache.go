package config

import "time"

const (
	DefaultTTL         = 5 * time.Minute
	DefaultSnapshotTTL = 24 * time.Hour
	DefaultMemoryItems = 4096
)

// CacheCfg configures the tiered cache store. Tiers are checked in priority
// order: structured (sqlite), serialized (file), memory. A tier with an
// empty location is simply not constructed; the memory tier always exists.
type CacheCfg struct {
	// DBPath is the sqlite file backing the structured primary tier.
	// Empty disables the tier.
	DBPath string `yaml:"db_path"`

	// DBMaxRows bounds the structured tier. Writes beyond the bound get a
	// capacity error, triggering the store's evict-and-retry path.
	DBMaxRows int `yaml:"db_max_rows"`

	// FileDir is the directory backing the serialized-string tier.
	// Empty disables the tier.
	FileDir string `yaml:"file_dir"`

	// FileMaxBytes bounds the serialized tier's total payload size.
	FileMaxBytes int64 `yaml:"file_max_bytes"`

	// MemoryMaxItems bounds the in-memory tier.
	MemoryMaxItems int `yaml:"memory_max_items"`

	// TTL is the freshness window applied when no per-kind override
	// matches. Stale entries stay servable as a degraded fallback.
	TTL time.Duration `yaml:"ttl"`

	// TTLByKind overrides TTL per resource kind, keyed by the key prefix
	// ("current", "forecast24h", "grid").
	TTLByKind map[string]time.Duration `yaml:"ttl_by_kind"`

	// SnapshotTTL is the fixed long lifetime of offline snapshots, used
	// exclusively when every live-update path has failed.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`

	// EvictFraction is the share of oldest entries removed when a tier
	// rejects a write for capacity. Carried as a tunable, not a constant.
	EvictFraction float64 `yaml:"evict_fraction"`
}

func (cfg *CacheCfg) adjust() {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}
	if cfg.MemoryMaxItems <= 0 {
		cfg.MemoryMaxItems = DefaultMemoryItems
	}
	if cfg.EvictFraction <= 0 || cfg.EvictFraction >= 1 {
		cfg.EvictFraction = 0.25
	}
}

// TTLFor resolves the freshness window for a resource key prefix.
func (cfg *CacheCfg) TTLFor(kind string) time.Duration {
	if ttl, ok := cfg.TTLByKind[kind]; ok && ttl > 0 {
		return ttl
	}
	return cfg.TTL
}
