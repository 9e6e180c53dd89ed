package help

import (
	"time"

	"github.com/skysense/go-aq-sync/config"
)

// Cfg is a memory-tier-only configuration with fast timers, suitable for
// most integration tests.
func Cfg(baseURL string) *config.Config {
	c := &config.Config{
		Remote: config.RemoteCfg{
			BaseURL: baseURL,
		},
		Cache: &config.CacheCfg{
			MemoryMaxItems: 128,
			TTL:            5 * time.Minute,
		},
		Fetch: &config.FetchCfg{
			Attempts:       3,
			BackoffBase:    10 * time.Millisecond,
			BackoffCap:     100 * time.Millisecond,
			AttemptTimeout: time.Second,
		},
		Transport: &config.TransportCfg{
			PollInterval: 50 * time.Millisecond,
			PollRate:     100,
		},
		Sync: &config.SyncCfg{
			AutoRefresh:  time.Hour,
			UpdateBuffer: 16,
		},
		Player: &config.PlayerCfg{
			FrameInterval: 20 * time.Millisecond,
			Lookahead:     3,
			SkipTimeout:   60 * time.Millisecond,
		},
	}
	c.AdjustConfig()
	return c
}

// PersistentCfg adds sqlite and file tiers rooted in dir.
func PersistentCfg(baseURL, dir string) *config.Config {
	c := Cfg(baseURL)
	c.Cache.DBPath = dir + "/cache.db"
	c.Cache.FileDir = dir + "/entries"
	return c
}
