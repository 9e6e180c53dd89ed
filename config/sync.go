package config

import "time"

const (
	DefaultAutoRefresh  = 5 * time.Minute
	DefaultUpdateBuffer = 16
)

// SyncCfg configures the orchestrator.
type SyncCfg struct {
	// AutoRefresh invalidates and re-synchronizes every actively
	// subscribed key on this cadence regardless of transport mode, so a
	// silently dead push channel cannot pin consumers to one snapshot.
	AutoRefresh time.Duration `yaml:"auto_refresh"`

	// UpdateBuffer is the per-consumer state channel depth. Slow
	// consumers drop intermediate states, never the latest.
	UpdateBuffer int `yaml:"update_buffer"`
}

func (cfg *SyncCfg) adjust() {
	if cfg.AutoRefresh <= 0 {
		cfg.AutoRefresh = DefaultAutoRefresh
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = DefaultUpdateBuffer
	}
}
