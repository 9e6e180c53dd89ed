package config

import "time"

const (
	DefaultFrameInterval = 1500 * time.Millisecond
	DefaultLookahead     = 3
)

// PlayerCfg configures forecast playback.
type PlayerCfg struct {
	// FrameInterval is the per-frame cadence. Changes via SetSpeed take
	// effect on the next tick.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// Lookahead is how many frames beyond the current index are preloaded.
	Lookahead int `yaml:"lookahead"`

	// SkipTimeout is how long playback holds on an unloaded frame before
	// skipping one index forward. Zero means twice the frame interval.
	SkipTimeout time.Duration `yaml:"skip_timeout"`
}

func (cfg *PlayerCfg) adjust() {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.SkipTimeout <= 0 {
		cfg.SkipTimeout = 2 * cfg.FrameInterval
	}
}
