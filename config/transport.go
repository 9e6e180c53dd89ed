package config

import "time"

const (
	DefaultPollInterval = 30 * time.Second
	DefaultPollRate     = 5
)

// TransportCfg configures the poll fallback path.
type TransportCfg struct {
	// PollInterval is the cadence of poll rounds while degraded.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollRate caps per-second poll requests inside one round so a large
	// subscription set does not burst the backend.
	PollRate int `yaml:"poll_rate"`
}

func (cfg *TransportCfg) adjust() {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollRate <= 0 {
		cfg.PollRate = DefaultPollRate
	}
}
