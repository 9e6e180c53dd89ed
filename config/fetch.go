package config

import "time"

const (
	DefaultFetchAttempts  = 3
	DefaultBackoffBase    = time.Second
	DefaultBackoffCap     = 30 * time.Second
	DefaultAttemptTimeout = 10 * time.Second
)

// FetchCfg configures the retrying HTTP client.
type FetchCfg struct {
	// Attempts is the maximum number of requests issued per fetch,
	// counting the first one.
	Attempts int `yaml:"attempts"`

	// BackoffBase is the delay before the first retry; it doubles per
	// attempt (1s, 2s, 4s, ...) up to BackoffCap.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffCap bounds the doubled delay.
	BackoffCap time.Duration `yaml:"backoff_cap"`

	// AttemptTimeout bounds each individual attempt. Exceeding it counts
	// as a retryable failure.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

func (cfg *FetchCfg) adjust() {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultFetchAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
}
