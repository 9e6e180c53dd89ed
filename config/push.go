package config

import "time"

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultPushRetryEvery   = time.Minute
	DefaultPushRetryCap     = 5
)

// PushCfg configures the push channel. A nil section means the environment
// is not push-capable and the transport starts degraded immediately.
type PushCfg struct {
	// HandshakeTimeout bounds the dial plus the server ready frame.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// RetryEvery is the cadence of background handshake retries while
	// polling in degraded mode.
	RetryEvery time.Duration `yaml:"retry_every"`

	// RetryCap caps background handshake retries; once exhausted, push is
	// abandoned for the rest of the session.
	RetryCap int `yaml:"retry_cap"`
}

func (cfg *PushCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *PushCfg) adjust() {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = DefaultPushRetryEvery
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = DefaultPushRetryCap
	}
}
