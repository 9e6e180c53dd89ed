package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config groups configuration of all sync-engine subsystems.
// Optional sections can be disabled by setting them to nil.
type Config struct {
	// Remote describes the backend service endpoints and the issued
	// credential attached to every request. Required.
	Remote RemoteCfg `yaml:"remote"`

	// Cache configures the tiered cache store. Required.
	Cache *CacheCfg `yaml:"cache"`

	// Fetch configures the retrying HTTP client.
	// If nil, defaults apply (3 attempts, 1s base backoff, 10s timeout).
	Fetch *FetchCfg `yaml:"fetch"`

	// Push configures the push channel. If nil, the engine never attempts
	// a push handshake and starts degraded (poll-only).
	Push *PushCfg `yaml:"push"`

	// Transport configures poll pacing and offline handling.
	Transport *TransportCfg `yaml:"transport"`

	// Sync configures subscription refresh behavior.
	Sync *SyncCfg `yaml:"sync"`

	// Player configures forecast playback cadence and preloading.
	Player *PlayerCfg `yaml:"player"`

	// Telemetry configures periodic counter logging.
	// If nil, telemetry logs are disabled.
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}

// AdjustConfig normalizes zero values to documented defaults. It is called
// by LoadConfig and must be called by hand when a Config is built in code.
func (cfg *Config) AdjustConfig() {
	if cfg.Cache == nil {
		cfg.Cache = &CacheCfg{}
	}
	cfg.Cache.adjust()
	if cfg.Fetch == nil {
		cfg.Fetch = &FetchCfg{}
	}
	cfg.Fetch.adjust()
	if cfg.Push.Enabled() {
		cfg.Push.adjust()
	}
	if cfg.Transport == nil {
		cfg.Transport = &TransportCfg{}
	}
	cfg.Transport.adjust()
	if cfg.Sync == nil {
		cfg.Sync = &SyncCfg{}
	}
	cfg.Sync.adjust()
	if cfg.Player == nil {
		cfg.Player = &PlayerCfg{}
	}
	cfg.Player.adjust()
	if cfg.Telemetry.Enabled() {
		cfg.Telemetry.adjust()
	}
}

// Validate rejects configurations the engine cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Remote.BaseURL == "" {
		return fmt.Errorf("config: remote.base_url is required")
	}
	if cfg.Push.Enabled() && cfg.Remote.PushURL == "" {
		return fmt.Errorf("config: push enabled but remote.push_url is empty")
	}
	return nil
}

// LoadConfig reads a yaml config file. Unknown keys are rejected so typos
// fail at construction time instead of silently falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	cfg := &Config{}
	if err = dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	cfg.AdjustConfig()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
