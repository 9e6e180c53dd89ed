package config

import "time"

const DefaultTelemetryInterval = 30 * time.Second

// TelemetryCfg configures periodic counter logs. A nil section disables
// telemetry output entirely.
type TelemetryCfg struct {
	// Interval is the cadence of counter snapshot logs.
	Interval time.Duration `yaml:"interval"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *TelemetryCfg) adjust() {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTelemetryInterval
	}
}
