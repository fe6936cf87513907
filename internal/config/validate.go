package config

import "fmt"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg.Source.Host == "" {
		return fmt.Errorf("config: source.host is required")
	}
	if cfg.Source.Port < 0 || cfg.Source.Port > 65535 {
		return fmt.Errorf("config: source.port %d out of range", cfg.Source.Port)
	}
	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("config: poll.interval_ms must not be negative")
	}
	if cfg.Source.TimeoutMs < 0 {
		return fmt.Errorf("config: source.timeout_ms must not be negative")
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required when mqtt is configured")
	}

	return nil
}
