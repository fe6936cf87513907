package config

// Controller defaults. The Ovum ACP answers on the standard Modbus port as
// unit 247, and a 60 s scan interval is what the vendor tooling uses.
const (
	DefaultPort       = 502
	DefaultUnitID     = 247
	DefaultIntervalMs = 60_000
	DefaultTimeoutMs  = 10_000
	DefaultHTTPListen = ":8090"
)

// Normalize applies defaults for omitted fields.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Source.Port == 0 {
		cfg.Source.Port = DefaultPort
	}
	if cfg.Source.UnitID == 0 {
		cfg.Source.UnitID = DefaultUnitID
	}
	if cfg.Source.TimeoutMs == 0 {
		cfg.Source.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultIntervalMs
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultHTTPListen
	}
	if cfg.MQTT != nil && cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "acp-poller"
	}
}
