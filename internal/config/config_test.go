package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
source:
  host: 10.0.0.5
  port: 502
  unit_id: 247
  timeout_ms: 5000
poll:
  interval_ms: 30000
register_map: /etc/acp/custom-map.yaml
mqtt:
  broker: broker.local:1883
  client_id: heatpump
  topic_prefix: ovum/acp
http:
  listen: ":9000"
`))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "10.0.0.5", cfg.Source.Host)
	assert.Equal(t, uint8(247), cfg.Source.UnitID)
	assert.Equal(t, 30000, cfg.Poll.IntervalMs)
	assert.Equal(t, "/etc/acp/custom-map.yaml", cfg.RegisterMap)
	require.NotNil(t, cfg.MQTT)
	assert.Equal(t, "broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":9000", cfg.HTTP.Listen)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing host", Config{}},
		{"port out of range", Config{Source: SourceConfig{Host: "h", Port: 70000}}},
		{"negative interval", Config{Source: SourceConfig{Host: "h"}, Poll: PollConfig{IntervalMs: -1}}},
		{"mqtt without broker", Config{Source: SourceConfig{Host: "h"}, MQTT: &MQTTConfig{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, Validate(&tc.cfg))
		})
	}
}

func TestNormalizeAppliesControllerDefaults(t *testing.T) {
	cfg := &Config{Source: SourceConfig{Host: "10.0.0.5"}}
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, DefaultPort, cfg.Source.Port)
	assert.Equal(t, uint8(DefaultUnitID), cfg.Source.UnitID)
	assert.Equal(t, DefaultTimeoutMs, cfg.Source.TimeoutMs)
	assert.Equal(t, DefaultIntervalMs, cfg.Poll.IntervalMs)
	assert.Equal(t, DefaultHTTPListen, cfg.HTTP.Listen)
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Source: SourceConfig{Host: "h", Port: 1502, UnitID: 3, TimeoutMs: 2000},
		Poll:   PollConfig{IntervalMs: 5000},
		MQTT:   &MQTTConfig{Broker: "b:1883"},
	}
	Normalize(cfg)

	assert.Equal(t, 1502, cfg.Source.Port)
	assert.Equal(t, uint8(3), cfg.Source.UnitID)
	assert.Equal(t, 5000, cfg.Poll.IntervalMs)
	assert.Equal(t, "acp-poller", cfg.MQTT.ClientID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
