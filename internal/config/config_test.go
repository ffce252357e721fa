package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
engine:
  escalation_delay: 3s
  alert_cooldown: 30s
  history_size: 200

thresholds:
  poor_posture: -20
  warning: 2
  roll: 4

source:
  kind: serial
  sample_rate: 50
  serial:
    port: /dev/ttyUSB0
    baud_rate: 9600
    radians: true

mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  publish_interval: 2s

notify:
  sound:
    enabled: true
    command: ["aplay", "ding.wav"]

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  max_sessions: 10
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "text"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Test Load
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify values
	if cfg.Engine.EscalationDelay != 3*time.Second {
		t.Errorf("Unexpected escalation delay: %v", cfg.Engine.EscalationDelay)
	}
	if cfg.Engine.HistorySize != 200 {
		t.Errorf("Unexpected history size: %d", cfg.Engine.HistorySize)
	}
	if cfg.Engine.FilterAlpha != 0.2 {
		t.Errorf("Default filter alpha not applied: %f", cfg.Engine.FilterAlpha)
	}
	if cfg.Thresholds.PoorPosture != -20 || cfg.Thresholds.Warning != 2 || cfg.Thresholds.Roll != 4 {
		t.Errorf("Unexpected thresholds: %+v", cfg.Thresholds)
	}
	if cfg.Source.Serial.BaudRate != 9600 || !cfg.Source.Serial.Radians {
		t.Errorf("Unexpected serial config: %+v", cfg.Source.Serial)
	}
	if cfg.Source.Serial.DataBits != 8 {
		t.Errorf("Default data bits not applied: %d", cfg.Source.Serial.DataBits)
	}
	if len(cfg.Notify.Sound.Command) != 2 || cfg.Notify.Sound.Command[0] != "aplay" {
		t.Errorf("Unexpected sound command: %v", cfg.Notify.Sound.Command)
	}
	if cfg.MQTT.StateTopic != "postureguard/state" {
		t.Errorf("Default state topic not applied: %q", cfg.MQTT.StateTopic)
	}
	if !cfg.UsesMQTT() {
		t.Error("UsesMQTT should be true when mqtt is enabled")
	}

	// Test Validate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Source.Kind != "simulated" {
		t.Errorf("Unexpected default source kind: %q", cfg.Source.Kind)
	}
	if cfg.Engine.CalibrationSamples != 30 || cfg.Engine.CalibrationHold != 3*time.Second {
		t.Errorf("Unexpected calibration defaults: %+v", cfg.Engine)
	}
	if cfg.UsesMQTT() {
		t.Error("UsesMQTT should be false by default")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POSTUREGUARD_ENGINE_HISTORY_SIZE", "64")
	t.Setenv("POSTUREGUARD_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.HistorySize != 64 {
		t.Errorf("env override not applied to history size: %d", cfg.Engine.HistorySize)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env override not applied to log level: %q", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/postureguard.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing telegram token when enabled",
			mutate: func(c *Config) {
				c.Telegram.Enabled = true
				c.Telegram.ChatID = "123"
			},
			wantErr: true,
		},
		{
			name:    "invalid alpha",
			mutate:  func(c *Config) { c.Engine.FilterAlpha = 1.5 },
			wantErr: true,
		},
		{
			name:    "invalid history size",
			mutate:  func(c *Config) { c.Engine.HistorySize = 0 },
			wantErr: true,
		},
		{
			name:    "unknown source kind",
			mutate:  func(c *Config) { c.Source.Kind = "bluetooth" },
			wantErr: true,
		},
		{
			name:    "mqtt source without broker",
			mutate:  func(c *Config) { c.Source.Kind = "mqtt" },
			wantErr: true,
		},
		{
			name: "mqtt source with broker",
			mutate: func(c *Config) {
				c.Source.Kind = "mqtt"
				c.MQTT.Broker = "tcp://localhost:1883"
			},
			wantErr: false,
		},
		{
			name:    "serial source without port",
			mutate:  func(c *Config) { c.Source.Kind = "serial" },
			wantErr: true,
		},
		{
			name:    "unknown simulation pattern",
			mutate:  func(c *Config) { c.Source.Simulation.Pattern = "zigzag" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "sound without command",
			mutate: func(c *Config) {
				c.Notify.Sound.Enabled = true
				c.Notify.Sound.Command = nil
			},
			wantErr: true,
		},
		{
			name:    "webhook without url",
			mutate:  func(c *Config) { c.Notify.Webhook.Enabled = true },
			wantErr: true,
		},
		{
			name: "webhook with url",
			mutate: func(c *Config) {
				c.Notify.Webhook.Enabled = true
				c.Notify.Webhook.URL = "http://localhost:8080/alerts"
			},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "empty db path",
			mutate:  func(c *Config) { c.Storage.DBPath = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
