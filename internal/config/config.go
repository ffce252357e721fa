package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Source     SourceConfig     `mapstructure:"source"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// EngineConfig holds posture engine timing and buffer configuration
type EngineConfig struct {
	FilterAlpha        float64       `mapstructure:"filter_alpha"`
	EscalationDelay    time.Duration `mapstructure:"escalation_delay"`
	AlertCooldown      time.Duration `mapstructure:"alert_cooldown"`
	HistorySize        int           `mapstructure:"history_size"`
	CalibrationHold    time.Duration `mapstructure:"calibration_hold"`
	CalibrationSamples int           `mapstructure:"calibration_samples"`
	ConnectGrace       time.Duration `mapstructure:"connect_grace"`
	RestartDelay       time.Duration `mapstructure:"restart_delay"`
	NotifyTimeout      time.Duration `mapstructure:"notify_timeout"`
}

// ThresholdsConfig holds the threshold defaults used until the user changes them
type ThresholdsConfig struct {
	PoorPosture float64 `mapstructure:"poor_posture"`
	Warning     float64 `mapstructure:"warning"`
	Roll        float64 `mapstructure:"roll"`
}

// SourceConfig selects and configures the live sample source
type SourceConfig struct {
	Kind       string           `mapstructure:"kind"` // simulated, mqtt or serial
	SampleRate float64          `mapstructure:"sample_rate"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Serial     SerialConfig     `mapstructure:"serial"`
}

// SimulationConfig holds synthetic generator configuration
type SimulationConfig struct {
	Pattern string `mapstructure:"pattern"`
	Seed    uint64 `mapstructure:"seed"` // 0 = time based
}

// SerialConfig holds serial port configuration
type SerialConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"`
	Radians  bool   `mapstructure:"radians"`
}

// MQTTConfig holds broker configuration for samples, state and commands
type MQTTConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Broker          string        `mapstructure:"broker"`
	ClientID        string        `mapstructure:"client_id"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	QoS             int           `mapstructure:"qos"`
	SampleTopic     string        `mapstructure:"sample_topic"`
	Radians         bool          `mapstructure:"radians"`
	StateTopic      string        `mapstructure:"state_topic"`
	CommandTopic    string        `mapstructure:"command_topic"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// NotifyConfig holds local alert notification configuration
type NotifyConfig struct {
	Sound   SoundConfig   `mapstructure:"sound"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds the HTTP alert webhook configuration
type WebhookConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// SoundConfig holds the alert sound player command
type SoundConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Command []string `mapstructure:"command"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath      string `mapstructure:"db_path"`
	MaxSessions int    `mapstructure:"max_sessions"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty path
// uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("POSTUREGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.filter_alpha", 0.2)
	v.SetDefault("engine.escalation_delay", "2s")
	v.SetDefault("engine.alert_cooldown", "10s")
	v.SetDefault("engine.history_size", 100)
	v.SetDefault("engine.calibration_hold", "3s")
	v.SetDefault("engine.calibration_samples", 30)
	v.SetDefault("engine.connect_grace", "2s")
	v.SetDefault("engine.restart_delay", "500ms")
	v.SetDefault("engine.notify_timeout", "5s")

	// Threshold defaults (degrees)
	v.SetDefault("thresholds.poor_posture", -15.0)
	v.SetDefault("thresholds.warning", 1.0)
	v.SetDefault("thresholds.roll", 1.0)

	// Source defaults
	v.SetDefault("source.kind", "simulated")
	v.SetDefault("source.sample_rate", 30.0)
	v.SetDefault("source.simulation.pattern", "random")
	v.SetDefault("source.simulation.seed", 0)
	v.SetDefault("source.serial.baud_rate", 115200)
	v.SetDefault("source.serial.data_bits", 8)
	v.SetDefault("source.serial.stop_bits", 1)
	v.SetDefault("source.serial.parity", "N")
	v.SetDefault("source.serial.radians", false)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.client_id", "postureguard")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.sample_topic", "postureguard/orientation")
	v.SetDefault("mqtt.state_topic", "postureguard/state")
	v.SetDefault("mqtt.command_topic", "postureguard/command")
	v.SetDefault("mqtt.publish_interval", "1s")
	v.SetDefault("mqtt.timeout", "5s")

	// Notification defaults
	v.SetDefault("notify.sound.enabled", false)
	v.SetDefault("notify.sound.command", []string{"paplay", "/usr/share/sounds/freedesktop/stereo/bell.oga"})
	v.SetDefault("notify.webhook.enabled", false)
	v.SetDefault("notify.webhook.timeout", "5s")
	v.SetDefault("notify.webhook.max_retries", 3)
	v.SetDefault("notify.webhook.retry_delay", "1s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/postureguard.db")
	v.SetDefault("storage.max_sessions", 500)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Engine config
	if !(c.Engine.FilterAlpha > 0 && c.Engine.FilterAlpha <= 1) {
		return fmt.Errorf("engine.filter_alpha must be in (0, 1]")
	}
	if c.Engine.EscalationDelay <= 0 {
		return fmt.Errorf("engine.escalation_delay must be positive")
	}
	if c.Engine.AlertCooldown <= 0 {
		return fmt.Errorf("engine.alert_cooldown must be positive")
	}
	if c.Engine.HistorySize < 1 {
		return fmt.Errorf("engine.history_size must be at least 1")
	}
	if c.Engine.CalibrationHold <= 0 {
		return fmt.Errorf("engine.calibration_hold must be positive")
	}
	if c.Engine.CalibrationSamples < 1 {
		return fmt.Errorf("engine.calibration_samples must be at least 1")
	}
	if c.Engine.ConnectGrace <= 0 {
		return fmt.Errorf("engine.connect_grace must be positive")
	}
	if c.Engine.RestartDelay < 0 {
		return fmt.Errorf("engine.restart_delay must not be negative")
	}
	if c.Engine.NotifyTimeout <= 0 {
		return fmt.Errorf("engine.notify_timeout must be positive")
	}

	// Validate Source config
	if c.Source.SampleRate <= 0 {
		return fmt.Errorf("source.sample_rate must be positive")
	}
	switch c.Source.Simulation.Pattern {
	case "", "random", "wave":
	default:
		return fmt.Errorf("source.simulation.pattern must be one of: random, wave")
	}
	switch c.Source.Kind {
	case "simulated":
	case "mqtt":
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when source.kind is mqtt")
		}
		if c.MQTT.SampleTopic == "" {
			return fmt.Errorf("mqtt.sample_topic is required when source.kind is mqtt")
		}
	case "serial":
		if c.Source.Serial.Port == "" {
			return fmt.Errorf("source.serial.port is required when source.kind is serial")
		}
	default:
		return fmt.Errorf("source.kind must be one of: simulated, mqtt, serial")
	}

	// Validate MQTT config
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.PublishInterval <= 0 {
			return fmt.Errorf("mqtt.publish_interval must be positive")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	// Validate Notify config
	if c.Notify.Sound.Enabled && len(c.Notify.Sound.Command) == 0 {
		return fmt.Errorf("notify.sound.command is required when sound is enabled")
	}
	if c.Notify.Webhook.Enabled {
		if c.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url is required when webhook is enabled")
		}
		if c.Notify.Webhook.Timeout <= 0 {
			return fmt.Errorf("notify.webhook.timeout must be positive")
		}
		if c.Notify.Webhook.MaxRetries < 1 {
			return fmt.Errorf("notify.webhook.max_retries must be at least 1")
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxSessions < 1 {
		return fmt.Errorf("storage.max_sessions must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// UsesMQTT reports whether any component needs a broker connection
func (c *Config) UsesMQTT() bool {
	return c.MQTT.Enabled || c.Source.Kind == "mqtt"
}
