package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/postureguard/internal/config"
	"github.com/rewired-gh/postureguard/internal/control"
	"github.com/rewired-gh/postureguard/internal/logger"
	"github.com/rewired-gh/postureguard/internal/models"
	"github.com/rewired-gh/postureguard/internal/monitor"
	"github.com/rewired-gh/postureguard/internal/mqtt"
	"github.com/rewired-gh/postureguard/internal/notify"
	"github.com/rewired-gh/postureguard/internal/source"
	"github.com/rewired-gh/postureguard/internal/storage"
	"github.com/rewired-gh/postureguard/internal/telegram"
)

const statusLogInterval = time.Minute

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file (empty for defaults)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxSessions, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	defaults := models.DefaultSettings()
	defaults.Thresholds = models.Thresholds{
		PoorPosture: cfg.Thresholds.PoorPosture,
		Warning:     cfg.Thresholds.Warning,
		Roll:        cfg.Thresholds.Roll,
	}.Clamp()
	settings, err := store.LoadSettings(defaults)
	if err != nil {
		logger.Warn("Failed to load persisted settings, using defaults: %v", err)
	}
	logger.Info("Loaded settings: thresholds %+v, baseline %+v", settings.Thresholds, settings.Baseline)
	logPreviousSession(store)

	sim, err := source.NewSimulated(cfg.Source.SampleRate, source.Pattern(cfg.Source.Simulation.Pattern), cfg.Source.Simulation.Seed)
	if err != nil {
		logger.Fatal("Failed to initialize simulated source: %v", err)
	}
	logger.Debug("Simulated source ready (%s pattern, one frame every %s)", cfg.Source.Simulation.Pattern, sim.Interval())
	live, err := buildLiveSource(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize %s source: %v", cfg.Source.Kind, err)
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	notifier, err := buildNotifier(cfg, telegramClient)
	if err != nil {
		logger.Fatal("Failed to initialize notifications: %v", err)
	}

	mon, err := monitor.New(monitorConfig(cfg), monitor.Deps{
		Live:      live,
		Simulated: sim,
		Store:     store,
		Notifier:  notifier,
		Settings:  &settings,
	})
	if err != nil {
		logger.Fatal("Failed to initialize monitor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("SIGHUP received, restarting monitor")
				if err := mon.Restart(ctx); err != nil {
					logger.Error("Restart failed: %v", err)
				}
			case syscall.SIGUSR1:
				logger.Info("SIGUSR1 received, calibrating baseline")
				go func() {
					if _, err := mon.Calibrate(ctx); err != nil {
						logger.Warn("Calibration failed: %v", err)
					}
				}()
			default:
				logger.Info("Shutdown signal received, cleaning up...")
				cancel()
				return
			}
		}
	}()

	dispatch := func(ctx context.Context, cmd control.Command) (string, error) {
		return control.Dispatch(ctx, mon, cmd)
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(mqttConfig(cfg, ""))
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker: %v", err)
		}
		defer client.Disconnect()
		logger.Info("Connected to MQTT broker %s", cfg.MQTT.Broker)

		if cfg.MQTT.CommandTopic != "" {
			err := client.Subscribe(cfg.MQTT.CommandTopic, byte(cfg.MQTT.QoS), func(topic string, payload []byte) error {
				cmd, err := control.ParseJSON(payload)
				if err != nil {
					return err
				}
				// Calibration blocks for the hold window; keep the MQTT router free.
				go func() {
					reply, err := dispatch(ctx, cmd)
					if err != nil {
						logger.Warn("MQTT command %s failed: %v", cmd.Name, err)
						return
					}
					logger.Info("MQTT command %s: %s", cmd.Name, reply)
				}()
				return nil
			})
			if err != nil {
				logger.Fatal("Failed to subscribe to command topic: %v", err)
			}
		}
		go publishState(ctx, client, mon, cfg.MQTT.StateTopic, byte(cfg.MQTT.QoS), cfg.MQTT.PublishInterval)
	}

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, dispatch)
	}

	if err := mon.Start(ctx); err != nil {
		logger.Fatal("Failed to start monitor: %v", err)
	}
	logger.Info("Posture monitoring started (source: %s, sample rate: %.0f Hz, thresholds: poor %.1f°, warning %.1f°, roll %.1f°)",
		cfg.Source.Kind,
		cfg.Source.SampleRate,
		settings.Thresholds.PoorPosture,
		settings.Thresholds.Warning,
		settings.Thresholds.Roll,
	)

	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := mon.Close(); err != nil {
				logger.Error("Failed to close monitor: %v", err)
			}
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			snap := mon.Snapshot()
			logger.Info("Status: %s, posture %s, session %s, poor posture %d%%, %d alerts",
				snap.ConnectionStatus,
				snap.PostureState.Kind,
				snap.TotalSessionTime.Round(time.Second),
				snap.PoorPosturePercentage,
				snap.AlertCount,
			)
		}
	}
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		FilterAlpha:        cfg.Engine.FilterAlpha,
		EscalationDelay:    cfg.Engine.EscalationDelay,
		AlertCooldown:      cfg.Engine.AlertCooldown,
		HistorySize:        cfg.Engine.HistorySize,
		CalibrationHold:    cfg.Engine.CalibrationHold,
		CalibrationSamples: cfg.Engine.CalibrationSamples,
		ConnectGrace:       cfg.Engine.ConnectGrace,
		RestartDelay:       cfg.Engine.RestartDelay,
		NotifyTimeout:      cfg.Engine.NotifyTimeout,
	}
}

func mqttConfig(cfg *config.Config, suffix string) mqtt.Config {
	return mqtt.Config{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID + suffix,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Timeout:  cfg.MQTT.Timeout,
	}
}

// buildLiveSource returns the configured physical sensor, or nil for simulation only.
func buildLiveSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Kind {
	case "mqtt":
		return source.NewMQTTSource(
			source.DialConfig(mqttConfig(cfg, "-sensor")),
			cfg.MQTT.SampleTopic,
			byte(cfg.MQTT.QoS),
			cfg.MQTT.Radians,
		), nil
	case "serial":
		s := cfg.Source.Serial
		return source.NewSerialSource(s.Port, source.PortOptions{
			BaudRate: s.BaudRate,
			DataBits: s.DataBits,
			StopBits: s.StopBits,
			Parity:   s.Parity,
		}, s.Radians, nil)
	default:
		return nil, nil
	}
}

func buildNotifier(cfg *config.Config, telegramClient *telegram.Client) (monitor.Notifier, error) {
	var notifiers notify.Multi
	if cfg.Notify.Sound.Enabled {
		sound, err := notify.NewSound(cfg.Notify.Sound.Command, nil)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, sound)
	}
	if w := cfg.Notify.Webhook; w.Enabled {
		notifiers = append(notifiers, notify.NewWebhook(w.URL, w.Timeout, w.MaxRetries, w.RetryDelay))
	}
	if telegramClient != nil {
		notifiers = append(notifiers, telegramClient)
	}
	if len(notifiers) == 0 {
		logger.Debug("No alert notifiers configured")
		return nil, nil
	}
	return notifiers, nil
}

// logPreviousSession reports the last recorded session on startup.
func logPreviousSession(store *storage.Storage) {
	sessions, err := store.GetRecentSessions(1)
	if err != nil {
		logger.Warn("Failed to read session history: %v", err)
		return
	}
	if len(sessions) == 0 {
		logger.Info("No previous sessions recorded")
		return
	}
	last := sessions[0]
	alerts, err := store.CountAlerts(last.ID)
	if err != nil {
		logger.Warn("Failed to count alerts for session %s: %v", last.ID, err)
	}
	logger.Info("Previous session %s: %s total, %d%% poor posture, %d escalations, %d alerts sent",
		last.ID, last.TotalTime.Round(time.Second), last.PoorPosturePercentage, last.AlertCount, alerts)

	recent, err := store.GetRecentAlerts(1)
	if err == nil && len(recent) > 0 {
		logger.Info("Last alert at %s (pitch %.1f°)", recent[0].DetectedAt.Format(time.RFC3339), recent[0].Pitch)
	}
}

func publishState(ctx context.Context, client *mqtt.Client, mon *monitor.Monitor, topic string, qos byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !client.IsConnected() {
				continue
			}
			snap := mon.Snapshot()
			payload, err := snap.JSON()
			if err != nil {
				logger.Warn("Failed to encode state: %v", err)
				continue
			}
			if err := client.Publish(topic, qos, true, payload); err != nil {
				logger.Debug("Failed to publish state: %v", err)
			}
		}
	}
}
