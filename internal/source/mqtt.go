package source

import (
	"context"
	"fmt"

	"github.com/rewired-gh/postureguard/internal/logger"
	"github.com/rewired-gh/postureguard/internal/mqtt"
)

// Subscriber is the part of the MQTT client the sample source needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

// DialFunc opens a broker connection for one run.
type DialFunc func() (Subscriber, error)

// MQTTSource reads samples published by the headset bridge on a topic.
type MQTTSource struct {
	dial    DialFunc
	topic   string
	qos     byte
	radians bool
}

// NewMQTTSource creates a source subscribing to topic on every Run.
func NewMQTTSource(dial DialFunc, topic string, qos byte, radians bool) *MQTTSource {
	return &MQTTSource{dial: dial, topic: topic, qos: qos, radians: radians}
}

// DialConfig returns a DialFunc connecting with cfg.
func DialConfig(cfg mqtt.Config) DialFunc {
	return func() (Subscriber, error) {
		return mqtt.Connect(cfg)
	}
}

func (m *MQTTSource) Name() string { return "mqtt:" + m.topic }

// Run subscribes and forwards decoded samples until ctx is cancelled.
func (m *MQTTSource) Run(ctx context.Context, sink Sink) error {
	client, err := m.dial()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer client.Disconnect()

	err = client.Subscribe(m.topic, m.qos, func(topic string, payload []byte) error {
		sample, err := Decode(payload, m.radians)
		if err != nil {
			return fmt.Errorf("decode sample: %w", err)
		}
		sink(sample)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	logger.Info("Subscribed to sensor topic %s", m.topic)

	<-ctx.Done()
	if err := client.Unsubscribe(m.topic); err != nil {
		logger.Debug("Unsubscribe from %s: %v", m.topic, err)
	}
	return nil
}
