// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/imu"
)

// MQTTSource consumes IMURaw JSON published by a remote inertial producer.
// Only the newest message is kept; the sampler sees each one once.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	last   *latest
	log    *zap.SugaredLogger
}

// NewMQTTSource subscribes to topic on an already connected client.
func NewMQTTSource(client mqtt.Client, topic string, staleAfter time.Duration, log *zap.SugaredLogger) (*MQTTSource, error) {
	s := &MQTTSource{
		client: client,
		topic:  topic,
		last:   newLatest(staleAfter),
		log:    log,
	}
	token := client.Subscribe(topic, 0, s.onMessage)
	if !token.WaitTimeout(5*time.Second) {
		return nil, fmt.Errorf("mqtt subscribe %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	log.Infow("sensors: subscribed to IMU topic", "topic", topic)
	return s, nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw imu.IMURaw
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Debugw("sensors: bad IMU payload", "topic", msg.Topic(), "err", err)
		return
	}
	s.last.put(raw.Sample(time.Now()))
}

// Next returns the newest unseen sample.
func (s *MQTTSource) Next() (imu.Sample, error) {
	return s.last.take()
}

// Close unsubscribes. The client stays connected.
func (s *MQTTSource) Close() error {
	token := s.client.Unsubscribe(s.topic)
	token.WaitTimeout(2 * time.Second)
	return token.Error()
}
