// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package publish delivers prediction reports to the MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

// Connect opens a paho client to broker.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// MQTT publishes every report, retained, so late subscribers see the
// current activity immediately.
type MQTT struct {
	client mqtt.Client
	topic  string
}

// NewMQTT publishes on topic through client.
func NewMQTT(client mqtt.Client, topic string) *MQTT {
	return &MQTT{client: client, topic: topic}
}

// Name implements pipeline.Observer.
func (m *MQTT) Name() string { return "mqtt" }

// Publish implements pipeline.Observer.
func (m *MQTT) Publish(ctx context.Context, r pipeline.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("json marshal error (report): %w", err)
	}
	token := m.client.Publish(m.topic, 0, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", m.topic, err)
	}
	return nil
}
