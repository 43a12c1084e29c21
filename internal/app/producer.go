// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/imu"
	"github.com/relabs-tech/inertial_activity/internal/publish"
	"github.com/relabs-tech/inertial_activity/internal/sensors"
)

// ProducerOptions configure RunMockProducer.
type ProducerOptions struct {
	Broker   string
	ClientID string
	TopicIMU string
	Interval time.Duration
	Log      *zap.SugaredLogger
}

// RunMockProducer publishes the mock gait signal as IMURaw JSON on TopicIMU,
// so a pipeline configured with SENSOR_SOURCE=mqtt can run without hardware.
func RunMockProducer(ctx context.Context, opts ProducerOptions) error {
	client, err := publish.Connect(opts.Broker, opts.ClientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	opts.Log.Infow("producer: connected to MQTT broker, starting publish loop",
		"broker", opts.Broker, "topic", opts.TopicIMU, "interval", opts.Interval)

	return PublishSamples(ctx, client, opts.TopicIMU, "mock", sensors.NewMockSource(), opts.Interval, opts.Log)
}

// PublishSamples reads src every interval and publishes each sample, tagged
// with name, on topic until ctx is done. Stale reads are skipped.
func PublishSamples(ctx context.Context, client mqtt.Client, topic, name string, src imu.Source, interval time.Duration, log *zap.SugaredLogger) error {
	if interval <= 0 {
		return fmt.Errorf("producer: interval must be > 0, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		s, err := src.Next()
		if err != nil {
			log.Debugw("producer: sample skipped", "err", err)
			continue
		}
		payload, err := json.Marshal(imu.FromSample(name, s))
		if err != nil {
			return fmt.Errorf("json marshal error (imu): %w", err)
		}
		token := client.Publish(topic, 0, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Warnw("producer: publish failed", "topic", topic, "err", err)
		}
	}
}
