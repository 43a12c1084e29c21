// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_activity/internal/classifier"
)

func minimal() map[string]string {
	return map[string]string{
		"SENSOR_SOURCE":   "mock",
		"PARAMS_DIR":      "params",
		"CLASSIFIER_ADDR": "localhost:50051",
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load("testdata/activity_config.txt")
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, SourceMPU9250, cfg.SensorSource)
	assert.Equal(t, "counts", cfg.SourceUnits)
	assert.Equal(t, byte(1), cfg.IMUAccelRange)
	assert.Equal(t, byte(2), cfg.IMUGyroRange)
	assert.Equal(t, uint16(0x1E), cfg.MagI2CAddr)
	assert.Equal(t, 10*time.Millisecond, cfg.SampleInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.InferenceInterval)
	assert.Equal(t, 500, cfg.WindowLength)
	assert.Equal(t, 5, cfg.MovingAveragePeriod)
	assert.Equal(t, classifier.GPU, cfg.ClassifierAccelerator)
	assert.Equal(t, uint16(0x3D), cfg.DisplayI2CAddr)
	assert.Equal(t, "inertial-activity", cfg.MQTTClientID, "default kept")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("SENSOR_SOURCE", "mock")
	t.Setenv("WINDOW_LENGTH", "250")

	cfg, err := Load("testdata/activity_config.txt")
	require.NoError(t, err)
	assert.Equal(t, SourceMock, cfg.SensorSource)
	assert.Equal(t, "si", cfg.SourceUnits)
	assert.Equal(t, 250, cfg.WindowLength)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/nope.txt")
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg, err := FromMap(minimal())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, cfg.SampleInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.InferenceInterval)
	assert.Equal(t, 500, cfg.WindowLength)
	assert.Equal(t, 0, cfg.MovingAveragePeriod)
	assert.Equal(t, classifier.CPU, cfg.ClassifierAccelerator)
	assert.Equal(t, ":8080", cfg.WebAddr())
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"IMU_ACCEL_RANGE":        "4",
		"IMU_GYRO_RANGE":         "x",
		"SENSOR_SOURCE":          "bluetooth",
		"SOURCE_UNITS":           "furlongs",
		"SAMPLE_INTERVAL":        "0",
		"WINDOW_LENGTH":          "-1",
		"MOVING_AVERAGE_PERIOD":  "-2",
		"CLASSIFIER_ACCELERATOR": "TPU",
		"DISPLAY_I2C_ADDR":       "0x100",
		"WEB_SERVER_PORT":        "70000",
		"NOT_A_KEY":              "1",
	}
	for key, value := range cases {
		values := minimal()
		values[key] = value
		_, err := FromMap(values)
		assert.Error(t, err, "%s=%s", key, value)
	}
}

func TestValidate(t *testing.T) {
	cases := []map[string]string{
		{"SENSOR_SOURCE": "mpu9250"},
		{"SENSOR_SOURCE": "mqtt", "MQTT_BROKER": ""},
		{"SENSOR_SOURCE": "serial"},
		{"SOURCE_UNITS": "counts"},
		{"PARAMS_DIR": ""},
		{"CLASSIFIER_ADDR": ""},
		{"WINDOW_LENGTH": "10", "MOVING_AVERAGE_PERIOD": "10"},
		{"SAMPLE_INTERVAL": "1s", "INFERENCE_INTERVAL": "500ms"},
	}
	for _, overrides := range cases {
		values := minimal()
		for k, v := range overrides {
			values[k] = v
		}
		_, err := FromMap(values)
		assert.Error(t, err, "%v", overrides)
	}

	values := minimal()
	values["SENSOR_SOURCE"] = "mqtt"
	values["MQTT_BROKER"] = "tcp://broker:1883"
	_, err := FromMap(values)
	assert.NoError(t, err)
}
