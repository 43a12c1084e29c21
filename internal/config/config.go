// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

// Sensor sources.
const (
	SourceMPU9250 = "mpu9250"
	SourceMQTT    = "mqtt"
	SourceSerial  = "serial"
	SourceMock    = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker       string
	MQTTClientID     string
	TopicPredictions string
	TopicIMU         string

	// Sensor source
	SensorSource     string // mpu9250, mqtt, serial or mock
	SourceUnits      string // counts, g or si
	SourceStaleAfter time.Duration

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte
	MagI2CBus    string
	MagI2CAddr   uint16

	// Serial IMU stream
	IMUSerialPort string
	IMUSerialBaud int

	// Pipeline
	SampleInterval      time.Duration
	InferenceInterval   time.Duration
	WindowLength        int
	MovingAveragePeriod int // 0 disables the moving average

	// Preprocessing parameters: PARAMS_DB wins over PARAMS_DIR
	ParamsDir string
	ParamsDB  string

	// Classifier service
	ClassifierAddr        string
	ClassifierModel       string
	ClassifierAccelerator classifier.Accelerator
	ClassifierTimeout     time.Duration

	// Web Server
	WebServerPort int

	// Optional observers and companions; empty disables them
	JournalDB      string
	GNSSSerialPort string
	GNSSBaudRate   int
	DisplayI2CBus  string
	DisplayI2CAddr uint16

	LogLevel string
}

// Default returns the configuration used for keys absent from the file and
// the environment.
func Default() *Config {
	return &Config{
		MQTTClientID:          "inertial-activity",
		TopicPredictions:      "inertial/activity/predictions",
		TopicIMU:              "inertial/imu",
		SensorSource:          SourceMPU9250,
		SourceStaleAfter:      100 * time.Millisecond,
		IMUSerialBaud:         115200,
		SampleInterval:        pipeline.DefaultSampleInterval,
		InferenceInterval:     pipeline.DefaultInferenceInterval,
		WindowLength:          pipeline.DefaultWindowLength,
		ClassifierModel:       "activity",
		ClassifierAccelerator: classifier.CPU,
		ClassifierTimeout:     10 * time.Second,
		WebServerPort:         8080,
		GNSSBaudRate:          9600,
		DisplayI2CAddr:        0x3C,
		LogLevel:              "info",
	}
}

// Load reads the KEY=VALUE configuration file at path. Environment variables
// with the same names override the file. A missing file is not an error when
// path is empty.
func Load(path string) (*Config, error) {
	values := map[string]string{}
	if path != "" {
		read, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		values = read
	}
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok {
			values[key] = v
		}
	}
	return FromMap(values)
}

// FromMap applies values over Default and validates the result.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, key := range names {
		if err := cfg.setValue(key, strings.TrimSpace(values[key])); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if cfg.SourceUnits == "" {
		cfg.SourceUnits = "si"
		if cfg.SensorSource == SourceMPU9250 {
			cfg.SourceUnits = "counts"
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

var keys = []string{
	"MQTT_BROKER", "MQTT_CLIENT_ID", "TOPIC_PREDICTIONS", "TOPIC_IMU",
	"SENSOR_SOURCE", "SOURCE_UNITS", "SOURCE_STALE_AFTER",
	"IMU_SPI_DEVICE", "IMU_CS_PIN", "IMU_ACCEL_RANGE", "IMU_GYRO_RANGE",
	"MAG_I2C_BUS", "MAG_I2C_ADDR", "IMU_SERIAL_PORT", "IMU_SERIAL_BAUD",
	"SAMPLE_INTERVAL", "INFERENCE_INTERVAL", "WINDOW_LENGTH", "MOVING_AVERAGE_PERIOD",
	"PARAMS_DIR", "PARAMS_DB",
	"CLASSIFIER_ADDR", "CLASSIFIER_MODEL", "CLASSIFIER_ACCELERATOR", "CLASSIFIER_TIMEOUT",
	"WEB_SERVER_PORT", "JOURNAL_DB", "GNSS_SERIAL_PORT", "GNSS_BAUD_RATE",
	"DISPLAY_I2C_BUS", "DISPLAY_I2C_ADDR", "LOG_LEVEL",
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_PREDICTIONS":
		c.TopicPredictions = value
	case "TOPIC_IMU":
		c.TopicIMU = value

	// Sensor source
	case "SENSOR_SOURCE":
		switch value {
		case SourceMPU9250, SourceMQTT, SourceSerial, SourceMock:
			c.SensorSource = value
		default:
			return fmt.Errorf("SENSOR_SOURCE must be mpu9250, mqtt, serial or mock, got %q", value)
		}
	case "SOURCE_UNITS":
		switch value {
		case "counts", "g", "si":
			c.SourceUnits = value
		default:
			return fmt.Errorf("SOURCE_UNITS must be counts, g or si, got %q", value)
		}
	case "SOURCE_STALE_AFTER":
		c.SourceStaleAfter, err = parseInterval(key, value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "MAG_I2C_BUS":
		c.MagI2CBus = value
	case "MAG_I2C_ADDR":
		c.MagI2CAddr, err = parseAddr(key, value)

	// Serial IMU stream
	case "IMU_SERIAL_PORT":
		c.IMUSerialPort = value
	case "IMU_SERIAL_BAUD":
		c.IMUSerialBaud, err = parsePositive(key, value)

	// Pipeline
	case "SAMPLE_INTERVAL":
		c.SampleInterval, err = parseInterval(key, value)
	case "INFERENCE_INTERVAL":
		c.InferenceInterval, err = parseInterval(key, value)
	case "WINDOW_LENGTH":
		c.WindowLength, err = parsePositive(key, value)
	case "MOVING_AVERAGE_PERIOD":
		period, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MOVING_AVERAGE_PERIOD %q: %w", value, err)
		}
		if period < 0 {
			return fmt.Errorf("MOVING_AVERAGE_PERIOD must be >= 0, got %d", period)
		}
		c.MovingAveragePeriod = period

	// Preprocessing parameters
	case "PARAMS_DIR":
		c.ParamsDir = value
	case "PARAMS_DB":
		c.ParamsDB = value

	// Classifier service
	case "CLASSIFIER_ADDR":
		c.ClassifierAddr = value
	case "CLASSIFIER_MODEL":
		c.ClassifierModel = value
	case "CLASSIFIER_ACCELERATOR":
		acc, err := classifier.ParseAccelerator(value)
		if err != nil {
			return fmt.Errorf("invalid CLASSIFIER_ACCELERATOR: %w", err)
		}
		c.ClassifierAccelerator = acc
	case "CLASSIFIER_TIMEOUT":
		c.ClassifierTimeout, err = parseInterval(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", port)
		}
		c.WebServerPort = port

	// Optional observers
	case "JOURNAL_DB":
		c.JournalDB = value
	case "GNSS_SERIAL_PORT":
		c.GNSSSerialPort = value
	case "GNSS_BAUD_RATE":
		c.GNSSBaudRate, err = parsePositive(key, value)
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		c.DisplayI2CAddr, err = parseAddr(key, value)

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// parseInterval accepts a Go duration ("250ms") or a bare number of
// milliseconds.
func parseInterval(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		ms, convErr := strconv.Atoi(value)
		if convErr != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func parsePositive(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func parseAddr(key, value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if addr > 0x7F {
		return 0, fmt.Errorf("%s must be a 7-bit address, got %#x", key, addr)
	}
	return uint16(addr), nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	switch c.SensorSource {
	case SourceMPU9250:
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required for SENSOR_SOURCE=mpu9250")
		}
		if c.IMUCSPin == "" {
			return fmt.Errorf("IMU_CS_PIN is required for SENSOR_SOURCE=mpu9250")
		}
		// Every channel must fill its window before inference can run.
		if c.MagI2CBus == "" || c.MagI2CAddr == 0 {
			return fmt.Errorf("MAG_I2C_BUS and MAG_I2C_ADDR are required for SENSOR_SOURCE=mpu9250")
		}
	case SourceMQTT:
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required for SENSOR_SOURCE=mqtt")
		}
		if c.TopicIMU == "" {
			return fmt.Errorf("TOPIC_IMU is required for SENSOR_SOURCE=mqtt")
		}
	case SourceSerial:
		if c.IMUSerialPort == "" {
			return fmt.Errorf("IMU_SERIAL_PORT is required for SENSOR_SOURCE=serial")
		}
	}
	if c.SourceUnits == "counts" && c.SensorSource == SourceMock {
		return fmt.Errorf("SOURCE_UNITS=counts is not supported by SENSOR_SOURCE=%s", c.SensorSource)
	}
	if c.ParamsDir == "" && c.ParamsDB == "" {
		return fmt.Errorf("PARAMS_DIR or PARAMS_DB is required")
	}
	if c.ClassifierAddr == "" {
		return fmt.Errorf("CLASSIFIER_ADDR is required")
	}
	if c.ClassifierModel == "" {
		return fmt.Errorf("CLASSIFIER_MODEL is required")
	}
	if c.MovingAveragePeriod >= c.WindowLength {
		return fmt.Errorf("MOVING_AVERAGE_PERIOD (%d) must be smaller than WINDOW_LENGTH (%d)",
			c.MovingAveragePeriod, c.WindowLength)
	}
	if c.InferenceInterval < c.SampleInterval {
		return fmt.Errorf("INFERENCE_INTERVAL (%s) must not be shorter than SAMPLE_INTERVAL (%s)",
			c.InferenceInterval, c.SampleInterval)
	}
	return nil
}

// WebAddr is the listen address of the web server.
func (c *Config) WebAddr() string {
	return ":" + strconv.Itoa(c.WebServerPort)
}
