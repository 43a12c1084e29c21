// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/config"
	"github.com/relabs-tech/inertial_activity/internal/display"
	"github.com/relabs-tech/inertial_activity/internal/gnss"
	"github.com/relabs-tech/inertial_activity/internal/imu"
	"github.com/relabs-tech/inertial_activity/internal/journal"
	"github.com/relabs-tech/inertial_activity/internal/metrics"
	"github.com/relabs-tech/inertial_activity/internal/paramstore"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
	"github.com/relabs-tech/inertial_activity/internal/preprocess"
	"github.com/relabs-tech/inertial_activity/internal/publish"
	"github.com/relabs-tech/inertial_activity/internal/sensors"
	"github.com/relabs-tech/inertial_activity/internal/web"
)

// Runtime is an assembled pipeline with every configured companion. Close
// releases everything Assemble opened.
type Runtime struct {
	Orchestrator *pipeline.Orchestrator
	Server       *web.Server
	Registry     *prometheus.Registry

	cfg        *config.Config
	log        *zap.SugaredLogger
	mqtt       mqtt.Client
	closers    []func() error
	background []func(ctx context.Context) error
}

// Assemble builds the pipeline described by cfg. Background readers (serial
// streams, GNSS) are started by Start, not here.
func Assemble(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (rt *Runtime, err error) {
	rt = &Runtime{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	source, err := rt.openSource()
	if err != nil {
		return rt, err
	}

	registry, err := rt.buildRegistry(ctx)
	if err != nil {
		return rt, err
	}

	loader, err := classifier.Dial(cfg.ClassifierAddr, cfg.WindowLength, channel.Count)
	if err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, loader.Close)

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := pipeline.Options{
		SampleInterval:    cfg.SampleInterval,
		InferenceInterval: cfg.InferenceInterval,
		Metrics:           metrics.NewPipeline(rt.Registry),
		Log:               log,
	}
	if cfg.GNSSSerialPort != "" {
		port, err := gnss.Open(cfg.GNSSSerialPort, uint(cfg.GNSSBaudRate))
		if err != nil {
			return rt, err
		}
		rt.closers = append(rt.closers, port.Close)
		tracker := gnss.NewTracker(log)
		rt.background = append(rt.background, func(ctx context.Context) error {
			return tracker.Consume(ctx, port)
		})
		opts.Fixes = tracker
		log.Infow("app: GNSS enabled", "port", cfg.GNSSSerialPort, "baud", cfg.GNSSBaudRate)
	}

	orch, err := pipeline.New(registry, source, loader, opts)
	if err != nil {
		return rt, err
	}
	rt.Orchestrator = orch

	if err := rt.attachObservers(ctx); err != nil {
		return rt, err
	}
	return rt, nil
}

func (rt *Runtime) client() (mqtt.Client, error) {
	if rt.mqtt != nil {
		return rt.mqtt, nil
	}
	client, err := publish.Connect(rt.cfg.MQTTBroker, rt.cfg.MQTTClientID)
	if err != nil {
		return nil, err
	}
	rt.log.Infow("app: connected to MQTT broker", "broker", rt.cfg.MQTTBroker)
	rt.mqtt = client
	rt.closers = append(rt.closers, func() error {
		client.Disconnect(250)
		return nil
	})
	return client, nil
}

func (rt *Runtime) openSource() (imu.Source, error) {
	cfg := rt.cfg
	switch cfg.SensorSource {
	case config.SourceMock:
		rt.log.Infow("app: using mock IMU source")
		return sensors.NewMockSource(), nil

	case config.SourceMPU9250:
		src, err := sensors.NewMPU9250Source(sensors.MPU9250Options{
			SPIDevice:  cfg.IMUSPIDevice,
			CSPin:      cfg.IMUCSPin,
			AccelRange: cfg.IMUAccelRange,
			GyroRange:  cfg.IMUGyroRange,
			MagBus:     cfg.MagI2CBus,
			MagAddr:    cfg.MagI2CAddr,
		}, rt.log)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, src.Close)
		return src, nil

	case config.SourceMQTT:
		client, err := rt.client()
		if err != nil {
			return nil, err
		}
		src, err := sensors.NewMQTTSource(client, cfg.TopicIMU, cfg.SourceStaleAfter, rt.log)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, src.Close)
		return src, nil

	case config.SourceSerial:
		port, err := sensors.OpenSerial(cfg.IMUSerialPort, uint(cfg.IMUSerialBaud))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, port.Close)
		src := sensors.NewSerialSource(port, cfg.SourceStaleAfter, rt.log)
		rt.background = append(rt.background, src.Run)
		return src, nil
	}
	return nil, fmt.Errorf("app: unknown sensor source %q", cfg.SensorSource)
}

func (rt *Runtime) buildRegistry(ctx context.Context) (*channel.Registry, error) {
	cfg := rt.cfg
	units, err := sensors.ParseUnits(cfg.SourceUnits)
	if err != nil {
		return nil, err
	}
	conventions, err := sensors.Conventions(units, cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		return nil, err
	}

	var store paramstore.Store
	if cfg.ParamsDB != "" {
		db, err := paramstore.Open(cfg.ParamsDB)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		store = db
	} else {
		store = paramstore.NewFileStore(cfg.ParamsDir)
	}
	params, err := paramstore.LoadAll(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("app: preprocessing parameters: %w", err)
	}

	specs := make(map[channel.Channel]channel.Spec, channel.Count)
	for _, c := range channel.Order {
		chain, err := preprocess.BuildChain(cfg.WindowLength, params[c], cfg.MovingAveragePeriod)
		if err != nil {
			return nil, fmt.Errorf("app: channel %s: %w", c, err)
		}
		specs[c] = channel.Spec{Chain: chain, Convention: conventions[c]}
	}
	return channel.NewRegistry(cfg.WindowLength, specs)
}

func (rt *Runtime) attachObservers(ctx context.Context) error {
	cfg := rt.cfg
	orch := rt.Orchestrator

	if cfg.MQTTBroker != "" {
		client, err := rt.client()
		if err != nil {
			return err
		}
		orch.Subscribe(publish.NewMQTT(client, cfg.TopicPredictions))
	}

	var history web.History
	if cfg.JournalDB != "" {
		j, err := journal.Open(cfg.JournalDB)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, j.Close)
		orch.Subscribe(j)
		history = j
	}

	if cfg.DisplayI2CBus != "" {
		dev, bus, err := display.OpenSSD1306(cfg.DisplayI2CBus, cfg.DisplayI2CAddr)
		if err != nil {
			rt.log.Warnw("app: display unavailable", "err", err)
		} else {
			rt.closers = append(rt.closers, bus.Close)
			oled, err := display.NewOLED(dev)
			if err != nil {
				rt.log.Warnw("app: display unavailable", "err", err)
			} else {
				orch.Subscribe(oled)
			}
		}
	}

	rt.Server = web.NewServer(orch, web.Options{
		BaseContext: ctx,
		History:     history,
		Gatherer:    rt.Registry,
		LoadTimeout: cfg.ClassifierTimeout,
		Log:         rt.log,
	})
	orch.Subscribe(rt.Server.Hub())
	return nil
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Start runs the background readers until ctx is done. The returned wait
// function blocks until they have all returned.
func (rt *Runtime) Start(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	for _, run := range rt.background {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				rt.log.Errorw("app: background reader stopped", "err", err)
			}
		}()
	}
	return wg.Wait
}

// RunPipeline assembles the pipeline, loads the configured classifier,
// starts sampling and inference and serves the web API until ctx is done.
func RunPipeline(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	log.Infow("starting inertial-activity pipeline",
		"source", cfg.SensorSource,
		"window", cfg.WindowLength,
		"sample_interval", cfg.SampleInterval,
		"inference_interval", cfg.InferenceInterval,
	)

	rt, err := Assemble(ctx, cfg, log)
	if err != nil {
		return err
	}

	readerCtx, stopReaders := context.WithCancel(ctx)
	wait := rt.Start(readerCtx)
	defer func() {
		// Closing the ports unblocks readers stuck in Read.
		stopReaders()
		if err := rt.Close(); err != nil {
			log.Warnw("app: close", "err", err)
		}
		wait()
	}()

	loadCtx, cancel := context.WithTimeout(ctx, cfg.ClassifierTimeout)
	err = rt.Orchestrator.Load(loadCtx, cfg.ClassifierModel, cfg.ClassifierAccelerator)
	cancel()
	if err != nil {
		// Inference stays idle until a classifier is loaded through the API.
		log.Errorw("app: initial classifier load failed", "err", err)
	}

	rt.Orchestrator.Run(ctx)
	defer rt.Orchestrator.Stop()

	return rt.Server.ListenAndServe(ctx, cfg.WebAddr())
}
