// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// activity samples an MPU9250 (or a stand-in source), keeps per-channel
// magnitude windows and classifies the wearer's activity twice a second.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/inertial_activity/internal/app"
	"github.com/relabs-tech/inertial_activity/internal/config"
	"github.com/relabs-tech/inertial_activity/internal/logging"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "activity",
		Short:        "Inertial activity recognition pipeline",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(runCmd(), consoleCmd(), mockIMUCmd(), paramsCmd())

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sample, classify and publish until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			return app.RunPipeline(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "activity_config.txt", "KEY=VALUE configuration file")
	return cmd
}

func consoleCmd() *cobra.Command {
	opts := app.ConsoleOptions{}
	var level string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Print published predictions from the MQTT broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log, err := logging.New(level)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			opts.Out = cmd.OutOrStdout()
			opts.Log = log
			return app.RunConsole(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	cmd.Flags().StringVar(&opts.ClientID, "client-id", "inertial-activity-console", "MQTT client id")
	cmd.Flags().StringVar(&opts.TopicPredictions, "topic", "inertial/activity/predictions", "predictions topic")
	cmd.Flags().StringVar(&opts.TopicIMU, "imu-topic", "", "also print raw samples from this topic")
	cmd.Flags().StringVar(&level, "log-level", "info", "debug, info, warn or error")
	return cmd
}

func mockIMUCmd() *cobra.Command {
	opts := app.ProducerOptions{}
	var level string
	cmd := &cobra.Command{
		Use:   "mock-imu",
		Short: "Publish a synthetic gait signal on the IMU topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			log, err := logging.New(level)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			opts.Log = log
			return app.RunMockProducer(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	cmd.Flags().StringVar(&opts.ClientID, "client-id", "inertial-activity-mock-imu", "MQTT client id")
	cmd.Flags().StringVar(&opts.TopicIMU, "topic", "inertial/imu", "IMU topic")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 10*time.Millisecond, "publish interval")
	cmd.Flags().StringVar(&level, "log-level", "info", "debug, info, warn or error")
	return cmd
}

func paramsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Manage preprocessing parameters",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <dir> <db>",
		Short: "Copy <channel>.scaler.{json,yaml} files into a SQLite parameter store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New("info")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return app.ImportParams(cmd.Context(), args[0], args[1], log)
		},
	})
	return cmd
}
