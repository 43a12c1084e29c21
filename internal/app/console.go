// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/imu"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
	"github.com/relabs-tech/inertial_activity/internal/publish"
)

// ConsoleOptions configure RunConsole. TopicIMU is optional.
type ConsoleOptions struct {
	Broker           string
	ClientID         string
	TopicPredictions string
	TopicIMU         string
	Out              io.Writer
	Log              *zap.SugaredLogger
}

// RunConsole prints every published report (and raw IMU samples when
// TopicIMU is set) until ctx is done.
func RunConsole(ctx context.Context, opts ConsoleOptions) error {
	client, err := publish.Connect(opts.Broker, opts.ClientID)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	opts.Log.Infow("console: connected to MQTT broker", "broker", opts.Broker)

	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(opts.Out, format, args...)
	}

	// Subscribe to predictions
	predToken := client.Subscribe(opts.TopicPredictions, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r pipeline.Report
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			opts.Log.Warnw("console: report unmarshal error", "err", err)
			return
		}
		printf("%s\n", FormatReport(r))
	})
	predToken.Wait()
	if predToken.Error() != nil {
		return predToken.Error()
	}
	opts.Log.Infow("console: subscribed", "topic", opts.TopicPredictions)

	// Subscribe to IMU
	if opts.TopicIMU != "" {
		imuToken := client.Subscribe(opts.TopicIMU, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var s imu.IMURaw
			if err := json.Unmarshal(msg.Payload(), &s); err != nil {
				opts.Log.Warnw("console: imu unmarshal error", "err", err)
				return
			}
			printf(
				"[IMU ] ax=%8.3f ay=%8.3f az=%8.3f  gx=%8.3f gy=%8.3f gz=%8.3f  mx=%8.3f my=%8.3f mz=%8.3f\n",
				s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.Mx, s.My, s.Mz,
			)
		})
		imuToken.Wait()
		if imuToken.Error() != nil {
			return imuToken.Error()
		}
		opts.Log.Infow("console: subscribed", "topic", opts.TopicIMU)
	}

	<-ctx.Done()
	opts.Log.Infow("console: shutting down")
	return nil
}

// FormatReport renders a report as one console line: every label with its
// confidence, most likely first, then the fix when present.
func FormatReport(r pipeline.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ACT ] %s %s/%s", r.At.Format("15:04:05.000"), r.Model, r.Accelerator)
	for _, p := range r.Predictions {
		fmt.Fprintf(&b, "  %s=%5.1f%%", p.Label, p.Confidence*100)
	}
	if r.Fix != nil {
		fmt.Fprintf(&b, "  lat=%.6f lon=%.6f speed=%.1fkn", r.Fix.Latitude, r.Fix.Longitude, r.Fix.SpeedKnots)
	}
	return b.String()
}
