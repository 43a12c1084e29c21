// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/grpc"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/config"
	"github.com/relabs-tech/inertial_activity/internal/gnss"
	"github.com/relabs-tech/inertial_activity/internal/imu"
	"github.com/relabs-tech/inertial_activity/internal/mqtttest"
	"github.com/relabs-tech/inertial_activity/internal/paramstore"
	"github.com/relabs-tech/inertial_activity/internal/pipeline"
	"github.com/relabs-tech/inertial_activity/internal/publish"
	"github.com/relabs-tech/inertial_activity/internal/sensors"
	"github.com/relabs-tech/inertial_activity/internal/triaxial"
)

const testWindow = 4

// walkingLoader serves a single model that always answers Walking.
type walkingLoader struct{}

func (walkingLoader) Load(_ context.Context, model string, acc classifier.Accelerator) (classifier.Classifier, error) {
	if model != "activity" {
		return nil, classifier.ErrModelNotFound
	}
	if acc == classifier.ANE {
		return nil, classifier.ErrAcceleratorUnavailable
	}
	return walkingClassifier{}, nil
}

type walkingClassifier struct{}

func (walkingClassifier) Classify(_ context.Context, m *mat.Dense) ([]classifier.Prediction, error) {
	if err := classifier.CheckShape(m, testWindow, channel.Count); err != nil {
		return nil, err
	}
	return classifier.Rank([]float64{0, 0.1, 0.8, 0.1, 0, 0, 0, 0, 0})
}

func startClassifier(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := grpc.NewServer()
	classifier.RegisterServer(s, walkingLoader{})
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	return lis.Addr().String()
}

func writeParams(t *testing.T, dir string, length int) {
	t.Helper()
	ones := make([]float64, length)
	zeros := make([]float64, length)
	for i := range ones {
		ones[i] = 1
	}
	for _, c := range channel.Order {
		data, err := json.Marshal(map[string][]float64{"lambdas": ones, "scales": ones, "means": zeros})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, c.ParamsName()+".json"), data, 0o644))
	}
}

func testConfig(t *testing.T, extra map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeParams(t, dir, testWindow)
	values := map[string]string{
		"SENSOR_SOURCE":   "mock",
		"PARAMS_DIR":      dir,
		"CLASSIFIER_ADDR": startClassifier(t),
		"WINDOW_LENGTH":   fmt.Sprint(testWindow),
	}
	for k, v := range extra {
		values[k] = v
	}
	cfg, err := config.FromMap(values)
	require.NoError(t, err)
	return cfg
}

func TestAssembleEndToEnd(t *testing.T) {
	broker := mqtttest.StartBroker(t)
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	cfg := testConfig(t, map[string]string{
		"MQTT_BROKER":       broker,
		"TOPIC_PREDICTIONS": "test/predictions",
		"JOURNAL_DB":        journalPath,
	})

	ctx := context.Background()
	rt, err := Assemble(ctx, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	orch := rt.Orchestrator
	require.NoError(t, orch.Load(ctx, "activity", classifier.CPU))

	for i := 0; i < testWindow; i++ {
		orch.SampleTick()
	}
	require.NoError(t, orch.InferTick(ctx))

	report, ok := orch.Latest()
	require.True(t, ok)
	top, _ := report.Top()
	assert.Equal(t, classifier.Walking, top.Label)

	// journal
	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=10", nil)
	w := httptest.NewRecorder()
	rt.Server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var history []pipeline.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, report.ID, history[0].ID)

	// retained MQTT report
	sub := mqtttest.Connect(t, broker, "assemble-sub")
	got := make(chan pipeline.Report, 1)
	token := sub.Subscribe("test/predictions", 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r pipeline.Report
		if json.Unmarshal(msg.Payload(), &r) == nil {
			select {
			case got <- r:
			default:
			}
		}
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	select {
	case r := <-got:
		assert.Equal(t, report.ID, r.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no retained report")
	}

	// metrics
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	rt.Server.Handler().ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `activity_inference_ticks_total{outcome="ok"} 1`)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAssembleRejectsUnknownAccelerator(t *testing.T) {
	cfg := testConfig(t, nil)
	rt, err := Assemble(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	err = rt.Orchestrator.Load(context.Background(), "activity", classifier.ANE)
	require.ErrorIs(t, err, classifier.ErrAcceleratorUnavailable)
	_, _, loaded := rt.Orchestrator.Active()
	assert.False(t, loaded)
}

func TestAssembleMissingParams(t *testing.T) {
	cfg := testConfig(t, map[string]string{"PARAMS_DIR": t.TempDir()})
	_, err := Assemble(context.Background(), cfg, zap.NewNop().Sugar())
	require.ErrorIs(t, err, paramstore.ErrNotFound)
}

func TestAssembleParamsLengthMismatch(t *testing.T) {
	cfg := testConfig(t, map[string]string{"WINDOW_LENGTH": "8"})
	_, err := Assemble(context.Background(), cfg, zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestImportParams(t *testing.T) {
	dir := t.TempDir()
	writeParams(t, dir, testWindow)
	dbPath := filepath.Join(t.TempDir(), "params.db")

	require.NoError(t, ImportParams(context.Background(), dir, dbPath, zap.NewNop().Sugar()))

	store, err := paramstore.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	p, err := store.Load(context.Background(), channel.GyrMag)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1}, p.Lambdas)
	assert.Equal(t, []float64{0, 0, 0, 0}, p.Means)

	// the imported store drives the pipeline
	cfg := testConfig(t, map[string]string{"PARAMS_DB": dbPath, "PARAMS_DIR": ""})
	rt, err := Assemble(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, rt.Close())
}

func TestImportParamsMissingDir(t *testing.T) {
	err := ImportParams(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "p.db"), zap.NewNop().Sugar())
	require.ErrorIs(t, err, paramstore.ErrNotFound)
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestRunConsole(t *testing.T) {
	broker := mqtttest.StartBroker(t)
	out := &lockedBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunConsole(ctx, ConsoleOptions{
			Broker:           broker,
			ClientID:         "console-test",
			TopicPredictions: "test/predictions",
			TopicIMU:         "test/imu",
			Out:              out,
			Log:              zap.NewNop().Sugar(),
		})
	}()

	pub := publish.NewMQTT(mqtttest.Connect(t, broker, "console-pub"), "test/predictions")
	report := pipeline.Report{
		ID:          uuid.New(),
		At:          time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC),
		Model:       "activity",
		Accelerator: classifier.GPU,
		Predictions: []classifier.Prediction{{Label: classifier.Bike, Confidence: 0.75}},
	}
	require.Eventually(t, func() bool {
		_ = pub.Publish(context.Background(), report)
		return strings.Contains(out.String(), "Bike= 75.0%")
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("console did not stop")
	}
}

func TestFormatReport(t *testing.T) {
	r := pipeline.Report{
		At:          time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC),
		Model:       "activity",
		Accelerator: classifier.CPU,
		Predictions: []classifier.Prediction{
			{Label: classifier.Walking, Confidence: 0.9},
			{Label: classifier.Still, Confidence: 0.1},
		},
		Fix: &gnss.Fix{Latitude: 51.5, Longitude: -0.7, SpeedKnots: 2},
	}
	assert.Equal(t,
		"[ACT ] 08:30:00.000 activity/CPU  Walking= 90.0%  Still= 10.0%  lat=51.500000 lon=-0.700000 speed=2.0kn",
		FormatReport(r))
}

type fixedSampleSource struct{ s imu.Sample }

func (f fixedSampleSource) Next() (imu.Sample, error) { return f.s, nil }

func TestPublishSamplesFeedsMQTTSource(t *testing.T) {
	broker := mqtttest.StartBroker(t)
	log := zap.NewNop().Sugar()

	src, err := sensors.NewMQTTSource(mqtttest.Connect(t, broker, "imu-sub"), "test/imu", time.Second, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	want := imu.Sample{
		Time: time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC),
		Readings: map[channel.Channel]triaxial.Vec3{
			channel.AccMag: {X: 0.1, Y: -0.2, Z: 9.8},
			channel.MagMag: {X: 22, Y: -4, Z: 41},
			channel.GyrMag: {X: 0.01, Y: 0.02, Z: -0.03},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- PublishSamples(ctx, mqtttest.Connect(t, broker, "imu-pub"), "test/imu", "mock",
			fixedSampleSource{s: want}, 10*time.Millisecond, log)
	}()

	var got imu.Sample
	require.Eventually(t, func() bool {
		s, err := src.Next()
		if err != nil {
			return false
		}
		got = s
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, want.Time.Equal(got.Time))
	assert.Equal(t, want.Readings, got.Readings)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
	}
}

func TestPublishSamplesRejectsZeroInterval(t *testing.T) {
	err := PublishSamples(context.Background(), nil, "test/imu", "mock", fixedSampleSource{}, 0, zap.NewNop().Sugar())
	require.Error(t, err)
}
