// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pipeline drives sampling and inference on independent cadences.
//
// The sampler reads one sample per tick, reduces every tri-axial reading to
// its magnitude and pushes it into the channel's window. The inferer
// snapshots every window, runs the preprocessing chains, assembles the
// (window length x channels) feature matrix and hands it to the loaded
// classifier. Neither loop ever waits for the other: windows are only locked
// for a single push or copy, and the classifier and the latest report are
// swapped through atomic pointers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/inertial_activity/internal/channel"
	"github.com/relabs-tech/inertial_activity/internal/classifier"
	"github.com/relabs-tech/inertial_activity/internal/gnss"
	"github.com/relabs-tech/inertial_activity/internal/imu"
	"github.com/relabs-tech/inertial_activity/internal/metrics"
	"github.com/relabs-tech/inertial_activity/internal/triaxial"
)

// Cadence and window defaults.
const (
	DefaultSampleInterval    = 10 * time.Millisecond
	DefaultInferenceInterval = 500 * time.Millisecond
	DefaultWindowLength      = 500
)

// State is the scheduling state of an Orchestrator.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Report is the published result of one successful inference tick. Reports
// are immutable once published; callers must not modify Predictions.
type Report struct {
	ID          uuid.UUID               `json:"id"`
	At          time.Time               `json:"at"`
	Model       string                  `json:"model"`
	Accelerator classifier.Accelerator  `json:"accelerator"`
	Predictions []classifier.Prediction `json:"predictions"`
	Fix         *gnss.Fix               `json:"fix,omitempty"`
}

// Top returns the most confident prediction.
func (r Report) Top() (classifier.Prediction, bool) {
	if len(r.Predictions) == 0 {
		return classifier.Prediction{}, false
	}
	return r.Predictions[0], true
}

// Observer receives every published report, on the inferer goroutine.
type Observer interface {
	Name() string
	Publish(ctx context.Context, r Report) error
}

// FixSource supplies the latest position fix, if any.
type FixSource interface {
	Latest() (gnss.Fix, bool)
}

// Options tune an Orchestrator. Zero durations take the defaults.
type Options struct {
	SampleInterval    time.Duration
	InferenceInterval time.Duration
	Fixes             FixSource
	Metrics           *metrics.Pipeline
	Log               *zap.SugaredLogger
}

type loaded struct {
	classifier  classifier.Classifier
	model       string
	accelerator classifier.Accelerator
}

// Orchestrator owns the channel registry and schedules the two loops.
type Orchestrator struct {
	registry *channel.Registry
	source   imu.Source
	loader   classifier.Loader
	opts     Options
	log      *zap.SugaredLogger
	metrics  *metrics.Pipeline
	now      func() time.Time

	active atomic.Pointer[loaded]
	latest atomic.Pointer[Report]

	mu     sync.Mutex // guards state, cancel, done and the wg lifecycle; never taken by the loops
	state  State
	cancel context.CancelFunc
	done   <-chan struct{}
	wg     sync.WaitGroup

	obsMu     sync.RWMutex
	observers []Observer
}

// New wires an orchestrator. No classifier is loaded and it starts Idle.
func New(registry *channel.Registry, source imu.Source, loader classifier.Loader, opts Options) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("pipeline: nil channel registry")
	}
	if source == nil {
		return nil, errors.New("pipeline: nil sample source")
	}
	if loader == nil {
		return nil, errors.New("pipeline: nil classifier loader")
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.InferenceInterval <= 0 {
		opts.InferenceInterval = DefaultInferenceInterval
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		registry: registry,
		source:   source,
		loader:   loader,
		opts:     opts,
		log:      opts.Log,
		metrics:  opts.Metrics,
		now:      time.Now,
	}, nil
}

// Load obtains a classifier for model on accelerator and swaps it in. It is
// valid in any state. On failure the previously loaded classifier, if any,
// stays active and the error wraps the classifier sentinel.
func (o *Orchestrator) Load(ctx context.Context, model string, accelerator classifier.Accelerator) error {
	c, err := o.loader.Load(ctx, model, accelerator)
	if err != nil {
		o.metrics.Load(string(accelerator), loadOutcome(err))
		o.log.Warnw("pipeline: classifier load failed, keeping previous",
			"model", model, "accelerator", accelerator, "err", err)
		return fmt.Errorf("pipeline: load %s on %s: %w", model, accelerator.Description(), err)
	}
	o.active.Store(&loaded{classifier: c, model: model, accelerator: accelerator})
	o.metrics.Load(string(accelerator), "ok")
	o.log.Infow("pipeline: classifier loaded", "model", model, "accelerator", accelerator)
	return nil
}

func loadOutcome(err error) string {
	switch {
	case errors.Is(err, classifier.ErrAcceleratorUnavailable):
		return "unavailable"
	case errors.Is(err, classifier.ErrModelNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Active reports the loaded model and accelerator.
func (o *Orchestrator) Active() (model string, accelerator classifier.Accelerator, ok bool) {
	a := o.active.Load()
	if a == nil {
		return "", "", false
	}
	return a.model, a.accelerator, true
}

// Run starts the sampler and inferer goroutines and returns immediately.
// Calling Run while running is a no-op. The loops stop when ctx is done or
// Stop is called; once ctx is done the orchestrator reports Idle and a later
// Run starts it again.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settle()
	if o.state == Running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = ctx.Done()
	o.state = Running

	o.wg.Add(2)
	go o.loop(ctx, o.opts.SampleInterval, func(context.Context) { o.SampleTick() })
	go o.loop(ctx, o.opts.InferenceInterval, func(ctx context.Context) {
		if err := o.InferTick(ctx); err != nil {
			o.log.Warnw("pipeline: inference failed, keeping previous predictions", "err", err)
		}
	})
	o.log.Infow("pipeline: running",
		"sample_interval", o.opts.SampleInterval,
		"inference_interval", o.opts.InferenceInterval,
		"window_length", o.registry.Length())
}

// loop calls tick on every ticker fire. A tick that overruns the interval
// makes the ticker drop fires rather than queue them.
func (o *Orchestrator) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer o.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// Stop pauses scheduling and waits for both loops to exit. Window contents
// are kept, so a later Run resumes accumulation where it left off. Use
// Reset to discard them.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settle()
	if o.state == Idle {
		return
	}
	o.halt()
	o.log.Infow("pipeline: stopped")
}

// settle moves a Running orchestrator whose run context has ended to Idle.
// Callers hold mu.
func (o *Orchestrator) settle() {
	if o.state != Running {
		return
	}
	select {
	case <-o.done:
		o.halt()
		o.log.Infow("pipeline: stopped, context done")
	default:
	}
}

// halt cancels the loops and waits for them. Callers hold mu.
func (o *Orchestrator) halt() {
	o.cancel()
	o.cancel = nil
	o.done = nil
	o.wg.Wait()
	o.state = Idle
}

// State returns the scheduling state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settle()
	return o.state
}

// Reset empties every window. The loaded classifier and last report stay.
func (o *Orchestrator) Reset() {
	for _, b := range o.registry.Bindings() {
		b.Window.Reset()
	}
}

// SampleTick reads one sample and pushes the magnitude of every valid
// reading into its channel's window. Errors never leave the sampler: a
// missing, stale or non-finite reading is counted and skipped.
func (o *Orchestrator) SampleTick() {
	s, err := o.source.Next()
	if errors.Is(err, imu.ErrNoFreshData) {
		o.metrics.Sample("stale")
		return
	}
	if err != nil {
		o.metrics.Sample("error")
		o.log.Debugw("pipeline: sample read failed", "err", err)
		return
	}
	o.metrics.Sample("sampled")

	for _, b := range o.registry.Bindings() {
		v, ok := s.Readings[b.Channel]
		if !ok {
			o.metrics.Dropped(b.Channel.String(), metrics.ReasonMissing)
			continue
		}
		if !triaxial.Valid(v) {
			o.metrics.Dropped(b.Channel.String(), metrics.ReasonNonFinite)
			o.log.Debugw("pipeline: dropping non-finite reading", "channel", b.Channel, "reading", v)
			continue
		}
		m := triaxial.Reduce(v, b.Convention)
		if math.IsInf(m, 0) {
			o.metrics.Dropped(b.Channel.String(), metrics.ReasonNonFinite)
			continue
		}
		b.Window.Push(m)
	}
}

// InferTick runs one inference. It is a silent no-op while no classifier is
// loaded or any window is still warming up. On success the new report
// replaces the previous one and is handed to every observer; on failure the
// previous report stays published and the error is returned.
func (o *Orchestrator) InferTick(ctx context.Context) error {
	active := o.active.Load()
	if active == nil {
		o.metrics.Inference(metrics.OutcomeUnloaded)
		return nil
	}

	bindings := o.registry.Bindings()
	length := o.registry.Length()

	snapshots := make([][]float64, len(bindings))
	for i, b := range bindings {
		snapshots[i] = b.Window.Snapshot()
		if len(snapshots[i]) < length {
			o.metrics.Inference(metrics.OutcomeWarmup)
			return nil
		}
	}

	features := mat.NewDense(length, len(bindings), nil)
	for col, b := range bindings {
		out, err := b.Chain.Apply(snapshots[col])
		if err != nil {
			o.metrics.Inference(metrics.OutcomeError)
			return fmt.Errorf("pipeline: preprocess %s: %w", b.Channel, err)
		}
		features.SetCol(col, out)
	}

	start := time.Now()
	preds, err := active.classifier.Classify(ctx, features)
	o.metrics.Classified(time.Since(start).Seconds())
	if err != nil {
		o.metrics.Inference(metrics.OutcomeError)
		return fmt.Errorf("pipeline: classify with %s on %s: %w", active.model, active.accelerator, err)
	}

	r := &Report{
		ID:          uuid.New(),
		At:          o.now(),
		Model:       active.model,
		Accelerator: active.accelerator,
		Predictions: append([]classifier.Prediction(nil), preds...),
	}
	if o.opts.Fixes != nil {
		if fix, ok := o.opts.Fixes.Latest(); ok {
			r.Fix = &fix
		}
	}
	o.latest.Store(r)
	o.metrics.Inference(metrics.OutcomeOK)

	if top, ok := r.Top(); ok {
		o.log.Debugw("pipeline: predicted", "label", top.Label, "confidence", top.Confidence, "tick", r.ID)
	}
	o.notify(ctx, *r)
	return nil
}

// Latest returns the most recently published report.
func (o *Orchestrator) Latest() (Report, bool) {
	r := o.latest.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// Windows returns a copy of every window, keyed by channel.
func (o *Orchestrator) Windows() map[channel.Channel][]float64 {
	out := make(map[channel.Channel][]float64, len(o.registry.Bindings()))
	for _, b := range o.registry.Bindings() {
		out[b.Channel] = b.Window.Snapshot()
	}
	return out
}

// WindowLength returns the capacity shared by every window.
func (o *Orchestrator) WindowLength() int {
	return o.registry.Length()
}

// Subscribe adds an observer for future reports.
func (o *Orchestrator) Subscribe(obs Observer) {
	o.obsMu.Lock()
	defer o.obsMu.Unlock()
	o.observers = append(o.observers, obs)
}

func (o *Orchestrator) notify(ctx context.Context, r Report) {
	o.obsMu.RLock()
	observers := append([]Observer(nil), o.observers...)
	o.obsMu.RUnlock()

	for _, obs := range observers {
		if err := obs.Publish(ctx, r); err != nil {
			o.metrics.PublishFailed(obs.Name())
			o.log.Warnw("pipeline: observer failed", "observer", obs.Name(), "err", err)
		}
	}
}
