// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package metrics holds the Prometheus collectors of the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Inference tick outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeWarmup   = "warmup"
	OutcomeUnloaded = "unloaded"
	OutcomeError    = "error"
)

// Dropped reading reasons.
const (
	ReasonNonFinite = "non_finite"
	ReasonMissing   = "missing"
)

// Pipeline groups every pipeline collector. A nil *Pipeline is valid and
// records nothing.
type Pipeline struct {
	SampleTicks      *prometheus.CounterVec
	DroppedReadings  *prometheus.CounterVec
	InferenceTicks   *prometheus.CounterVec
	ClassifyDuration prometheus.Histogram
	ClassifierLoads  *prometheus.CounterVec
	PublishErrors    *prometheus.CounterVec
}

// NewPipeline creates the collectors and registers them on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		SampleTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_sample_ticks_total",
				Help: "Sampler ticks by result (sampled, stale, error)",
			},
			[]string{"result"},
		),
		DroppedReadings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_dropped_readings_total",
				Help: "Readings not pushed into a window",
			},
			[]string{"channel", "reason"},
		),
		InferenceTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_inference_ticks_total",
				Help: "Inference ticks by outcome",
			},
			[]string{"outcome"},
		),
		ClassifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "activity_classify_duration_seconds",
				Help:    "Time spent in the classifier per inference tick",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		ClassifierLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_classifier_loads_total",
				Help: "Classifier load attempts by accelerator and outcome",
			},
			[]string{"accelerator", "outcome"},
		),
		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activity_publish_errors_total",
				Help: "Failed deliveries of a report to an observer",
			},
			[]string{"observer"},
		),
	}
	reg.MustRegister(
		p.SampleTicks,
		p.DroppedReadings,
		p.InferenceTicks,
		p.ClassifyDuration,
		p.ClassifierLoads,
		p.PublishErrors,
	)
	return p
}

func (p *Pipeline) Sample(result string) {
	if p != nil {
		p.SampleTicks.WithLabelValues(result).Inc()
	}
}

func (p *Pipeline) Dropped(channel, reason string) {
	if p != nil {
		p.DroppedReadings.WithLabelValues(channel, reason).Inc()
	}
}

func (p *Pipeline) Inference(outcome string) {
	if p != nil {
		p.InferenceTicks.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) Classified(seconds float64) {
	if p != nil {
		p.ClassifyDuration.Observe(seconds)
	}
}

func (p *Pipeline) Load(accelerator, outcome string) {
	if p != nil {
		p.ClassifierLoads.WithLabelValues(accelerator, outcome).Inc()
	}
}

func (p *Pipeline) PublishFailed(observer string) {
	if p != nil {
		p.PublishErrors.WithLabelValues(observer).Inc()
	}
}
