// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package metrics exposes Prometheus collectors for aggregation runs.
//
// A nil *Recorder is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contribfeed"

// Recorder holds the collectors of one registry
type Recorder struct {
	upstreamRequests *prometheus.CounterVec
	recordsProcessed *prometheus.CounterVec
	recordsSkipped   *prometheus.CounterVec
	eventsEmitted    prometheus.Counter
	runDuration      prometheus.Summary
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{}
	r.upstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Number of upstream API requests by endpoint and status",
	}, []string{"endpoint", "status"})
	r.recordsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_processed_total",
		Help:      "Number of raw records classified, by record family",
	}, []string{"family"})
	r.recordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_skipped_total",
		Help:      "Number of raw records skipped, by reason",
	}, []string{"reason"})
	r.eventsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_emitted_total",
		Help:      "Number of events returned after merging",
	})
	r.runDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Time spent on a full aggregation run",
	})

	for _, c := range []prometheus.Collector{
		r.upstreamRequests, r.recordsProcessed, r.recordsSkipped, r.eventsEmitted, r.runDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveRequest counts one upstream call. status is the HTTP status code or
// "error" when no response was received.
func (r *Recorder) ObserveRequest(endpoint, status string) {
	if r == nil {
		return
	}
	r.upstreamRequests.WithLabelValues(endpoint, status).Inc()
}

func (r *Recorder) RecordProcessed(family string) {
	if r == nil {
		return
	}
	r.recordsProcessed.WithLabelValues(family).Inc()
}

func (r *Recorder) RecordSkipped(reason string) {
	if r == nil {
		return
	}
	r.recordsSkipped.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordEmitted(n int) {
	if r == nil {
		return
	}
	r.eventsEmitted.Add(float64(n))
}

func (r *Recorder) ObserveRun(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Observe(d.Seconds())
}
