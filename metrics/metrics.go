// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package metrics exports the Reader activity as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/maruel/go-csq/csq"
)

// Metrics implements csq.Observer.
type Metrics struct {
	reg *prometheus.Registry

	blocks  prometheus.Counter
	bytes   prometheus.Counter
	frames  prometheus.Counter
	errors  *prometheus.CounterVec
	convert prometheus.Histogram
	encoded prometheus.Counter
	queue   prometheus.Gauge
	viewers prometheus.Gauge
}

// New creates the metrics on their own registry, so multiple instances can
// coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,

		blocks: f.NewCounter(prometheus.CounterOpts{
			Name: "csq_blocks_read_total",
			Help: "Total number of blocks read from the input stream",
		}),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Name: "csq_bytes_read_total",
			Help: "Total number of bytes read from the input stream",
		}),
		frames: f.NewCounter(prometheus.CounterOpts{
			Name: "csq_frames_total",
			Help: "Total number of frames converted to temperatures",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "csq_errors_total",
			Help: "Total number of errors by kind",
		}, []string{"kind"}),
		convert: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "csq_frame_duration_seconds",
			Help:    "Time to extract, decode and convert one frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
		encoded: f.NewCounter(prometheus.CounterOpts{
			Name: "csq_frames_encoded_total",
			Help: "Total number of frames written to the video encoder",
		}),
		queue: f.NewGauge(prometheus.GaugeOpts{
			Name: "csq_encoder_queue_frames",
			Help: "Frames waiting to be encoded",
		}),
		viewers: f.NewGauge(prometheus.GaugeOpts{
			Name: "csq_viewers_active",
			Help: "Number of connected websocket viewers",
		}),
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// BlockRead implements csq.Observer.
func (m *Metrics) BlockRead(n int) {
	m.blocks.Inc()
	m.bytes.Add(float64(n))
}

// FrameDone implements csq.Observer.
func (m *Metrics) FrameDone(elapsed time.Duration) {
	m.frames.Inc()
	m.convert.Observe(elapsed.Seconds())
}

// FrameError implements csq.Observer.
func (m *Metrics) FrameError(err error) {
	m.errors.WithLabelValues(csq.ErrorKind(err)).Inc()
}

// FrameEncoded counts a frame written by the video encoder.
func (m *Metrics) FrameEncoded() {
	m.encoded.Inc()
}

// SetQueue sets the number of frames waiting for the encoder.
func (m *Metrics) SetQueue(n int) {
	m.queue.Set(float64(n))
}

// ViewerConnected tracks websocket viewers. Call the returned function on
// disconnection.
func (m *Metrics) ViewerConnected() func() {
	m.viewers.Inc()
	return m.viewers.Dec
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve runs a dedicated metrics HTTP server until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, port int, path string, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()
	log.WithField("addr", s.Addr).Info("Starting metrics server")
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

var _ csq.Observer = (*Metrics)(nil)
