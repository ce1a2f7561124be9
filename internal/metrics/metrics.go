// Copyright (c) 2026 Contributors to the Eclipse Foundation
//
// See the NOTICE file(s) distributed with this work for additional
// information regarding copyright ownership.
//
// This program and the accompanying materials are made available under the
// terms of the Eclipse Public License 2.0 which is available at
// https://www.eclipse.org/legal/epl-2.0, or the Apache License, Version 2.0
// which is available at https://www.apache.org/licenses/LICENSE-2.0.
//
// SPDX-License-Identifier: EPL-2.0 OR Apache-2.0

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eclipse-kanto/firmware-update/internal/logger"
	"github.com/eclipse-kanto/firmware-update/internal/ota"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "firmware_update"

	resultNoUpdate = "NO_UPDATE"
	resultFlashed  = "FLASHED"
	resultReboot   = "REBOOT_FAILURE"
)

// Metrics holds the update agent metrics in their own registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	downloadedBytes prometheus.Counter
	transferBytes   prometheus.Gauge
	transferTotal   prometheus.Gauge
	lastCycle       prometheus.Gauge
	cycleDuration   prometheus.Histogram
}

// New creates and registers the metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "The number of update cycles by result",
			},
			[]string{"result"},
		),
		downloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "The number of firmware bytes written to the flash slot",
			},
		),
		transferBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transfer_written_bytes",
				Help:      "The number of bytes written by the current firmware transfer",
			},
		),
		transferTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transfer_size_bytes",
				Help:      "The declared size of the current firmware transfer",
			},
		),
		lastCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_cycle_timestamp_seconds",
				Help:      "The end time of the last update cycle",
			},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "The duration of the update cycles",
				Buckets:   []float64{1, 5, 15, 60, 300, 900},
			},
		),
	}
	m.registry.MustRegister(
		m.cycles,
		m.downloadedBytes,
		m.transferBytes,
		m.transferTotal,
		m.lastCycle,
		m.cycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Result returns the result label of an outcome.
func Result(outcome *ota.Outcome) string {
	switch {
	case outcome.Kind != ota.OK:
		return outcome.Kind.String()
	case outcome.Err != nil:
		return resultReboot
	case outcome.UpdateAvailable:
		return resultFlashed
	default:
		return resultNoUpdate
	}
}

// Observe records the outcome of an update cycle.
func (m *Metrics) Observe(outcome *ota.Outcome) {
	m.cycles.WithLabelValues(Result(outcome)).Inc()
	m.downloadedBytes.Add(float64(outcome.BytesWritten))
	if !outcome.Finished.IsZero() {
		m.lastCycle.Set(float64(outcome.Finished.Unix()))
		if !outcome.Started.IsZero() {
			m.cycleDuration.Observe(outcome.Finished.Sub(outcome.Started).Seconds())
		}
	}
}

// Progress records the progress of the current firmware transfer.
func (m *Metrics) Progress(written, total int64) {
	m.transferBytes.Set(float64(written))
	m.transferTotal.Set(float64(total))
}

// WatchState exports the current update cycle state.
func (m *Metrics) WatchState(current func() string, states ...string) error {
	return m.registry.Register(&stateCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "state"),
			"The current update cycle state, 1 for the active one",
			[]string{"state"}, nil,
		),
		current: current,
		states:  states,
	})
}

// Handler returns the HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes the metrics at address until ctx is done.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	serveMux := http.NewServeMux()
	serveMux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:         address,
		Handler:      serveMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Debugf("failed to stop metrics server: %v", err)
		}
	}()

	logger.Infof("Serving metrics on %s", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type stateCollector struct {
	desc    *prometheus.Desc
	current func() string
	states  []string
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	current := c.current()
	for _, state := range c.states {
		value := 0.0
		if state == current {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, value, state)
	}
}
