/*
 * Copyright 2025 Harborwatch, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborwatch/harborwatch/pkg/logger"
)

const readHeaderTimeout = 5 * time.Second

// Metrics holds every pipeline collector, registered against one
// registry so tests can use an isolated instance.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	RecordsFetched   *prometheus.CounterVec
	RecordsChanged   *prometheus.CounterVec
	PublishFailures  *prometheus.CounterVec
	AlertTransitions *prometheus.CounterVec
}

// New creates and registers the pipeline collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := func(name, help string, labels ...string) *prometheus.CounterVec {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harborwatch",
			Name:      name,
			Help:      help,
		}, labels)
		registry.MustRegister(vec)

		return vec
	}

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "harborwatch",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one fetch run.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"integration_type", "entity_kind"})
	registry.MustRegister(runDuration)

	return &Metrics{
		registry:    registry,
		RunDuration: runDuration,
		RunsTotal: factory("runs_total",
			"Fetch runs by outcome.", "integration_type", "entity_kind", "status"),
		RecordsFetched: factory("records_fetched_total",
			"Raw records returned by adapters.", "integration_type", "entity_kind"),
		RecordsChanged: factory("records_changed_total",
			"Records that passed the content-hash gate.", "integration_type", "entity_kind"),
		PublishFailures: factory("publish_failures_total",
			"Bus publish failures.", "subject_stage"),
		AlertTransitions: factory("alert_transitions_total",
			"Alert state changes by transition.", "category", "transition"),
	}
}

// Handler returns the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the scrape endpoint until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Metrics endpoint listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
