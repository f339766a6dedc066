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

package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/harborwatch/harborwatch/pkg/alerts"
	"github.com/harborwatch/harborwatch/pkg/analyzers"
	"github.com/harborwatch/harborwatch/pkg/bus"
	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/metrics"
	"github.com/harborwatch/harborwatch/pkg/models"
)

// AnalyzerRunner binds one analyzer to the bus: it consumes fetched events
// for the analyzer's entity kind across all tenants and publishes one
// analysis event per batch.
type AnalyzerRunner struct {
	bus      bus.Bus
	analyzer analyzers.Analyzer
	baseline analyzers.Baseline
	logger   logger.Logger
}

// NewAnalyzerRunner creates a runner for one analyzer.
func NewAnalyzerRunner(b bus.Bus, analyzer analyzers.Analyzer, baseline analyzers.Baseline, log logger.Logger) *AnalyzerRunner {
	return &AnalyzerRunner{
		bus:      b,
		analyzer: analyzer,
		baseline: baseline,
		logger:   log.WithComponent("analyzer." + string(analyzer.AnalysisType())),
	}
}

// Start subscribes the runner. The subscription stays live until
// unsubscribed; ctx scopes the subscription setup and handler calls.
func (r *AnalyzerRunner) Start(ctx context.Context) (bus.Subscription, error) {
	subject := bus.WildcardSubject(r.analyzer.EntityKind(), bus.StageFetched)

	return r.bus.Subscribe(ctx, subject, r.handle)
}

func (r *AnalyzerRunner) handle(ctx context.Context, msg bus.Message) error {
	var event models.FetchedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed payloads would fail on every redelivery; reject and
		// move on.
		r.logger.Error().Err(err).Str("subject", msg.Subject).Msg("Rejecting undecodable fetched event")
		return nil
	}

	if err := event.Validate(); err != nil {
		r.logger.Error().Err(err).Str("subject", msg.Subject).Msg("Rejecting invalid fetched event")
		return nil
	}

	findings := r.analyzer.Analyze(event.Entities, r.baseline)

	examined := make([]string, 0, len(event.Entities))
	for _, e := range event.Entities {
		examined = append(examined, e.ExternalID)
	}

	analysis := models.AnalysisEvent{
		AnalysisID:      uuid.NewString(),
		TenantID:        event.TenantID,
		DataSourceID:    event.DataSourceID,
		IntegrationID:   event.IntegrationID,
		IntegrationType: event.IntegrationType,
		AnalysisType:    r.analyzer.AnalysisType(),
		EntityKind:      event.EntityKind,
		Findings:        findings,
		Examined:        examined,
		CreatedAt:       r.baseline.EffectiveNow(),
	}

	data, err := json.Marshal(&analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis event: %w", err)
	}

	subject := bus.Subject(event.TenantID, event.EntityKind, bus.StageAnalysis)
	if err := r.bus.Publish(ctx, subject, data); err != nil {
		return err
	}

	r.logger.Info().
		Str("tenant_id", event.TenantID).
		Str("entity_kind", string(event.EntityKind)).
		Int("examined", len(examined)).
		Int("findings", len(findings)).
		Msg("Analysis published")

	return nil
}

// AggregatorRunner consumes every analysis event and reconciles it into
// alert state.
type AggregatorRunner struct {
	bus        bus.Bus
	aggregator *alerts.Aggregator
	metrics    *metrics.Metrics
	logger     logger.Logger
}

// NewAggregatorRunner creates the alert reconciliation subscriber.
func NewAggregatorRunner(b bus.Bus, aggregator *alerts.Aggregator, m *metrics.Metrics, log logger.Logger) *AggregatorRunner {
	return &AggregatorRunner{
		bus:        b,
		aggregator: aggregator,
		metrics:    m,
		logger:     log.WithComponent("aggregator"),
	}
}

// Start subscribes to analysis events across all tenants and kinds.
func (r *AggregatorRunner) Start(ctx context.Context) (bus.Subscription, error) {
	subject := fmt.Sprintf("%s.%s.%s", bus.Wildcard, bus.Wildcard, bus.StageAnalysis)

	return r.bus.Subscribe(ctx, subject, r.handle)
}

func (r *AggregatorRunner) handle(ctx context.Context, msg bus.Message) error {
	var event models.AnalysisEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		r.logger.Error().Err(err).Str("subject", msg.Subject).Msg("Rejecting undecodable analysis event")
		return nil
	}

	if err := event.Validate(); err != nil {
		r.logger.Error().Err(err).Str("subject", msg.Subject).Msg("Rejecting invalid analysis event")
		return nil
	}

	deltas, err := r.aggregator.Reconcile(ctx, &event)
	if err != nil {
		return fmt.Errorf("reconcile analysis %s: %w", event.AnalysisID, err)
	}

	for _, delta := range deltas {
		r.metrics.AlertTransitions.
			WithLabelValues(string(delta.Alert.Category), string(delta.Transition)).Inc()
	}

	if len(deltas) > 0 {
		r.logger.Info().
			Str("tenant_id", event.TenantID).
			Str("analysis_type", string(event.AnalysisType)).
			Int("deltas", len(deltas)).
			Msg("Alerts reconciled")
	}

	return nil
}
