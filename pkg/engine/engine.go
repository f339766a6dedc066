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

// Package engine drives the ingestion pipeline: it runs fetch cycles
// through the adapter, content-hash gate and processor, persists the
// canonical snapshot, and publishes fetched events to the bus.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harborwatch/harborwatch/pkg/adapters"
	"github.com/harborwatch/harborwatch/pkg/bus"
	"github.com/harborwatch/harborwatch/pkg/hashgate"
	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/metrics"
	"github.com/harborwatch/harborwatch/pkg/models"
	"github.com/harborwatch/harborwatch/pkg/processors"
)

const (
	defaultFetchTimeout = 2 * time.Minute

	// maxFetchPages bounds cursor pagination against a provider that
	// keeps returning a cursor.
	maxFetchPages = 1000
)

var (
	errUnknownDataSource  = errors.New("unknown data source")
	errCredentialsExpired = errors.New("data source credentials expired")
	errTooManyPages       = errors.New("fetch exceeded page limit")
)

// Catalog resolves tenant data sources. It is owned by tenant management;
// the engine treats it as read-only.
type Catalog interface {
	DataSource(ctx context.Context, tenantID, dataSourceID string) (*models.DataSource, error)
}

// EntityStore persists the canonical entity snapshot.
type EntityStore interface {
	UpsertEntities(ctx context.Context, tenantID string, entities []models.NormalizedEntity) error
}

// Runner executes one fetch run per (tenant, data source, entity kind).
type Runner struct {
	catalog      Catalog
	adapters     adapters.Registry
	gate         *hashgate.Gate
	processors   processors.Registry
	entities     EntityStore
	bus          bus.Bus
	metrics      *metrics.Metrics
	logger       logger.Logger
	fetchTimeout time.Duration
	nowFn        func() time.Time
}

// NewRunner wires a runner from its collaborators.
func NewRunner(
	catalog Catalog,
	registry adapters.Registry,
	gate *hashgate.Gate,
	procs processors.Registry,
	entities EntityStore,
	b bus.Bus,
	m *metrics.Metrics,
	log logger.Logger,
) *Runner {
	return &Runner{
		catalog:      catalog,
		adapters:     registry,
		gate:         gate,
		processors:   procs,
		entities:     entities,
		bus:          b,
		metrics:      m,
		logger:       log.WithComponent("engine"),
		fetchTimeout: defaultFetchTimeout,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the full pipeline for one (tenant, data source, entity kind).
// Hashes advance only after the run's entities are persisted and published;
// a failure at any later step leaves the gate untouched so the next run
// retries the same records.
func (r *Runner) Run(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind) models.RunResult {
	started := r.nowFn()

	ds, err := r.catalog.DataSource(ctx, tenantID, dataSourceID)
	if err != nil {
		return models.RunResult{Err: fmt.Errorf("%w: %s: %v", errUnknownDataSource, dataSourceID, err)}
	}

	log := r.logger.With().
		Str("tenant_id", tenantID).
		Str("data_source_id", dataSourceID).
		Str("integration_type", string(ds.IntegrationType)).
		Str("entity_kind", string(kind)).
		Logger()

	if !ds.Enabled() {
		log.Info().Msg("Data source disabled; skipping run")
		return models.RunResult{}
	}

	if ds.CredentialsExpired(r.nowFn()) {
		return models.RunResult{Err: fmt.Errorf("%w: %s", errCredentialsExpired, dataSourceID)}
	}

	adapter, err := r.adapters.New(ds, r.logger)
	if err != nil {
		return models.RunResult{Err: err}
	}

	records, err := r.fetchAll(ctx, adapter, kind)
	if err != nil {
		return models.RunResult{Err: err}
	}

	r.metrics.RecordsFetched.WithLabelValues(string(ds.IntegrationType), string(kind)).
		Add(float64(len(records)))

	payloads, hashes, stats, err := r.gate.Filter(ctx, tenantID, dataSourceID, kind, records, adapter.VolatileKeys())
	if err != nil {
		return models.RunResult{RecordsFetched: len(records), Err: err}
	}

	result := models.RunResult{RecordsFetched: stats.Fetched, RecordsChanged: stats.Changed}

	r.metrics.RecordsChanged.WithLabelValues(string(ds.IntegrationType), string(kind)).
		Add(float64(stats.Changed))

	if len(payloads) == 0 {
		log.Info().
			Int("fetched", stats.Fetched).
			Int("unchanged", stats.Unchanged).
			Msg("No changed records; nothing to publish")
		r.observeRun(ds.IntegrationType, kind, started, nil)

		return result
	}

	proc, ok := r.processors.For(kind)
	if !ok {
		log.Warn().
			Str("error_code", "NORMALIZER_NOT_FOUND").
			Msg("No processor registered for entity kind; dropping batch")
		r.observeRun(ds.IntegrationType, kind, started, nil)

		return result
	}

	entities := proc.Normalize(ds.IntegrationType, payloads)
	if len(entities) == 0 {
		r.observeRun(ds.IntegrationType, kind, started, nil)
		return result
	}

	// A record the processor dropped was never persisted or published;
	// leaving its hash uncommitted lets the next run re-gate it.
	normalized := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		normalized[e.ExternalID] = struct{}{}
	}

	for externalID := range hashes {
		if _, ok := normalized[externalID]; !ok {
			delete(hashes, externalID)
		}
	}

	if err := r.entities.UpsertEntities(ctx, tenantID, entities); err != nil {
		result.Err = fmt.Errorf("persist entities: %w", err)
		r.observeRun(ds.IntegrationType, kind, started, result.Err)

		return result
	}

	if err := r.publish(ctx, tenantID, ds, kind, entities); err != nil {
		r.metrics.PublishFailures.WithLabelValues(bus.StageFetched).Inc()

		result.Err = err
		r.observeRun(ds.IntegrationType, kind, started, result.Err)

		return result
	}

	if err := r.gate.Commit(ctx, tenantID, dataSourceID, kind, hashes); err != nil {
		// Published but not committed: the next run re-publishes the
		// same records, which downstream consumers absorb by hash.
		result.Err = fmt.Errorf("commit hashes: %w", err)
		r.observeRun(ds.IntegrationType, kind, started, result.Err)

		return result
	}

	log.Info().
		Int("fetched", stats.Fetched).
		Int("changed", stats.Changed).
		Int("unchanged", stats.Unchanged).
		Int("dropped", stats.Dropped).
		Msg("Run completed")
	r.observeRun(ds.IntegrationType, kind, started, nil)

	return result
}

func (r *Runner) fetchAll(ctx context.Context, adapter adapters.Adapter, kind models.EntityKind) ([]models.RawRecord, error) {
	var (
		records []models.RawRecord
		cursor  string
	)

	for page := 0; page < maxFetchPages; page++ {
		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		batch, err := adapter.Fetch(fetchCtx, models.FetchRequest{EntityKind: kind, Cursor: cursor})

		cancel()

		if err != nil {
			return nil, err
		}

		records = append(records, batch.Records...)

		if batch.NextCursor == "" {
			return records, nil
		}

		cursor = batch.NextCursor
	}

	return nil, fmt.Errorf("%w: %d pages", errTooManyPages, maxFetchPages)
}

func (r *Runner) publish(ctx context.Context, tenantID string, ds *models.DataSource, kind models.EntityKind, entities []models.NormalizedEntity) error {
	event := models.FetchedEvent{
		TenantID:        tenantID,
		DataSourceID:    ds.ID,
		IntegrationID:   ds.IntegrationID,
		IntegrationType: ds.IntegrationType,
		EntityKind:      kind,
		Entities:        entities,
		CreatedAt:       r.nowFn(),
	}

	data, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("marshal fetched event: %w", err)
	}

	return r.bus.Publish(ctx, bus.Subject(tenantID, kind, bus.StageFetched), data)
}

func (r *Runner) observeRun(integration models.IntegrationType, kind models.EntityKind, started time.Time, runErr error) {
	status := "succeeded"
	if runErr != nil {
		status = "failed"
	}

	r.metrics.RunsTotal.WithLabelValues(string(integration), string(kind), status).Inc()
	r.metrics.RunDuration.WithLabelValues(string(integration), string(kind)).
		Observe(r.nowFn().Sub(started).Seconds())
}
