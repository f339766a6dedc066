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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/pkg/adapters"
	"github.com/harborwatch/harborwatch/pkg/alerts"
	"github.com/harborwatch/harborwatch/pkg/analyzers"
	"github.com/harborwatch/harborwatch/pkg/bus"
	"github.com/harborwatch/harborwatch/pkg/hashgate"
	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/metrics"
	"github.com/harborwatch/harborwatch/pkg/models"
	"github.com/harborwatch/harborwatch/pkg/processors"
)

type memCatalog struct {
	sources map[string]*models.DataSource
}

func (c *memCatalog) DataSource(_ context.Context, _, dataSourceID string) (*models.DataSource, error) {
	ds, ok := c.sources[dataSourceID]
	if !ok {
		return nil, errors.New("not found")
	}

	return ds, nil
}

type memHashStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
}

func newMemHashStore() *memHashStore {
	return &memHashStore{hashes: make(map[string]map[string]string)}
}

func hashScope(tenantID, dataSourceID string, kind models.EntityKind) string {
	return tenantID + "|" + dataSourceID + "|" + string(kind)
}

func (s *memHashStore) LastHashes(_ context.Context, tenantID, dataSourceID string, kind models.EntityKind) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	for k, v := range s.hashes[hashScope(tenantID, dataSourceID, kind)] {
		out[k] = v
	}

	return out, nil
}

func (s *memHashStore) SetHashes(_ context.Context, tenantID, dataSourceID string, kind models.EntityKind, hashes map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := hashScope(tenantID, dataSourceID, kind)
	if s.hashes[scope] == nil {
		s.hashes[scope] = make(map[string]string)
	}

	for k, v := range hashes {
		s.hashes[scope][k] = v
	}

	return nil
}

type memEntityStore struct {
	mu       sync.Mutex
	upserted []models.NormalizedEntity
}

func (s *memEntityStore) UpsertEntities(_ context.Context, _ string, entities []models.NormalizedEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upserted = append(s.upserted, entities...)

	return nil
}

type fakeAdapter struct {
	records []models.RawRecord
	err     error
}

func (a *fakeAdapter) IntegrationType() models.IntegrationType { return models.IntegrationNinjaOne }

func (a *fakeAdapter) VolatileKeys() []string { return []string{"fetchedAt"} }

func (a *fakeAdapter) Fetch(_ context.Context, _ models.FetchRequest) (*models.RawBatch, error) {
	if a.err != nil {
		return nil, a.err
	}

	return &models.RawBatch{Records: a.records}, nil
}

// failBus rejects every publish.
type failBus struct{}

func (failBus) Publish(_ context.Context, subject string, _ []byte) error {
	return &bus.PublishError{Subject: subject, Err: errors.New("broker down")}
}

func (failBus) Subscribe(_ context.Context, _ string, _ bus.Handler) (bus.Subscription, error) {
	return nil, errors.New("not implemented")
}

func deviceRecord(t *testing.T, id, hostname, lastContact string) models.RawRecord {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"systemName":  hostname,
		"os":          "Windows 11",
		"offline":     false,
		"lastContact": lastContact,
		"fetchedAt":   time.Now().Format(time.RFC3339),
	})
	require.NoError(t, err)

	return models.RawRecord{ExternalID: id, RawData: raw}
}

func activeSource(id string) *models.DataSource {
	return &models.DataSource{
		ID:                     id,
		TenantID:               "t1",
		IntegrationID:          "int-ninjaone",
		IntegrationType:        models.IntegrationNinjaOne,
		Status:                 models.DataSourceActive,
		CredentialExpirationAt: models.CredentialNeverExpires,
	}
}

func testRunner(t *testing.T, adapter adapters.Adapter, b bus.Bus, hashes *memHashStore, entities *memEntityStore) *Runner {
	t.Helper()

	log := logger.NewTestLogger()
	catalog := &memCatalog{sources: map[string]*models.DataSource{"ds1": activeSource("ds1")}}
	registry := adapters.Registry{
		models.IntegrationNinjaOne: func(_ *models.DataSource, _ logger.Logger) (adapters.Adapter, error) {
			return adapter, nil
		},
	}

	return NewRunner(catalog, registry, hashgate.New(hashes, log),
		processors.DefaultRegistry(log), entities, b, metrics.New(), log)
}

func TestRunPublishesOneEventForChangedRecords(t *testing.T) {
	ctx := context.Background()

	records := []models.RawRecord{
		deviceRecord(t, "d1", "ws-01", "2025-05-01T00:00:00Z"),
		deviceRecord(t, "d2", "ws-02", "2025-05-01T00:00:00Z"),
		deviceRecord(t, "d3", "ws-03", "2025-05-01T00:00:00Z"),
	}

	hashes := newMemHashStore()

	// Seed d3's hash so it counts as unchanged.
	seeded, err := hashgate.Hash(records[2].RawData, []string{"fetchedAt"})
	require.NoError(t, err)
	require.NoError(t, hashes.SetHashes(ctx, "t1", "ds1", models.EntityEndpoints,
		map[string]string{"d3": seeded}))

	b := bus.NewInMem(logger.NewTestLogger())
	entities := &memEntityStore{}
	runner := testRunner(t, &fakeAdapter{records: records}, b, hashes, entities)

	result := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.RecordsFetched)
	assert.Equal(t, 2, result.RecordsChanged)

	published := b.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "t1.endpoints.fetched", published[0].Subject)

	var event models.FetchedEvent
	require.NoError(t, json.Unmarshal(published[0].Data, &event))
	require.NoError(t, event.Validate())
	assert.Len(t, event.Entities, 2)
	assert.Len(t, entities.upserted, 2)
}

func TestRunIsIdempotentAcrossIdenticalFetches(t *testing.T) {
	ctx := context.Background()
	records := []models.RawRecord{deviceRecord(t, "d1", "ws-01", "2025-05-01T00:00:00Z")}

	hashes := newMemHashStore()
	b := bus.NewInMem(logger.NewTestLogger())
	runner := testRunner(t, &fakeAdapter{records: records}, b, hashes, &memEntityStore{})

	first := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, first.Err)
	assert.Equal(t, 1, first.RecordsChanged)

	second := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, second.Err)
	assert.Equal(t, 0, second.RecordsChanged)

	assert.Len(t, b.Published(), 1)
}

func TestRunDoesNotAdvanceHashesOnPublishFailure(t *testing.T) {
	ctx := context.Background()
	records := []models.RawRecord{deviceRecord(t, "d1", "ws-01", "2025-05-01T00:00:00Z")}

	hashes := newMemHashStore()
	runner := testRunner(t, &fakeAdapter{records: records}, failBus{}, hashes, &memEntityStore{})

	result := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.Error(t, result.Err)

	var publishErr *bus.PublishError
	assert.ErrorAs(t, result.Err, &publishErr)

	stored, err := hashes.LastHashes(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, err)
	assert.Empty(t, stored)

	// A later run with a healthy bus delivers the same records.
	b := bus.NewInMem(logger.NewTestLogger())
	retry := testRunner(t, &fakeAdapter{records: records}, b, hashes, &memEntityStore{})

	retryResult := retry.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, retryResult.Err)
	assert.Equal(t, 1, retryResult.RecordsChanged)
	assert.Len(t, b.Published(), 1)
}

func TestRunDoesNotCommitHashesForRecordsDroppedByProcessor(t *testing.T) {
	ctx := context.Background()

	// d2 hashes cleanly but fails normalization (systemName is not a
	// string), so its hash must not be committed with d1's.
	bad := models.RawRecord{
		ExternalID: "d2",
		RawData:    []byte(`{"id":"d2","systemName":123}`),
	}
	records := []models.RawRecord{
		deviceRecord(t, "d1", "ws-01", "2025-05-01T00:00:00Z"),
		bad,
	}

	hashes := newMemHashStore()
	b := bus.NewInMem(logger.NewTestLogger())
	runner := testRunner(t, &fakeAdapter{records: records}, b, hashes, &memEntityStore{})

	first := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, first.Err)
	assert.Equal(t, 2, first.RecordsChanged)

	stored, err := hashes.LastHashes(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, err)
	assert.Contains(t, stored, "d1")
	assert.NotContains(t, stored, "d2")

	// The next identical fetch re-gates d2 instead of skipping it.
	second := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, second.Err)
	assert.Equal(t, 1, second.RecordsChanged)
}

func TestRunSkipsDisabledSource(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	ds := activeSource("ds1")
	ds.Status = models.DataSourceInactive

	runner := NewRunner(
		&memCatalog{sources: map[string]*models.DataSource{"ds1": ds}},
		adapters.Registry{}, hashgate.New(newMemHashStore(), log),
		processors.DefaultRegistry(log), &memEntityStore{},
		bus.NewInMem(log), metrics.New(), log)

	result := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	assert.NoError(t, result.Err)
	assert.Zero(t, result.RecordsFetched)
}

func TestRunFailsOnExpiredCredentials(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()

	ds := activeSource("ds1")
	ds.CredentialExpirationAt = time.Now().Add(-time.Hour).UnixMilli()

	runner := NewRunner(
		&memCatalog{sources: map[string]*models.DataSource{"ds1": ds}},
		adapters.Registry{}, hashgate.New(newMemHashStore(), log),
		processors.DefaultRegistry(log), &memEntityStore{},
		bus.NewInMem(log), metrics.New(), log)

	result := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	assert.ErrorIs(t, result.Err, errCredentialsExpired)
}

func TestPipelineEndToEndOpensAndResolvesAlerts(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()
	b := bus.NewInMem(log)
	m := metrics.New()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	baseline := analyzers.DefaultBaseline()
	baseline.Now = now

	analyzerRunner := NewAnalyzerRunner(b, analyzers.Staleness{}, baseline, log)
	_, err := analyzerRunner.Start(ctx)
	require.NoError(t, err)

	alertStore := alerts.NewMemStore()
	aggregatorRunner := NewAggregatorRunner(b, alerts.New(alertStore, log), m, log)
	_, err = aggregatorRunner.Start(ctx)
	require.NoError(t, err)

	stale := deviceRecord(t, "d1", "ws-01", now.Add(-60*24*time.Hour).Format(time.RFC3339))
	hashes := newMemHashStore()
	runner := testRunner(t, &fakeAdapter{records: []models.RawRecord{stale}}, b, hashes, &memEntityStore{})

	result := runner.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, result.Err)

	latest, err := alertStore.GetLatest(ctx, "t1", "d1", models.AlertCategoryStaleEndpoint)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AlertStatusOpen, latest.Status)

	// The device checks in; the same pipeline pass resolves the alert.
	fresh := deviceRecord(t, "d1", "ws-01", now.Add(-time.Hour).Format(time.RFC3339))
	runner2 := testRunner(t, &fakeAdapter{records: []models.RawRecord{fresh}}, b, hashes, &memEntityStore{})

	result = runner2.Run(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, result.Err)

	latest, err = alertStore.GetLatest(ctx, "t1", "d1", models.AlertCategoryStaleEndpoint)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AlertStatusResolved, latest.Status)
}

type memJobStore struct {
	mu   sync.Mutex
	jobs []models.ScheduledJob
}

func (s *memJobStore) RecordJob(_ context.Context, job *models.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID == job.ID {
			s.jobs[i] = *job
			return nil
		}
	}

	s.jobs = append(s.jobs, *job)

	return nil
}

func (s *memJobStore) LastJob(_ context.Context, tenantID, dataSourceID string, kind models.EntityKind) (*models.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.jobs) - 1; i >= 0; i-- {
		j := s.jobs[i]
		if j.TenantID == tenantID && j.DataSourceID == dataSourceID && j.EntityKind == kind {
			return &j, nil
		}
	}

	return nil, nil
}

type stubRunner struct {
	err error
}

func (r *stubRunner) Run(_ context.Context, _, _ string, _ models.EntityKind) models.RunResult {
	return models.RunResult{RecordsFetched: 1, Err: r.err}
}

func TestSchedulerTracksConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	jobs := &memJobStore{}
	runner := &stubRunner{err: errors.New("provider outage")}

	targets := []Target{{TenantID: "t1", DataSourceID: "ds1", Kinds: []models.EntityKind{models.EntityEndpoints}}}
	svc := NewService(runner, jobs, targets, time.Minute, nil, logger.NewTestLogger())

	svc.runCycle(ctx)
	svc.runCycle(ctx)

	last, err := jobs.LastJob(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, models.JobFailed, last.Status)
	assert.Equal(t, 2, last.ConsecutiveFailures)
	assert.Equal(t, "provider outage", last.LastError)

	runner.err = nil
	svc.runCycle(ctx)

	last, err = jobs.LastJob(ctx, "t1", "ds1", models.EntityEndpoints)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, models.JobSucceeded, last.Status)
	assert.Zero(t, last.ConsecutiveFailures)
}

func TestSchedulerRunsEveryTargetKind(t *testing.T) {
	ctx := context.Background()
	jobs := &memJobStore{}

	targets := []Target{{
		TenantID:     "t1",
		DataSourceID: "ds1",
		Kinds:        []models.EntityKind{models.EntityEndpoints, models.EntityIdentities},
	}}
	svc := NewService(&stubRunner{}, jobs, targets, time.Minute, nil, logger.NewTestLogger())

	svc.runCycle(ctx)

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	assert.Len(t, jobs.jobs, 2)

	for _, j := range jobs.jobs {
		assert.Equal(t, models.JobSucceeded, j.Status)
		if assert.NotNil(t, j.FinishedAt) {
			assert.False(t, j.FinishedAt.Before(j.StartedAt))
		}
	}
}
