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
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

const defaultConcurrency = 4

// Clock abstracts time for the scheduler so tests can drive cycles
// without sleeping.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts time.Ticker.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) Ticker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) Chan() <-chan time.Time { return r.t.C }

func (r *realTicker) Stop() { r.t.Stop() }

// RealClock returns the production clock.
func RealClock() Clock { return realClock{} }

// JobRunner executes one fetch run. Satisfied by *Runner.
type JobRunner interface {
	Run(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind) models.RunResult
}

// JobStore persists per-run status for failure tracking.
type JobStore interface {
	RecordJob(ctx context.Context, job *models.ScheduledJob) error
	LastJob(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind) (*models.ScheduledJob, error)
}

// Target is one scheduled (tenant, data source) pair and the entity kinds
// to fetch from it.
type Target struct {
	TenantID     string
	DataSourceID string
	Kinds        []models.EntityKind
}

// Service runs fetch cycles on an interval across every configured target.
type Service struct {
	runner      JobRunner
	jobs        JobStore
	targets     []Target
	interval    time.Duration
	concurrency int
	clock       Clock
	logger      logger.Logger
}

// NewService builds the scheduler. A nil clock means the real one.
func NewService(runner JobRunner, jobs JobStore, targets []Target, interval time.Duration, clock Clock, log logger.Logger) *Service {
	if clock == nil {
		clock = realClock{}
	}

	return &Service{
		runner:      runner,
		jobs:        jobs,
		targets:     targets,
		interval:    interval,
		concurrency: defaultConcurrency,
		clock:       clock,
		logger:      log.WithComponent("scheduler"),
	}
}

// Start runs one cycle immediately, then one per interval until ctx is
// canceled. A cycle's failures are recorded per job and never stop the
// scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info().
		Int("targets", len(s.targets)).
		Dur("interval", s.interval).
		Msg("Scheduler starting")

	s.runCycle(ctx)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopping")
			return ctx.Err()
		case <-ticker.Chan():
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for _, target := range s.targets {
		for _, kind := range target.Kinds {
			group.Go(func() error {
				s.runJob(groupCtx, target, kind)
				return nil
			})
		}
	}

	_ = group.Wait()
}

func (s *Service) runJob(ctx context.Context, target Target, kind models.EntityKind) {
	// Read the prior failure streak before this run's row becomes the
	// newest one for the scope.
	prior := s.priorFailures(ctx, target, kind)

	job := models.ScheduledJob{
		ID:           uuid.NewString(),
		TenantID:     target.TenantID,
		DataSourceID: target.DataSourceID,
		EntityKind:   kind,
		Status:       models.JobRunning,
		StartedAt:    s.clock.Now(),
	}

	if err := s.jobs.RecordJob(ctx, &job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job start")
	}

	result := s.runner.Run(ctx, target.TenantID, target.DataSourceID, kind)

	finished := s.clock.Now()
	job.FinishedAt = &finished

	if result.Err != nil {
		job.Status = models.JobFailed
		job.LastError = result.Err.Error()
		job.ConsecutiveFailures = prior + 1

		s.logger.Error().
			Err(result.Err).
			Str("tenant_id", target.TenantID).
			Str("data_source_id", target.DataSourceID).
			Str("entity_kind", string(kind)).
			Int("consecutive_failures", job.ConsecutiveFailures).
			Msg("Fetch run failed")
	} else {
		job.Status = models.JobSucceeded
		job.ConsecutiveFailures = 0
	}

	if err := s.jobs.RecordJob(ctx, &job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job result")
	}
}

func (s *Service) priorFailures(ctx context.Context, target Target, kind models.EntityKind) int {
	last, err := s.jobs.LastJob(ctx, target.TenantID, target.DataSourceID, kind)
	if err != nil || last == nil || last.Status != models.JobFailed {
		return 0
	}

	return last.ConsecutiveFailures
}
