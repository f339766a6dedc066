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

// Package store is the PostgreSQL persistence layer. It backs the
// content-hash gate, the canonical entity snapshot, alert episodes, and
// scheduled-job history.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborwatch/harborwatch/pkg/alerts"
	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

// Store wraps a pgx connection pool. It satisfies hashgate.HashStore and
// alerts.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// Connect opens the pool and verifies connectivity.
func Connect(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, logger: log.WithComponent("store")}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LastHashes returns the last committed hash per external id for one
// (tenant, data source, entity kind) scope.
func (s *Store) LastHashes(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT external_id, data_hash
		FROM entity_hashes
		WHERE tenant_id = $1 AND data_source_id = $2 AND entity_kind = $3`,
		tenantID, dataSourceID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query entity hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)

	for rows.Next() {
		var externalID, hash string
		if err := rows.Scan(&externalID, &hash); err != nil {
			return nil, fmt.Errorf("scan entity hash: %w", err)
		}

		hashes[externalID] = hash
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity hashes: %w", err)
	}

	return hashes, nil
}

// SetHashes advances the committed hash for each external id in one
// transaction, so a partial failure never leaves the gate half-advanced.
func (s *Store) SetHashes(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind, hashes map[string]string) error {
	if len(hashes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin hash transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for externalID, hash := range hashes {
		_, err := tx.Exec(ctx, `
			INSERT INTO entity_hashes (tenant_id, data_source_id, entity_kind, external_id, data_hash, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (tenant_id, data_source_id, entity_kind, external_id) DO UPDATE
			SET data_hash = EXCLUDED.data_hash, updated_at = now()`,
			tenantID, dataSourceID, string(kind), externalID, hash)
		if err != nil {
			return fmt.Errorf("upsert hash for %s: %w", externalID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit hash transaction: %w", err)
	}

	return nil
}

// UpsertEntities writes the canonical snapshot for each normalized entity.
func (s *Store) UpsertEntities(ctx context.Context, tenantID string, entities []models.NormalizedEntity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin entity transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, e := range entities {
		_, err := tx.Exec(ctx, `
			INSERT INTO entities (tenant_id, entity_kind, external_id, site_id, data_hash, normalized, raw, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (tenant_id, entity_kind, external_id) DO UPDATE
			SET site_id = EXCLUDED.site_id,
			    data_hash = EXCLUDED.data_hash,
			    normalized = EXCLUDED.normalized,
			    raw = EXCLUDED.raw,
			    updated_at = now()`,
			tenantID, string(e.Kind), e.ExternalID, e.SiteID, e.Hash, e.Normalized, e.Raw)
		if err != nil {
			return fmt.Errorf("upsert entity %s/%s: %w", e.Kind, e.ExternalID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit entity transaction: %w", err)
	}

	return nil
}

// GetLatest returns the newest alert episode for the key, or nil when the
// entity was never flagged in this category.
func (s *Store) GetLatest(ctx context.Context, tenantID, entityID string, category models.AlertCategory) (*models.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, entity_id, category, severity, status, site_id,
		       findings, created_at, updated_at, resolved_at, version
		FROM alerts
		WHERE tenant_id = $1 AND entity_id = $2 AND category = $3
		ORDER BY created_at DESC
		LIMIT 1`,
		tenantID, entityID, string(category))

	alert, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query latest alert: %w", err)
	}

	return alert, nil
}

// Insert writes a new alert episode.
func (s *Store) Insert(ctx context.Context, alert *models.Alert) error {
	findings, err := json.Marshal(alert.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alerts (id, tenant_id, entity_id, category, severity, status, site_id,
		                    findings, created_at, updated_at, resolved_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		alert.ID, alert.TenantID, alert.EntityID, string(alert.Category),
		string(alert.Severity), string(alert.Status), alert.SiteID,
		findings, alert.CreatedAt, alert.UpdatedAt, alert.ResolvedAt, alert.Version)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", alert.ID, err)
	}

	return nil
}

// Update applies a compare-and-swap on version. A concurrent writer that
// advanced the row first surfaces as alerts.ErrReconcileConflict.
func (s *Store) Update(ctx context.Context, alert *models.Alert) error {
	findings, err := json.Marshal(alert.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts
		SET severity = $1, status = $2, findings = $3,
		    updated_at = $4, resolved_at = $5, version = version + 1
		WHERE id = $6 AND version = $7`,
		string(alert.Severity), string(alert.Status), findings,
		alert.UpdatedAt, alert.ResolvedAt, alert.ID, alert.Version)
	if err != nil {
		return fmt.Errorf("update alert %s: %w", alert.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return alerts.ErrReconcileConflict
	}

	alert.Version++

	return nil
}

// RecordJob persists one scheduled-job status row.
func (s *Store) RecordJob(ctx context.Context, job *models.ScheduledJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, tenant_id, data_source_id, entity_kind, status,
		                            consecutive_failures, last_error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    consecutive_failures = EXCLUDED.consecutive_failures,
		    last_error = EXCLUDED.last_error,
		    finished_at = EXCLUDED.finished_at`,
		job.ID, job.TenantID, job.DataSourceID, string(job.EntityKind), string(job.Status),
		job.ConsecutiveFailures, job.LastError, job.StartedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}

	return nil
}

// LastJob returns the most recent job row for the scope, or nil.
func (s *Store) LastJob(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind) (*models.ScheduledJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, data_source_id, entity_kind, status,
		       consecutive_failures, last_error, started_at, finished_at
		FROM scheduled_jobs
		WHERE tenant_id = $1 AND data_source_id = $2 AND entity_kind = $3
		ORDER BY started_at DESC
		LIMIT 1`,
		tenantID, dataSourceID, string(kind))

	var (
		job        models.ScheduledJob
		kindStr    string
		statusStr  string
		finishedAt *time.Time
	)

	err := row.Scan(&job.ID, &job.TenantID, &job.DataSourceID, &kindStr, &statusStr,
		&job.ConsecutiveFailures, &job.LastError, &job.StartedAt, &finishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query last job: %w", err)
	}

	job.EntityKind = models.EntityKind(kindStr)
	job.Status = models.JobStatus(statusStr)
	job.FinishedAt = finishedAt

	return &job, nil
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var (
		alert      models.Alert
		category   string
		severity   string
		status     string
		findings   []byte
		resolvedAt *time.Time
	)

	err := row.Scan(&alert.ID, &alert.TenantID, &alert.EntityID, &category, &severity,
		&status, &alert.SiteID, &findings, &alert.CreatedAt, &alert.UpdatedAt,
		&resolvedAt, &alert.Version)
	if err != nil {
		return nil, err
	}

	alert.Category = models.AlertCategory(category)
	alert.Severity = models.Severity(severity)
	alert.Status = models.AlertStatus(status)
	alert.ResolvedAt = resolvedAt

	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &alert.Findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings: %w", err)
		}
	}

	return &alert, nil
}
