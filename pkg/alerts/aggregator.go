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

// Package alerts reconciles analysis events into composite alerts keyed by
// (tenant, entity, category). Severity merges take the maximum, so the
// merge is commutative and analyzer arrival order never changes the
// outcome.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

// maxReconcileAttempts bounds the compare-and-swap retry loop when two
// analysis events race on the same alert key.
const maxReconcileAttempts = 3

var (
	// ErrReconcileConflict is returned by Store.Update when the alert's
	// version no longer matches; the aggregator re-reads and retries.
	ErrReconcileConflict = errors.New("alert version conflict")

	errUnknownAnalysisType = errors.New("no alert category for analysis type")
	errConflictExhausted   = errors.New("reconcile retries exhausted")
)

// Store is the alert persistence contract. GetLatest returns the most
// recent episode for the key, open or resolved, or nil when the entity has
// never been flagged. Update applies a compare-and-swap on Alert.Version
// and bumps it on success.
type Store interface {
	GetLatest(ctx context.Context, tenantID, entityID string, category models.AlertCategory) (*models.Alert, error)
	Insert(ctx context.Context, alert *models.Alert) error
	Update(ctx context.Context, alert *models.Alert) error
}

// Aggregator folds analysis events into alert state.
type Aggregator struct {
	store  Store
	logger logger.Logger
	nowFn  func() time.Time
}

// New creates an aggregator over the given store.
func New(store Store, log logger.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: log.WithComponent("alerts"),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile applies one analysis event and returns the resulting state
// changes. Flagged entities open or update alerts; entities the pass
// examined but did not flag resolve their open alert. Entities the pass
// never examined are left untouched, so a partial pass cannot mass-resolve.
func (a *Aggregator) Reconcile(ctx context.Context, event *models.AnalysisEvent) ([]models.AlertDelta, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis event: %w", err)
	}

	category, ok := models.CategoryForAnalysis(event.AnalysisType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownAnalysisType, event.AnalysisType)
	}

	flagged := make(map[string]models.EntityFinding, len(event.Findings))
	for _, f := range event.Findings {
		flagged[f.EntityID] = f
	}

	deltas := make([]models.AlertDelta, 0, len(event.Findings))

	for _, f := range event.Findings {
		delta, err := a.reconcileFinding(ctx, event, category, f)
		if err != nil {
			return deltas, err
		}

		deltas = append(deltas, delta)
	}

	for _, entityID := range event.Examined {
		if _, ok := flagged[entityID]; ok {
			continue
		}

		delta, resolved, err := a.resolveIfOpen(ctx, event.TenantID, entityID, category)
		if err != nil {
			return deltas, err
		}

		if resolved {
			deltas = append(deltas, delta)
		}
	}

	return deltas, nil
}

func (a *Aggregator) reconcileFinding(
	ctx context.Context,
	event *models.AnalysisEvent,
	category models.AlertCategory,
	finding models.EntityFinding,
) (models.AlertDelta, error) {
	for attempt := 0; attempt < maxReconcileAttempts; attempt++ {
		latest, err := a.store.GetLatest(ctx, event.TenantID, finding.EntityID, category)
		if err != nil {
			return models.AlertDelta{}, fmt.Errorf("load alert for %s: %w", finding.EntityID, err)
		}

		now := a.nowFn()

		if latest == nil || latest.Status == models.AlertStatusResolved {
			alert := models.Alert{
				ID:        uuid.NewString(),
				TenantID:  event.TenantID,
				EntityID:  finding.EntityID,
				Category:  category,
				Severity:  finding.Severity,
				Status:    models.AlertStatusOpen,
				Findings:  []models.EntityFinding{finding},
				CreatedAt: now,
				UpdatedAt: now,
				Version:   1,
			}

			if err := a.store.Insert(ctx, &alert); err != nil {
				return models.AlertDelta{}, fmt.Errorf("insert alert for %s: %w", finding.EntityID, err)
			}

			transition := models.AlertOpened
			if latest != nil {
				transition = models.AlertReopened
			}

			a.logger.Info().
				Str("tenant_id", event.TenantID).
				Str("entity_id", finding.EntityID).
				Str("category", string(category)).
				Str("severity", string(finding.Severity)).
				Str("transition", string(transition)).
				Msg("Alert episode opened")

			return models.AlertDelta{Transition: transition, Alert: alert}, nil
		}

		// Severity only ever ratchets up within an episode; each pass
		// appends its finding to the contributing list.
		updated := *latest
		updated.Severity = models.MaxSeverity(latest.Severity, finding.Severity)
		updated.Findings = append(append([]models.EntityFinding{}, latest.Findings...), finding)
		updated.UpdatedAt = now

		err = a.store.Update(ctx, &updated)
		if errors.Is(err, ErrReconcileConflict) {
			continue
		}

		if err != nil {
			return models.AlertDelta{}, fmt.Errorf("update alert %s: %w", latest.ID, err)
		}

		return models.AlertDelta{Transition: models.AlertUpdated, Alert: updated}, nil
	}

	return models.AlertDelta{}, fmt.Errorf("%w: entity %s", errConflictExhausted, finding.EntityID)
}

func (a *Aggregator) resolveIfOpen(
	ctx context.Context,
	tenantID, entityID string,
	category models.AlertCategory,
) (models.AlertDelta, bool, error) {
	for attempt := 0; attempt < maxReconcileAttempts; attempt++ {
		latest, err := a.store.GetLatest(ctx, tenantID, entityID, category)
		if err != nil {
			return models.AlertDelta{}, false, fmt.Errorf("load alert for %s: %w", entityID, err)
		}

		if latest == nil || latest.Status != models.AlertStatusOpen {
			return models.AlertDelta{}, false, nil
		}

		now := a.nowFn()

		resolved := *latest
		resolved.Status = models.AlertStatusResolved
		resolved.ResolvedAt = &now
		resolved.UpdatedAt = now

		err = a.store.Update(ctx, &resolved)
		if errors.Is(err, ErrReconcileConflict) {
			continue
		}

		if err != nil {
			return models.AlertDelta{}, false, fmt.Errorf("resolve alert %s: %w", latest.ID, err)
		}

		a.logger.Info().
			Str("tenant_id", tenantID).
			Str("entity_id", entityID).
			Str("category", string(category)).
			Msg("Alert resolved")

		return models.AlertDelta{Transition: models.AlertResolved, Alert: resolved}, true, nil
	}

	return models.AlertDelta{}, false, fmt.Errorf("%w: entity %s", errConflictExhausted, entityID)
}
