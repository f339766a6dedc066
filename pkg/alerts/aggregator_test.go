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

package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

func mfaEvent(findings []models.EntityFinding, examined []string) *models.AnalysisEvent {
	return &models.AnalysisEvent{
		AnalysisID:      "a1",
		TenantID:        "t1",
		DataSourceID:    "ds1",
		IntegrationID:   "i1",
		IntegrationType: models.IntegrationMicrosoft365,
		AnalysisType:    models.AnalysisMFAPosture,
		EntityKind:      models.EntityIdentities,
		Findings:        findings,
		Examined:        examined,
		CreatedAt:       time.Now().UTC(),
	}
}

func TestReconcileOpensAlert(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store, logger.NewTestLogger())

	deltas, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityHigh}},
		[]string{"u1"},
	))
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, models.AlertOpened, deltas[0].Transition)

	latest, err := store.GetLatest(ctx, "t1", "u1", models.AlertCategoryMFAPosture)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AlertStatusOpen, latest.Status)
	assert.Equal(t, models.SeverityHigh, latest.Severity)
	assert.EqualValues(t, 1, latest.Version)
}

func TestReconcileSeverityMergeIsCommutative(t *testing.T) {
	ctx := context.Background()
	severities := []models.Severity{models.SeverityMedium, models.SeverityCritical, models.SeverityLow}

	orders := [][]int{
		{0, 1, 2}, {0, 2, 1},
		{1, 0, 2}, {1, 2, 0},
		{2, 0, 1}, {2, 1, 0},
	}

	for _, order := range orders {
		store := NewMemStore()
		agg := New(store, logger.NewTestLogger())

		for _, i := range order {
			_, err := agg.Reconcile(ctx, mfaEvent(
				[]models.EntityFinding{{EntityID: "u1", Severity: severities[i]}},
				[]string{"u1"},
			))
			require.NoError(t, err)
		}

		latest, err := store.GetLatest(ctx, "t1", "u1", models.AlertCategoryMFAPosture)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, models.SeverityCritical, latest.Severity)
		assert.Len(t, store.Episodes("t1", "u1", models.AlertCategoryMFAPosture), 1)
	}
}

func TestReconcileAccumulatesContributingFindings(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store, logger.NewTestLogger())

	_, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityMedium}},
		[]string{"u1"},
	))
	require.NoError(t, err)

	_, err = agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityHigh}},
		[]string{"u1"},
	))
	require.NoError(t, err)

	latest, err := store.GetLatest(ctx, "t1", "u1", models.AlertCategoryMFAPosture)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.SeverityHigh, latest.Severity)
	require.Len(t, latest.Findings, 2)
	assert.Equal(t, models.SeverityMedium, latest.Findings[0].Severity)
	assert.Equal(t, models.SeverityHigh, latest.Findings[1].Severity)
}

func TestReconcileResolvesExaminedButNotFlagged(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store, logger.NewTestLogger())

	_, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityHigh}},
		[]string{"u1"},
	))
	require.NoError(t, err)

	deltas, err := agg.Reconcile(ctx, mfaEvent(nil, []string{"u1"}))
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, models.AlertResolved, deltas[0].Transition)

	latest, err := store.GetLatest(ctx, "t1", "u1", models.AlertCategoryMFAPosture)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AlertStatusResolved, latest.Status)
	require.NotNil(t, latest.ResolvedAt)
}

func TestReconcileDoesNotTouchUnexaminedEntities(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store, logger.NewTestLogger())

	_, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityHigh}},
		[]string{"u1"},
	))
	require.NoError(t, err)

	// A later pass over a different subset must not resolve u1.
	deltas, err := agg.Reconcile(ctx, mfaEvent(nil, []string{"u2"}))
	require.NoError(t, err)
	assert.Empty(t, deltas)

	latest, err := store.GetLatest(ctx, "t1", "u1", models.AlertCategoryMFAPosture)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.AlertStatusOpen, latest.Status)
}

func TestReconcileReopensAsNewEpisode(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store, logger.NewTestLogger())

	_, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityHigh}},
		[]string{"u1"},
	))
	require.NoError(t, err)

	_, err = agg.Reconcile(ctx, mfaEvent(nil, []string{"u1"}))
	require.NoError(t, err)

	deltas, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityMedium}},
		[]string{"u1"},
	))
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, models.AlertReopened, deltas[0].Transition)

	episodes := store.Episodes("t1", "u1", models.AlertCategoryMFAPosture)
	require.Len(t, episodes, 2)
	assert.Equal(t, models.AlertStatusResolved, episodes[0].Status)
	assert.Equal(t, models.AlertStatusOpen, episodes[1].Status)
	assert.NotEqual(t, episodes[0].ID, episodes[1].ID)
	assert.Equal(t, models.SeverityMedium, episodes[1].Severity)
}

func TestReconcileRejectsInvalidEvent(t *testing.T) {
	agg := New(NewMemStore(), logger.NewTestLogger())

	event := mfaEvent(nil, nil)
	event.TenantID = ""

	_, err := agg.Reconcile(context.Background(), event)
	assert.Error(t, err)
}

// conflictStore fails the first n updates with ErrReconcileConflict to
// exercise the retry loop.
type conflictStore struct {
	*MemStore
	remaining int
}

func (s *conflictStore) Update(ctx context.Context, alert *models.Alert) error {
	if s.remaining > 0 {
		s.remaining--
		return ErrReconcileConflict
	}

	return s.MemStore.Update(ctx, alert)
}

func TestReconcileRetriesOnVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{MemStore: NewMemStore(), remaining: 1}
	agg := New(store, logger.NewTestLogger())

	_, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityLow}},
		[]string{"u1"},
	))
	require.NoError(t, err)

	deltas, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityHigh}},
		[]string{"u1"},
	))
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, models.AlertUpdated, deltas[0].Transition)
	assert.Equal(t, models.SeverityHigh, deltas[0].Alert.Severity)
}

func TestReconcileGivesUpAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{MemStore: NewMemStore(), remaining: maxReconcileAttempts + 1}
	agg := New(store, logger.NewTestLogger())

	_, err := agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityLow}},
		[]string{"u1"},
	))
	require.NoError(t, err)

	_, err = agg.Reconcile(ctx, mfaEvent(
		[]models.EntityFinding{{EntityID: "u1", Severity: models.SeverityHigh}},
		[]string{"u1"},
	))
	assert.ErrorIs(t, err, errConflictExhausted)
}
