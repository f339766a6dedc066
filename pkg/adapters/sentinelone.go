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

package adapters

import (
	"context"
	"fmt"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

// SentinelOneClient is the injected endpoint-security console capability.
type SentinelOneClient interface {
	ListAgents(ctx context.Context, ds *models.DataSource, cursor string) (Page, error)
}

type sentinelOneAdapter struct {
	ds     *models.DataSource
	client SentinelOneClient
	logger logger.Logger
}

// NewSentinelOne builds the endpoint-security adapter for one data source.
func NewSentinelOne(ds *models.DataSource, client SentinelOneClient, log logger.Logger) Adapter {
	return &sentinelOneAdapter{
		ds:     ds,
		client: client,
		logger: log.WithComponent("adapter.sentinelone"),
	}
}

func (*sentinelOneAdapter) IntegrationType() models.IntegrationType {
	return models.IntegrationSentinelOne
}

func (*sentinelOneAdapter) VolatileKeys() []string {
	return []string{"updatedAt", "scanStartedAt"}
}

func (a *sentinelOneAdapter) Fetch(ctx context.Context, req models.FetchRequest) (*models.RawBatch, error) {
	if req.EntityKind != models.EntityEndpoints {
		return nil, fmt.Errorf("%w: %s/%s", errUnsupportedEntity, models.IntegrationSentinelOne, req.EntityKind)
	}

	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Str("data_source_id", a.ds.ID).
		Msg("Fetch started")

	page, err := a.client.ListAgents(ctx, a.ds, req.Cursor)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("tenant_id", a.ds.TenantID).
			Msg("Fetch failed")

		return nil, &FetchError{Provider: models.IntegrationSentinelOne, TenantID: a.ds.TenantID, Err: err}
	}

	batch := &models.RawBatch{
		Records:    toRecords(page.Items, "id", "siteId"),
		NextCursor: page.NextCursor,
	}

	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Int("records", len(batch.Records)).
		Msg("Fetch succeeded")

	return batch, nil
}
