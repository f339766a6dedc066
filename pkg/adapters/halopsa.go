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

// HaloPSAClient is the injected PSA capability.
type HaloPSAClient interface {
	ListClients(ctx context.Context, ds *models.DataSource, cursor string) (Page, error)
}

type haloPSAAdapter struct {
	ds     *models.DataSource
	client HaloPSAClient
	logger logger.Logger
}

// NewHaloPSA builds the PSA adapter for one data source.
func NewHaloPSA(ds *models.DataSource, client HaloPSAClient, log logger.Logger) Adapter {
	return &haloPSAAdapter{
		ds:     ds,
		client: client,
		logger: log.WithComponent("adapter.halopsa"),
	}
}

func (*haloPSAAdapter) IntegrationType() models.IntegrationType {
	return models.IntegrationHaloPSA
}

func (*haloPSAAdapter) VolatileKeys() []string {
	return []string{"record_count", "pageinate"}
}

func (a *haloPSAAdapter) Fetch(ctx context.Context, req models.FetchRequest) (*models.RawBatch, error) {
	if req.EntityKind != models.EntityCompanies {
		return nil, fmt.Errorf("%w: %s/%s", errUnsupportedEntity, models.IntegrationHaloPSA, req.EntityKind)
	}

	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Str("data_source_id", a.ds.ID).
		Msg("Fetch started")

	page, err := a.client.ListClients(ctx, a.ds, req.Cursor)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("tenant_id", a.ds.TenantID).
			Msg("Fetch failed")

		return nil, &FetchError{Provider: models.IntegrationHaloPSA, TenantID: a.ds.TenantID, Err: err}
	}

	batch := &models.RawBatch{
		Records:    toRecords(page.Items, "id", ""),
		NextCursor: page.NextCursor,
	}

	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Int("records", len(batch.Records)).
		Msg("Fetch succeeded")

	return batch, nil
}
