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

// GraphClient is the injected Microsoft Graph capability. Token exchange
// and @odata.nextLink pagination happen behind it.
type GraphClient interface {
	ListUsers(ctx context.Context, ds *models.DataSource, cursor string) (Page, error)
	ListSubscribedSKUs(ctx context.Context, ds *models.DataSource, cursor string) (Page, error)
	ListDirectoryRoles(ctx context.Context, ds *models.DataSource, cursor string) (Page, error)
	ListOrganizations(ctx context.Context, ds *models.DataSource, cursor string) (Page, error)
}

type microsoft365Adapter struct {
	ds     *models.DataSource
	client GraphClient
	logger logger.Logger
}

// NewMicrosoft365 builds the identity-provider adapter for one data source.
func NewMicrosoft365(ds *models.DataSource, client GraphClient, log logger.Logger) Adapter {
	return &microsoft365Adapter{
		ds:     ds,
		client: client,
		logger: log.WithComponent("adapter.microsoft365"),
	}
}

func (*microsoft365Adapter) IntegrationType() models.IntegrationType {
	return models.IntegrationMicrosoft365
}

func (*microsoft365Adapter) VolatileKeys() []string {
	return []string{"@odata.context", "@odata.etag", "retrievedDateTime"}
}

func (a *microsoft365Adapter) Fetch(ctx context.Context, req models.FetchRequest) (*models.RawBatch, error) {
	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Str("data_source_id", a.ds.ID).
		Str("entity_kind", string(req.EntityKind)).
		Msg("Fetch started")

	var (
		page  Page
		err   error
		idKey = "id"
	)

	switch req.EntityKind {
	case models.EntityIdentities:
		page, err = a.client.ListUsers(ctx, a.ds, req.Cursor)
	case models.EntityLicenses:
		idKey = "skuId"
		page, err = a.client.ListSubscribedSKUs(ctx, a.ds, req.Cursor)
	case models.EntityRoles:
		page, err = a.client.ListDirectoryRoles(ctx, a.ds, req.Cursor)
	case models.EntityCompanies:
		page, err = a.client.ListOrganizations(ctx, a.ds, req.Cursor)
	default:
		return nil, fmt.Errorf("%w: %s/%s", errUnsupportedEntity, models.IntegrationMicrosoft365, req.EntityKind)
	}

	if err != nil {
		a.logger.Error().
			Err(err).
			Str("tenant_id", a.ds.TenantID).
			Str("entity_kind", string(req.EntityKind)).
			Msg("Fetch failed")

		return nil, &FetchError{Provider: models.IntegrationMicrosoft365, TenantID: a.ds.TenantID, Err: err}
	}

	batch := &models.RawBatch{
		Records:    toRecords(page.Items, idKey, ""),
		NextCursor: page.NextCursor,
	}

	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Str("entity_kind", string(req.EntityKind)).
		Int("records", len(batch.Records)).
		Msg("Fetch succeeded")

	return batch, nil
}
