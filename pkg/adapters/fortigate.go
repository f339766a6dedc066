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

// FortiGateClient is the injected firewall-management capability.
type FortiGateClient interface {
	ListFirewalls(ctx context.Context, ds *models.DataSource, cursor string) (Page, error)
}

type fortiGateAdapter struct {
	ds     *models.DataSource
	client FortiGateClient
	logger logger.Logger
}

// NewFortiGate builds the firewall adapter for one data source.
func NewFortiGate(ds *models.DataSource, client FortiGateClient, log logger.Logger) Adapter {
	return &fortiGateAdapter{
		ds:     ds,
		client: client,
		logger: log.WithComponent("adapter.fortigate"),
	}
}

func (*fortiGateAdapter) IntegrationType() models.IntegrationType {
	return models.IntegrationFortiGate
}

func (*fortiGateAdapter) VolatileKeys() []string {
	return []string{"checked_at", "uptime_seconds"}
}

func (a *fortiGateAdapter) Fetch(ctx context.Context, req models.FetchRequest) (*models.RawBatch, error) {
	if req.EntityKind != models.EntityFirewalls {
		return nil, fmt.Errorf("%w: %s/%s", errUnsupportedEntity, models.IntegrationFortiGate, req.EntityKind)
	}

	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Str("data_source_id", a.ds.ID).
		Msg("Fetch started")

	page, err := a.client.ListFirewalls(ctx, a.ds, req.Cursor)
	if err != nil {
		a.logger.Error().
			Err(err).
			Str("tenant_id", a.ds.TenantID).
			Msg("Fetch failed")

		return nil, &FetchError{Provider: models.IntegrationFortiGate, TenantID: a.ds.TenantID, Err: err}
	}

	batch := &models.RawBatch{
		Records:    toRecords(page.Items, "serial", ""),
		NextCursor: page.NextCursor,
	}

	a.logger.Info().
		Str("tenant_id", a.ds.TenantID).
		Int("records", len(batch.Records)).
		Msg("Fetch succeeded")

	return batch, nil
}
