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

// Package adapters fetches raw provider data for one (tenant, data source,
// entity kind) unit of work. Provider HTTP mechanics (OAuth, pagination,
// backoff) live behind the injected client interfaces; the adapters own the
// shape of data entering the pipeline, nothing else.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

// Adapter fetches raw provider data for the requested entity kind only. A
// call returns an empty batch for "no data" and fails with a *FetchError on
// authentication, rate-limit, or transport failure. Adapters never write to
// storage or the message bus.
type Adapter interface {
	IntegrationType() models.IntegrationType
	// VolatileKeys names raw-payload fields the content-hash gate strips
	// before canonicalization (response timestamps and similar provider
	// metadata).
	VolatileKeys() []string
	Fetch(ctx context.Context, req models.FetchRequest) (*models.RawBatch, error)
}

// Page is one cursor-bounded slice of raw provider records returned by a
// client call.
type Page struct {
	Items      []json.RawMessage
	NextCursor string
}

// Factory builds an adapter bound to one data source.
type Factory func(ds *models.DataSource, log logger.Logger) (Adapter, error)

// Registry maps integration types to adapter factories. The mapping is
// closed: registered at startup, looked up per run.
type Registry map[models.IntegrationType]Factory

// New builds an adapter for the data source's integration type.
func (r Registry) New(ds *models.DataSource, log logger.Logger) (Adapter, error) {
	factory, ok := r[ds.IntegrationType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownIntegration, ds.IntegrationType)
	}

	return factory(ds, log)
}

// Clients bundles the injected provider clients for DefaultRegistry.
type Clients struct {
	Microsoft365 GraphClient
	NinjaOne     NinjaOneClient
	HaloPSA      HaloPSAClient
	SentinelOne  SentinelOneClient
	FortiGate    FortiGateClient
}

// DefaultRegistry wires every supported integration to its adapter.
func DefaultRegistry(clients Clients) Registry {
	return Registry{
		models.IntegrationMicrosoft365: func(ds *models.DataSource, log logger.Logger) (Adapter, error) {
			return NewMicrosoft365(ds, clients.Microsoft365, log), nil
		},
		models.IntegrationNinjaOne: func(ds *models.DataSource, log logger.Logger) (Adapter, error) {
			return NewNinjaOne(ds, clients.NinjaOne, log), nil
		},
		models.IntegrationHaloPSA: func(ds *models.DataSource, log logger.Logger) (Adapter, error) {
			return NewHaloPSA(ds, clients.HaloPSA, log), nil
		},
		models.IntegrationSentinelOne: func(ds *models.DataSource, log logger.Logger) (Adapter, error) {
			return NewSentinelOne(ds, clients.SentinelOne, log), nil
		},
		models.IntegrationFortiGate: func(ds *models.DataSource, log logger.Logger) (Adapter, error) {
			return NewFortiGate(ds, clients.FortiGate, log), nil
		},
	}
}

// stringField extracts a top-level field from a raw payload as a string.
// Numeric ids are formatted without a float mantissa.
func stringField(raw json.RawMessage, key string) string {
	if key == "" {
		return ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}

	val, ok := fields[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(val, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(val, &n); err == nil {
		return n.String()
	}

	return ""
}

// toRecords converts a provider page into raw records, extracting the
// provider-native id and optional site scoping. Records left without an
// external id are surfaced by the gate, not silently repaired here.
func toRecords(items []json.RawMessage, idKey, siteKey string) []models.RawRecord {
	records := make([]models.RawRecord, 0, len(items))

	for _, item := range items {
		records = append(records, models.RawRecord{
			ExternalID:     stringField(item, idKey),
			RawData:        item,
			ExternalSiteID: stringField(item, siteKey),
		})
	}

	return records
}
