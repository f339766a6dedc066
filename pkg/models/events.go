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

package models

import (
	"errors"
	"fmt"
	"time"
)

// FetchedEvent is the bus payload carrying one run's normalized entities to
// the analyzers. Consumers tolerate unknown additional fields and validate
// required fields before processing.
type FetchedEvent struct {
	TenantID        string             `json:"tenant_id"`
	DataSourceID    string             `json:"data_source_id"`
	IntegrationID   string             `json:"integration_id"`
	IntegrationType IntegrationType    `json:"integration_type"`
	EntityKind      EntityKind         `json:"entity_kind"`
	Entities        []NormalizedEntity `json:"entities"`
	CreatedAt       time.Time          `json:"created_at"`
}

var (
	errFetchedMissingTenant = errors.New("fetched event missing tenant id")
	errFetchedInvalidKind   = errors.New("fetched event has invalid entity kind")
	errFetchedEmptyBatch    = errors.New("fetched event has no entities")
	errFetchedInvalidEntity = errors.New("fetched event entity invalid")
)

// Validate checks the required fields before a fetched event is processed.
func (e *FetchedEvent) Validate() error {
	if e.TenantID == "" {
		return errFetchedMissingTenant
	}

	if !e.EntityKind.Valid() {
		return fmt.Errorf("%w: %q", errFetchedInvalidKind, e.EntityKind)
	}

	if len(e.Entities) == 0 {
		return errFetchedEmptyBatch
	}

	for i := range e.Entities {
		ent := &e.Entities[i]
		if ent.ExternalID == "" || ent.Hash == "" {
			return fmt.Errorf("%w: index %d", errFetchedInvalidEntity, i)
		}
	}

	return nil
}
