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
	"encoding/json"
	"errors"
	"fmt"
)

// EntityKind identifies one canonical entity type.
type EntityKind string

const (
	EntityCompanies  EntityKind = "companies"
	EntityEndpoints  EntityKind = "endpoints"
	EntityIdentities EntityKind = "identities"
	EntityFirewalls  EntityKind = "firewalls"
	EntityLicenses   EntityKind = "licenses"
	EntityRoles      EntityKind = "roles"
)

// EntityKinds lists every supported kind, in subject order.
func EntityKinds() []EntityKind {
	return []EntityKind{
		EntityCompanies,
		EntityEndpoints,
		EntityIdentities,
		EntityFirewalls,
		EntityLicenses,
		EntityRoles,
	}
}

// Valid reports whether k names a supported entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityCompanies, EntityEndpoints, EntityIdentities,
		EntityFirewalls, EntityLicenses, EntityRoles:
		return true
	default:
		return false
	}
}

// IntegrationType identifies one external provider integration.
type IntegrationType string

const (
	IntegrationMicrosoft365 IntegrationType = "microsoft365"
	IntegrationNinjaOne     IntegrationType = "ninjaone"
	IntegrationHaloPSA      IntegrationType = "halopsa"
	IntegrationSentinelOne  IntegrationType = "sentinelone"
	IntegrationFortiGate    IntegrationType = "fortigate"
)

// FetchRequest describes one unit of adapter work. Cursor and Filters are
// provider-specific; the pipeline passes them through opaquely.
type FetchRequest struct {
	EntityKind EntityKind        `json:"entity_kind"`
	Cursor     string            `json:"cursor,omitempty"`
	Filters    map[string]string `json:"filters,omitempty"`
}

// RawRecord is the ephemeral unit produced by an adapter. ExternalID is the
// provider-native stable identifier; adapters extract it so the content-hash
// gate can key prior state before normalization runs.
type RawRecord struct {
	ExternalID     string          `json:"external_id"`
	RawData        json.RawMessage `json:"raw_data"`
	ExternalSiteID string          `json:"external_site_id,omitempty"`
}

// RawBatch is the result of a single adapter fetch call.
type RawBatch struct {
	Records    []RawRecord `json:"records"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// DataFetchPayload is a RawRecord that passed the content-hash gate,
// annotated with its hash and optional tenant-site resolution. This is the
// unit a processor consumes.
type DataFetchPayload struct {
	ExternalID string          `json:"external_id"`
	RawData    json.RawMessage `json:"raw_data"`
	DataHash   string          `json:"data_hash"`
	SiteID     string          `json:"site_id,omitempty"`
}

// NormalizedEntity is an immutable record produced by a processor. The
// Normalized field holds the canonical entity serialized as JSON so the
// record can cross the bus without a type parameter on the wire.
type NormalizedEntity struct {
	ExternalID string          `json:"external_id"`
	Kind       EntityKind      `json:"kind"`
	Raw        json.RawMessage `json:"raw"`
	Hash       string          `json:"hash"`
	SiteID     string          `json:"site_id,omitempty"`
	Normalized json.RawMessage `json:"normalized"`
}

var errEmptyExternalID = errors.New("normalized entity requires a non-empty external id")

// NewNormalizedEntity builds a NormalizedEntity from a gated payload and its
// canonical form. It enforces the non-empty external id invariant.
func NewNormalizedEntity[T any](kind EntityKind, payload DataFetchPayload, normalized T) (NormalizedEntity, error) {
	if payload.ExternalID == "" {
		return NormalizedEntity{}, errEmptyExternalID
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return NormalizedEntity{}, fmt.Errorf("marshal normalized %s: %w", kind, err)
	}

	return NormalizedEntity{
		ExternalID: payload.ExternalID,
		Kind:       kind,
		Raw:        payload.RawData,
		Hash:       payload.DataHash,
		SiteID:     payload.SiteID,
		Normalized: data,
	}, nil
}

// Decode unmarshals the canonical form into v.
func (e NormalizedEntity) Decode(v any) error {
	return json.Unmarshal(e.Normalized, v)
}
