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

// Package processors normalizes provider-specific payloads into canonical
// entity records. One processor per entity kind, each holding a closed
// mapping from integration type to a pure normalizer function registered at
// startup.
package processors

import (
	"time"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

// NormalizerFunc maps one gated payload into a canonical entity record.
// Normalizers are pure: no I/O, no external calls, total over their
// declared input shape.
type NormalizerFunc func(payload models.DataFetchPayload) (models.NormalizedEntity, error)

// Processor normalizes payloads for a single entity kind.
type Processor struct {
	kind        models.EntityKind
	normalizers map[models.IntegrationType]NormalizerFunc
	logger      logger.Logger
}

// New builds a processor with its normalizer mapping.
func New(kind models.EntityKind, normalizers map[models.IntegrationType]NormalizerFunc, log logger.Logger) *Processor {
	return &Processor{
		kind:        kind,
		normalizers: normalizers,
		logger:      log.WithComponent("processor." + string(kind)),
	}
}

// Kind returns the entity kind this processor serves.
func (p *Processor) Kind() models.EntityKind {
	return p.kind
}

// Normalize dispatches to the integration's normalizer. An unknown
// integration type logs NORMALIZER_NOT_FOUND and returns an empty slice;
// it never panics, so other entity kinds' processors continue unaffected.
// Per-record normalization failures are logged and skipped.
func (p *Processor) Normalize(integration models.IntegrationType, payloads []models.DataFetchPayload) []models.NormalizedEntity {
	normalize, ok := p.normalizers[integration]
	if !ok {
		p.logger.Error().
			Str("error_code", "NORMALIZER_NOT_FOUND").
			Str("integration_type", string(integration)).
			Str("entity_kind", string(p.kind)).
			Msg("No normalizer registered for integration type")

		return []models.NormalizedEntity{}
	}

	entities := make([]models.NormalizedEntity, 0, len(payloads))

	for _, payload := range payloads {
		entity, err := normalize(payload)
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("integration_type", string(integration)).
				Str("external_id", payload.ExternalID).
				Str("entity_kind", string(p.kind)).
				Msg("Failed to normalize record; skipping")

			continue
		}

		entities = append(entities, entity)
	}

	return entities
}

// Registry maps entity kinds to their processor.
type Registry map[models.EntityKind]*Processor

// For looks up the processor for an entity kind.
func (r Registry) For(kind models.EntityKind) (*Processor, bool) {
	p, ok := r[kind]
	return p, ok
}

// DefaultRegistry wires every supported (entity kind, integration type)
// normalizer.
func DefaultRegistry(log logger.Logger) Registry {
	return Registry{
		models.EntityEndpoints: New(models.EntityEndpoints, map[models.IntegrationType]NormalizerFunc{
			models.IntegrationNinjaOne:    normalizeNinjaOneEndpoint,
			models.IntegrationSentinelOne: normalizeSentinelOneEndpoint,
		}, log),
		models.EntityIdentities: New(models.EntityIdentities, map[models.IntegrationType]NormalizerFunc{
			models.IntegrationMicrosoft365: normalizeMicrosoft365Identity,
		}, log),
		models.EntityLicenses: New(models.EntityLicenses, map[models.IntegrationType]NormalizerFunc{
			models.IntegrationMicrosoft365: normalizeMicrosoft365License,
		}, log),
		models.EntityRoles: New(models.EntityRoles, map[models.IntegrationType]NormalizerFunc{
			models.IntegrationMicrosoft365: normalizeMicrosoft365Role,
		}, log),
		models.EntityCompanies: New(models.EntityCompanies, map[models.IntegrationType]NormalizerFunc{
			models.IntegrationMicrosoft365: normalizeMicrosoft365Company,
			models.IntegrationNinjaOne:     normalizeNinjaOneCompany,
			models.IntegrationHaloPSA:      normalizeHaloPSACompany,
		}, log),
		models.EntityFirewalls: New(models.EntityFirewalls, map[models.IntegrationType]NormalizerFunc{
			models.IntegrationFortiGate: normalizeFortiGateFirewall,
		}, log),
	}
}

// parseTime parses an RFC3339 provider timestamp. Missing or malformed
// values default to the Unix epoch, not a zero time, so downstream
// staleness analyzers keep a total ordering.
func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Unix(0, 0).UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Unix(0, 0).UTC()
	}

	return t.UTC()
}
