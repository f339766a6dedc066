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

// Package hashgate deduplicates provider snapshots. Providers return full
// snapshots on every poll; without this gate every poll would re-normalize
// and re-publish every record.
package hashgate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

// HashStore reads and advances the last known hash per external id for one
// (tenant, data source, entity kind). Implementations are transactional at
// the single-record grain.
type HashStore interface {
	LastHashes(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind) (map[string]string, error)
	SetHashes(ctx context.Context, tenantID, dataSourceID string, kind models.EntityKind, hashes map[string]string) error
}

// Hash computes a deterministic digest over the semantically meaningful
// fields of a raw payload. The payload is canonicalized (key-sorted JSON,
// volatile keys stripped) before hashing so key-order nondeterminism in the
// provider response never changes the digest.
func Hash(raw json.RawMessage, volatileKeys []string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return "", fmt.Errorf("decode raw payload: %w", err)
	}

	stripVolatile(value, volatileKeys)

	// encoding/json marshals map keys in sorted order, which gives the
	// canonical serialization.
	canonical, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("canonicalize raw payload: %w", err)
	}

	sum := sha256.Sum256(canonical)

	return hex.EncodeToString(sum[:]), nil
}

func stripVolatile(value interface{}, keys []string) {
	if len(keys) == 0 {
		return
	}

	switch v := value.(type) {
	case map[string]interface{}:
		for _, key := range keys {
			delete(v, key)
		}

		for _, nested := range v {
			stripVolatile(nested, keys)
		}
	case []interface{}:
		for _, item := range v {
			stripVolatile(item, keys)
		}
	}
}

// ShouldProcess reports whether a record changed since the last successful
// run. Equal hashes short-circuit the rest of the pipeline.
func ShouldProcess(hash, previous string) bool {
	return hash != previous
}

// FilterStats summarizes one gate pass.
type FilterStats struct {
	Fetched   int
	Changed   int
	Unchanged int
	Dropped   int
}

// Gate filters a raw batch down to the records that changed since the last
// run for that (tenant, data source, entity kind).
type Gate struct {
	store  HashStore
	logger logger.Logger
}

// New creates a Gate over the given hash store.
func New(store HashStore, log logger.Logger) *Gate {
	return &Gate{
		store:  store,
		logger: log.WithComponent("hashgate"),
	}
}

// Filter hashes each record and drops the unchanged ones. Per-record
// failures (missing external id, malformed payload) are logged and isolated
// to that record; the rest of the batch proceeds. The returned hash map
// covers the changed records only and must be written back through
// SetHashes after the run's publish succeeds, never before.
func (g *Gate) Filter(
	ctx context.Context,
	tenantID, dataSourceID string,
	kind models.EntityKind,
	records []models.RawRecord,
	volatileKeys []string,
) ([]models.DataFetchPayload, map[string]string, FilterStats, error) {
	previous, err := g.store.LastHashes(ctx, tenantID, dataSourceID, kind)
	if err != nil {
		return nil, nil, FilterStats{}, fmt.Errorf("load previous hashes: %w", err)
	}

	stats := FilterStats{Fetched: len(records)}
	payloads := make([]models.DataFetchPayload, 0, len(records))
	changed := make(map[string]string)

	for i := range records {
		rec := &records[i]

		if rec.ExternalID == "" {
			stats.Dropped++
			g.logger.Warn().
				Str("error_code", "MISSING_EXTERNAL_ID").
				Str("tenant_id", tenantID).
				Str("data_source_id", dataSourceID).
				Str("entity_kind", string(kind)).
				Msg("Record has no stable provider id; dropping")

			continue
		}

		hash, hashErr := Hash(rec.RawData, volatileKeys)
		if hashErr != nil {
			stats.Dropped++
			g.logger.Warn().
				Err(hashErr).
				Str("error_code", "HASH_COMPUTATION_ERROR").
				Str("tenant_id", tenantID).
				Str("external_id", rec.ExternalID).
				Str("entity_kind", string(kind)).
				Msg("Failed to hash record; dropping")

			continue
		}

		if !ShouldProcess(hash, previous[rec.ExternalID]) {
			stats.Unchanged++
			continue
		}

		stats.Changed++
		changed[rec.ExternalID] = hash
		payloads = append(payloads, models.DataFetchPayload{
			ExternalID: rec.ExternalID,
			RawData:    rec.RawData,
			DataHash:   hash,
			SiteID:     rec.ExternalSiteID,
		})
	}

	return payloads, changed, stats, nil
}

// Commit advances the stored hashes for the given records. Called by the
// engine only after the run's entities are persisted and published.
func (g *Gate) Commit(
	ctx context.Context,
	tenantID, dataSourceID string,
	kind models.EntityKind,
	hashes map[string]string,
) error {
	if len(hashes) == 0 {
		return nil
	}

	return g.store.SetHashes(ctx, tenantID, dataSourceID, kind, hashes)
}
