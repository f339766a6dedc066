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

// Package analyzers computes domain findings from normalized entities.
// Analyzers are stateless pure functions over a batch plus a read-only
// policy baseline supplied as input, never fetched internally, so every
// pass is deterministic and independently testable.
package analyzers

import (
	"encoding/json"
	"time"

	"github.com/harborwatch/harborwatch/pkg/models"
)

// Baseline is the organizational policy reference data an analyzer pass
// runs against. Now is injected for determinism; a zero Now means the
// current time.
type Baseline struct {
	Now                     time.Time
	StaleAfter              models.Duration
	RequireIPS              bool
	RequireContentFilter    bool
	MinLicenseSeats         int
	LicenseWasteUtilization float64
	PrivilegedUsers         map[string]bool
}

// DefaultBaseline returns the stock policy thresholds.
func DefaultBaseline() Baseline {
	return Baseline{
		StaleAfter:              models.Duration(30 * 24 * time.Hour),
		RequireIPS:              true,
		RequireContentFilter:    true,
		MinLicenseSeats:         10,
		LicenseWasteUtilization: 0.7,
	}
}

// EffectiveNow resolves the pass timestamp.
func (b Baseline) EffectiveNow() time.Time {
	if b.Now.IsZero() {
		return time.Now().UTC()
	}

	return b.Now.UTC()
}

// Analyzer consumes one entity kind's fetched events and produces
// per-entity findings. An entity examined without a finding is a
// resolution signal; the subscription runner records the examined set on
// the emitted AnalysisEvent, so analyzers only report what is flagged.
type Analyzer interface {
	AnalysisType() models.AnalysisType
	EntityKind() models.EntityKind
	Analyze(entities []models.NormalizedEntity, baseline Baseline) []models.EntityFinding
}

// All returns every built-in analyzer.
func All() []Analyzer {
	return []Analyzer{
		MFAPosture{},
		Staleness{},
		LicenseWaste{},
		PolicyCoverage{},
	}
}

// details marshals a finding payload; a marshal failure yields an empty
// payload rather than dropping the finding.
func details(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	return data
}
