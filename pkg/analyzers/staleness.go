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

package analyzers

import (
	"time"

	"github.com/harborwatch/harborwatch/pkg/models"
)

// staleEscalationFactor bumps a stale endpoint to high severity once its
// silence exceeds this multiple of the baseline window.
const staleEscalationFactor = 3

// Staleness flags endpoints that have not checked in within the baseline
// window. Endpoints with an epoch check-in (provider never reported one)
// are always stale.
type Staleness struct{}

func (Staleness) AnalysisType() models.AnalysisType { return models.AnalysisStaleness }

func (Staleness) EntityKind() models.EntityKind { return models.EntityEndpoints }

func (Staleness) Analyze(entities []models.NormalizedEntity, baseline Baseline) []models.EntityFinding {
	now := baseline.EffectiveNow()
	window := time.Duration(baseline.StaleAfter)

	var findings []models.EntityFinding

	for _, entity := range entities {
		var endpoint models.Endpoint
		if err := entity.Decode(&endpoint); err != nil {
			continue
		}

		age := now.Sub(endpoint.LastCheckInAt)
		if age <= window {
			continue
		}

		severity := models.SeverityMedium
		if age > staleEscalationFactor*window {
			severity = models.SeverityHigh
		}

		findings = append(findings, models.EntityFinding{
			EntityID: entity.ExternalID,
			Severity: severity,
			Details: details(map[string]any{
				"hostname":         endpoint.Hostname,
				"last_check_in_at": endpoint.LastCheckInAt,
				"days_silent":      int(age.Hours() / 24),
			}),
		})
	}

	return findings
}
