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

import "github.com/harborwatch/harborwatch/pkg/models"

// highWasteSeats escalates a waste finding when at least this many seats
// sit unassigned.
const highWasteSeats = 25

// LicenseWaste flags subscription SKUs whose seat utilization falls below
// the baseline threshold. Small SKUs under MinLicenseSeats are skipped so
// trial and admin-only subscriptions do not generate noise.
type LicenseWaste struct{}

func (LicenseWaste) AnalysisType() models.AnalysisType { return models.AnalysisLicenseWaste }

func (LicenseWaste) EntityKind() models.EntityKind { return models.EntityLicenses }

func (LicenseWaste) Analyze(entities []models.NormalizedEntity, baseline Baseline) []models.EntityFinding {
	var findings []models.EntityFinding

	for _, entity := range entities {
		var lic models.License
		if err := entity.Decode(&lic); err != nil {
			continue
		}

		if lic.TotalSeats < baseline.MinLicenseSeats {
			continue
		}

		utilization := float64(lic.AssignedSeats) / float64(lic.TotalSeats)
		if utilization >= baseline.LicenseWasteUtilization {
			continue
		}

		unused := lic.TotalSeats - lic.AssignedSeats

		severity := models.SeverityMedium
		if unused >= highWasteSeats {
			severity = models.SeverityHigh
		}

		findings = append(findings, models.EntityFinding{
			EntityID: entity.ExternalID,
			Severity: severity,
			Details: details(map[string]any{
				"sku":            lic.SKU,
				"total_seats":    lic.TotalSeats,
				"assigned_seats": lic.AssignedSeats,
				"unused_seats":   unused,
				"utilization":    utilization,
			}),
		})
	}

	return findings
}
