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

// PolicyCoverage flags firewalls missing required security subscriptions
// or running on an expired license. One finding per appliance carries the
// full gap list; severity is the maximum across gaps.
type PolicyCoverage struct{}

func (PolicyCoverage) AnalysisType() models.AnalysisType { return models.AnalysisPolicyCoverage }

func (PolicyCoverage) EntityKind() models.EntityKind { return models.EntityFirewalls }

func (PolicyCoverage) Analyze(entities []models.NormalizedEntity, baseline Baseline) []models.EntityFinding {
	now := baseline.EffectiveNow()

	var findings []models.EntityFinding

	for _, entity := range entities {
		var fw models.Firewall
		if err := entity.Decode(&fw); err != nil {
			continue
		}

		var gaps []string

		severity := models.Severity("")

		if baseline.RequireIPS && !fw.IPSEnabled {
			gaps = append(gaps, "ips_disabled")
			severity = models.MaxSeverity(severity, models.SeverityHigh)
		}

		if baseline.RequireContentFilter && !fw.ContentFilterEnabled {
			gaps = append(gaps, "content_filter_disabled")
			severity = models.MaxSeverity(severity, models.SeverityMedium)
		}

		// Epoch means the provider never reported an expiry; an unknown
		// license date is not an expired license.
		if fw.LicenseExpiresAt.After(time.Unix(0, 0)) && fw.LicenseExpiresAt.Before(now) {
			gaps = append(gaps, "license_expired")
			severity = models.MaxSeverity(severity, models.SeverityCritical)
		}

		if len(gaps) == 0 {
			continue
		}

		findings = append(findings, models.EntityFinding{
			EntityID: entity.ExternalID,
			Severity: severity,
			Details: details(map[string]any{
				"hostname":           fw.Hostname,
				"gaps":               gaps,
				"license_expires_at": fw.LicenseExpiresAt,
			}),
		})
	}

	return findings
}
