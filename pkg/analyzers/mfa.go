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

// MFAPosture flags enabled identities that have not enrolled in
// multi-factor authentication. Privileged accounts escalate to critical.
type MFAPosture struct{}

func (MFAPosture) AnalysisType() models.AnalysisType { return models.AnalysisMFAPosture }

func (MFAPosture) EntityKind() models.EntityKind { return models.EntityIdentities }

func (MFAPosture) Analyze(entities []models.NormalizedEntity, baseline Baseline) []models.EntityFinding {
	var findings []models.EntityFinding

	for _, entity := range entities {
		var identity models.Identity
		if err := entity.Decode(&identity); err != nil {
			continue
		}

		if !identity.AccountEnabled || identity.MFAEnrolled {
			continue
		}

		severity := models.SeverityHigh
		if baseline.PrivilegedUsers[entity.ExternalID] {
			severity = models.SeverityCritical
		}

		findings = append(findings, models.EntityFinding{
			EntityID: entity.ExternalID,
			Severity: severity,
			Details: details(map[string]any{
				"user_principal_name": identity.UserPrincipalName,
				"mfa_capable":         identity.MFACapable,
				"privileged":          baseline.PrivilegedUsers[entity.ExternalID],
			}),
		})
	}

	return findings
}
