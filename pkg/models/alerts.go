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

import "time"

// AlertCategory groups findings that reconcile into the same alert key.
type AlertCategory string

const (
	AlertCategoryMFAPosture    AlertCategory = "mfa_posture"
	AlertCategoryStaleEndpoint AlertCategory = "stale_endpoint"
	AlertCategoryLicenseWaste  AlertCategory = "license_waste"
	AlertCategoryPolicyGap     AlertCategory = "policy_gap"
)

// CategoryForAnalysis maps an analyzer to the alert category its findings
// reconcile into. Multiple analyzers may share a category.
func CategoryForAnalysis(t AnalysisType) (AlertCategory, bool) {
	switch t {
	case AnalysisMFAPosture:
		return AlertCategoryMFAPosture, true
	case AnalysisStaleness:
		return AlertCategoryStaleEndpoint, true
	case AnalysisLicenseWaste:
		return AlertCategoryLicenseWaste, true
	case AnalysisPolicyCoverage:
		return AlertCategoryPolicyGap, true
	default:
		return "", false
	}
}

// AlertStatus is the lifecycle state of an alert episode.
type AlertStatus string

const (
	AlertStatusOpen     AlertStatus = "open"
	AlertStatusResolved AlertStatus = "resolved"
)

// Alert is a composite record keyed by (tenant, entity, category). One row
// per episode: a resolved alert stays for history and a reappearing finding
// opens a fresh episode. Version is the compare-and-swap token for
// concurrent reconciliation.
type Alert struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	EntityID   string          `json:"entity_id"`
	Category   AlertCategory   `json:"category"`
	Severity   Severity        `json:"severity"`
	Status     AlertStatus     `json:"status"`
	SiteID     string          `json:"site_id,omitempty"`
	Findings   []EntityFinding `json:"findings"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	Version    int64           `json:"version"`
}

// AlertTransition names one reconcile outcome.
type AlertTransition string

const (
	AlertOpened   AlertTransition = "opened"
	AlertUpdated  AlertTransition = "updated"
	AlertResolved AlertTransition = "resolved"
	AlertReopened AlertTransition = "reopened"
)

// AlertDelta describes one state change produced by reconciling an
// analysis event.
type AlertDelta struct {
	Transition AlertTransition `json:"transition"`
	Alert      Alert           `json:"alert"`
}
