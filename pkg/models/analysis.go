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
	"time"
)

// Severity grades a finding or alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var errInvalidSeverity = errors.New("invalid severity")

// Rank returns a comparable ordering for severities. Unknown values rank
// below low so malformed input never escalates an alert.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity validates a severity string from the wire.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", errInvalidSeverity, raw)
	}

	return s, nil
}

// MaxSeverity returns the higher of a and b. The merge is commutative and
// associative, so analyzer arrival order never affects the final severity.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}

	return a
}

// AnalysisType identifies one analyzer.
type AnalysisType string

const (
	AnalysisMFAPosture     AnalysisType = "mfa_posture"
	AnalysisStaleness      AnalysisType = "endpoint_staleness"
	AnalysisLicenseWaste   AnalysisType = "license_waste"
	AnalysisPolicyCoverage AnalysisType = "policy_coverage"
)

// EntityFinding is one analyzer's per-entity result. Details is an opaque
// domain payload surfaced verbatim on the resulting alert.
type EntityFinding struct {
	EntityID string          `json:"entity_id"`
	Severity Severity        `json:"severity"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// AnalysisEvent is the immutable output of exactly one analyzer pass.
// Examined lists every entity the pass looked at; an examined entity absent
// from Findings is the explicit "not currently flagged" signal the alert
// aggregator uses to resolve open alerts.
type AnalysisEvent struct {
	AnalysisID      string          `json:"analysis_id"`
	TenantID        string          `json:"tenant_id"`
	DataSourceID    string          `json:"data_source_id"`
	IntegrationID   string          `json:"integration_id"`
	IntegrationType IntegrationType `json:"integration_type"`
	AnalysisType    AnalysisType    `json:"analysis_type"`
	EntityKind      EntityKind      `json:"entity_kind"`
	Findings        []EntityFinding `json:"findings"`
	Examined        []string        `json:"examined"`
	CreatedAt       time.Time       `json:"created_at"`
}

var (
	errEventMissingTenant   = errors.New("analysis event missing tenant id")
	errEventMissingAnalysis = errors.New("analysis event missing analysis type")
	errEventInvalidKind     = errors.New("analysis event has invalid entity kind")
	errEventInvalidFinding  = errors.New("analysis event finding invalid")
)

// Validate checks the required fields before an event is processed.
// Consumers reject (log, not crash) events that fail validation.
func (e *AnalysisEvent) Validate() error {
	if e.TenantID == "" {
		return errEventMissingTenant
	}

	if e.AnalysisType == "" {
		return errEventMissingAnalysis
	}

	if !e.EntityKind.Valid() {
		return fmt.Errorf("%w: %q", errEventInvalidKind, e.EntityKind)
	}

	for i := range e.Findings {
		f := &e.Findings[i]
		if f.EntityID == "" || !f.Severity.Valid() {
			return fmt.Errorf("%w: index %d", errEventInvalidFinding, i)
		}
	}

	return nil
}
