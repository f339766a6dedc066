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
	"math"
	"time"
)

// CredentialNeverExpires is the epoch-millis sentinel for credentials with
// no expiration.
const CredentialNeverExpires int64 = math.MaxInt64

// DataSourceStatus is the lifecycle state of a data source.
type DataSourceStatus string

const (
	DataSourceActive   DataSourceStatus = "active"
	DataSourceInactive DataSourceStatus = "inactive"
)

// DataSource is a tenant-scoped connection to one integration. It is owned
// by the tenant-management subsystem; the pipeline treats it as read-only
// input and trusts the tenant id it is invoked with.
type DataSource struct {
	ID                     string           `json:"id"`
	TenantID               string           `json:"tenant_id"`
	IntegrationID          string           `json:"integration_id"`
	IntegrationType        IntegrationType  `json:"integration_type"`
	Status                 DataSourceStatus `json:"status"`
	Config                 json.RawMessage  `json:"config,omitempty"`
	CredentialExpirationAt int64            `json:"credential_expiration_at"`
	IsPrimary              bool             `json:"is_primary"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	DeletedAt              *time.Time       `json:"deleted_at,omitempty"`
}

// Enabled reports whether the source may participate in a fetch run.
func (d *DataSource) Enabled() bool {
	return d.Status == DataSourceActive && d.DeletedAt == nil
}

// CredentialsExpired reports whether the source's credentials lapsed
// before now.
func (d *DataSource) CredentialsExpired(now time.Time) bool {
	if d.CredentialExpirationAt == CredentialNeverExpires {
		return false
	}

	return d.CredentialExpirationAt < now.UnixMilli()
}

// Integration is a read-only catalog entry describing one provider.
type Integration struct {
	ID          string          `json:"id"`
	Slug        IntegrationType `json:"slug"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	EntityKinds []EntityKind    `json:"entity_kinds"`
	IsActive    bool            `json:"is_active"`
}

// Supports reports whether the integration publishes the given entity kind.
func (i *Integration) Supports(kind EntityKind) bool {
	for _, k := range i.EntityKinds {
		if k == kind {
			return true
		}
	}

	return false
}

// RunResult reports one pipeline run back to the scheduler. Err is carried
// in-process only; scheduled-job persistence stores an error string so raw
// provider payloads never reach surfaced messages.
type RunResult struct {
	RecordsFetched int   `json:"records_fetched"`
	RecordsChanged int   `json:"records_changed"`
	Err            error `json:"-"`
}

// JobStatus is the scheduler-facing state of one fetch run.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ScheduledJob is the persisted status record for one (tenant, data source,
// entity kind) run, used to report consecutive-failure counts.
type ScheduledJob struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	DataSourceID        string     `json:"data_source_id"`
	EntityKind          EntityKind `json:"entity_kind"`
	Status              JobStatus  `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}
