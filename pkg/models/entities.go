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

// Package models defines the canonical entity contract and the value types
// that move through the ingestion pipeline.
package models

import "time"

// Canonical status values shared across entity kinds. Provider-specific
// state enums are translated into these by the processors.
const (
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusExpired  = "expired"
)

// Company is the canonical shape for a managed client organization.
type Company struct {
	Name    string `json:"name"`
	Domain  string `json:"domain,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	Status  string `json:"status"`
}

// Endpoint is the canonical shape for a managed device. LastCheckInAt is
// always set; records missing a provider check-in timestamp are normalized
// to the Unix epoch so staleness analysis has a total ordering.
type Endpoint struct {
	Hostname          string    `json:"hostname"`
	OS                string    `json:"os"`
	OSVersion         string    `json:"os_version,omitempty"`
	SerialNumber      string    `json:"serial_number,omitempty"`
	Status            string    `json:"status"`
	LastCheckInAt     time.Time `json:"last_check_in_at"`
	AgentVersion      string    `json:"agent_version,omitempty"`
	EncryptionEnabled bool      `json:"encryption_enabled"`
	AntivirusEnabled  bool      `json:"antivirus_enabled"`
}

// Identity is the canonical shape for a directory user.
type Identity struct {
	UserPrincipalName string    `json:"user_principal_name"`
	DisplayName       string    `json:"display_name,omitempty"`
	Email             string    `json:"email,omitempty"`
	AccountEnabled    bool      `json:"account_enabled"`
	MFAEnrolled       bool      `json:"mfa_enrolled"`
	MFACapable        bool      `json:"mfa_capable"`
	LastSignInAt      time.Time `json:"last_sign_in_at"`
	Licenses          []string  `json:"licenses,omitempty"`
}

// Firewall is the canonical shape for a perimeter appliance.
type Firewall struct {
	Hostname             string    `json:"hostname"`
	Model                string    `json:"model,omitempty"`
	FirmwareVersion      string    `json:"firmware_version,omitempty"`
	SerialNumber         string    `json:"serial_number,omitempty"`
	Status               string    `json:"status"`
	IPSEnabled           bool      `json:"ips_enabled"`
	ContentFilterEnabled bool      `json:"content_filter_enabled"`
	GeoIPFilterEnabled   bool      `json:"geoip_filter_enabled"`
	LicenseExpiresAt     time.Time `json:"license_expires_at"`
}

// License is the canonical shape for a subscription SKU. CostPolicy is a
// derived mapping; see the microsoft365 license normalizer.
type License struct {
	SKU           string    `json:"sku"`
	ProductName   string    `json:"product_name,omitempty"`
	TotalSeats    int       `json:"total_seats"`
	AssignedSeats int       `json:"assigned_seats"`
	CostPolicy    string    `json:"cost_policy,omitempty"`
	RenewsAt      time.Time `json:"renews_at"`
}

// Role is the canonical shape for a directory role assignment group.
type Role struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	IsPrivileged bool     `json:"is_privileged"`
	MemberIDs    []string `json:"member_ids,omitempty"`
}
