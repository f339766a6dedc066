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

package processors

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harborwatch/harborwatch/pkg/models"
)

type ninjaOneDevice struct {
	SystemName     string `json:"systemName"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
	SerialNumber   string `json:"serialNumber"`
	Offline        bool   `json:"offline"`
	LastContact    string `json:"lastContact"`
	AgentVersion   string `json:"agentVersion"`
	DiskEncrypted  bool   `json:"diskEncrypted"`
	AntivirusState string `json:"antivirusState"`
}

func normalizeNinjaOneEndpoint(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var device ninjaOneDevice
	if err := json.Unmarshal(payload.RawData, &device); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse ninjaone device: %w", err)
	}

	status := models.StatusOnline
	if device.Offline {
		status = models.StatusOffline
	}

	endpoint := models.Endpoint{
		Hostname:          device.SystemName,
		OS:                device.OS,
		OSVersion:         device.OSVersion,
		SerialNumber:      device.SerialNumber,
		Status:            status,
		LastCheckInAt:     parseTime(device.LastContact),
		AgentVersion:      device.AgentVersion,
		EncryptionEnabled: device.DiskEncrypted,
		AntivirusEnabled:  strings.EqualFold(device.AntivirusState, "healthy"),
	}

	return models.NewNormalizedEntity(models.EntityEndpoints, payload, endpoint)
}

type sentinelOneAgent struct {
	ComputerName   string `json:"computerName"`
	OSName         string `json:"osName"`
	OSRevision     string `json:"osRevision"`
	SerialNumber   string `json:"serialNumber"`
	IsActive       bool   `json:"isActive"`
	LastActiveDate string `json:"lastActiveDate"`
	AgentVersion   string `json:"agentVersion"`
	EncryptedDisks bool   `json:"encryptedApplications"`
	Infected       bool   `json:"infected"`
}

func normalizeSentinelOneEndpoint(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var agent sentinelOneAgent
	if err := json.Unmarshal(payload.RawData, &agent); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse sentinelone agent: %w", err)
	}

	status := models.StatusOffline
	if agent.IsActive {
		status = models.StatusOnline
	}

	endpoint := models.Endpoint{
		Hostname:          agent.ComputerName,
		OS:                agent.OSName,
		OSVersion:         agent.OSRevision,
		SerialNumber:      agent.SerialNumber,
		Status:            status,
		LastCheckInAt:     parseTime(agent.LastActiveDate),
		AgentVersion:      agent.AgentVersion,
		EncryptionEnabled: agent.EncryptedDisks,
		AntivirusEnabled:  !agent.Infected,
	}

	return models.NewNormalizedEntity(models.EntityEndpoints, payload, endpoint)
}
