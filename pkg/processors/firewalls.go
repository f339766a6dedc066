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

type fortiGateDevice struct {
	Hostname       string `json:"hostname"`
	Model          string `json:"model"`
	Firmware       string `json:"firmware_version"`
	Serial         string `json:"serial"`
	ConnStatus     string `json:"conn_status"`
	UTMProfile     struct {
		IPS       bool `json:"ips"`
		WebFilter bool `json:"webfilter"`
		GeoIP     bool `json:"geoip"`
	} `json:"utm_profile"`
	LicenseExpires string `json:"license_expires"`
}

func normalizeFortiGateFirewall(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var device fortiGateDevice
	if err := json.Unmarshal(payload.RawData, &device); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse fortigate device: %w", err)
	}

	status := models.StatusOffline
	if strings.EqualFold(device.ConnStatus, "up") {
		status = models.StatusOnline
	}

	firewall := models.Firewall{
		Hostname:             device.Hostname,
		Model:                device.Model,
		FirmwareVersion:      device.Firmware,
		SerialNumber:         device.Serial,
		Status:               status,
		IPSEnabled:           device.UTMProfile.IPS,
		ContentFilterEnabled: device.UTMProfile.WebFilter,
		GeoIPFilterEnabled:   device.UTMProfile.GeoIP,
		LicenseExpiresAt:     parseTime(device.LicenseExpires),
	}

	return models.NewNormalizedEntity(models.EntityFirewalls, payload, firewall)
}
