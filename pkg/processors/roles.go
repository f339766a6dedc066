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

type graphDirectoryRole struct {
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"memberIds"`
}

// privilegedRoleMarkers flags directory roles that grant tenant-wide
// control. Membership in these feeds the MFA posture severity.
var privilegedRoleMarkers = []string{
	"administrator",
	"privileged",
}

func normalizeMicrosoft365Role(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var raw graphDirectoryRole
	if err := json.Unmarshal(payload.RawData, &raw); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse directory role: %w", err)
	}

	name := strings.ToLower(raw.DisplayName)
	privileged := false

	for _, marker := range privilegedRoleMarkers {
		if strings.Contains(name, marker) {
			privileged = true
			break
		}
	}

	role := models.Role{
		Name:         raw.DisplayName,
		Description:  raw.Description,
		IsPrivileged: privileged,
		MemberIDs:    raw.MemberIDs,
	}

	return models.NewNormalizedEntity(models.EntityRoles, payload, role)
}
