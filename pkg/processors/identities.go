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

	"github.com/harborwatch/harborwatch/pkg/models"
)

type graphUser struct {
	UserPrincipalName string   `json:"userPrincipalName"`
	DisplayName       string   `json:"displayName"`
	Mail              string   `json:"mail"`
	AccountEnabled    bool     `json:"accountEnabled"`
	AssignedLicenses  []string `json:"assignedLicenseSkus"`
	SignInActivity    struct {
		LastSignInDateTime string `json:"lastSignInDateTime"`
	} `json:"signInActivity"`
	Authentication struct {
		IsMFARegistered bool `json:"isMfaRegistered"`
		IsMFACapable    bool `json:"isMfaCapable"`
	} `json:"authentication"`
}

func normalizeMicrosoft365Identity(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var user graphUser
	if err := json.Unmarshal(payload.RawData, &user); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse graph user: %w", err)
	}

	identity := models.Identity{
		UserPrincipalName: user.UserPrincipalName,
		DisplayName:       user.DisplayName,
		Email:             user.Mail,
		AccountEnabled:    user.AccountEnabled,
		MFAEnrolled:       user.Authentication.IsMFARegistered,
		MFACapable:        user.Authentication.IsMFACapable,
		LastSignInAt:      parseTime(user.SignInActivity.LastSignInDateTime),
		Licenses:          user.AssignedLicenses,
	}

	return models.NewNormalizedEntity(models.EntityIdentities, payload, identity)
}
