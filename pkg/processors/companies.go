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

type graphOrganization struct {
	DisplayName     string `json:"displayName"`
	VerifiedDomains []struct {
		Name      string `json:"name"`
		IsDefault bool   `json:"isDefault"`
	} `json:"verifiedDomains"`
	BusinessPhones []string `json:"businessPhones"`
	Street         string   `json:"street"`
}

func normalizeMicrosoft365Company(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var org graphOrganization
	if err := json.Unmarshal(payload.RawData, &org); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse graph organization: %w", err)
	}

	domain := ""

	for _, d := range org.VerifiedDomains {
		if d.IsDefault {
			domain = d.Name
			break
		}
	}

	phone := ""
	if len(org.BusinessPhones) > 0 {
		phone = org.BusinessPhones[0]
	}

	company := models.Company{
		Name:    org.DisplayName,
		Domain:  domain,
		Phone:   phone,
		Address: org.Street,
		Status:  models.StatusActive,
	}

	return models.NewNormalizedEntity(models.EntityCompanies, payload, company)
}

type ninjaOneOrganization struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func normalizeNinjaOneCompany(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var org ninjaOneOrganization
	if err := json.Unmarshal(payload.RawData, &org); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse ninjaone organization: %w", err)
	}

	company := models.Company{
		Name:   org.Name,
		Status: models.StatusActive,
	}

	return models.NewNormalizedEntity(models.EntityCompanies, payload, company)
}

type haloPSAClientRecord struct {
	Name     string `json:"name"`
	Website  string `json:"website"`
	Phone    string `json:"main_phonenumber"`
	Address  string `json:"main_address"`
	Inactive bool   `json:"inactive"`
}

func normalizeHaloPSACompany(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var client haloPSAClientRecord
	if err := json.Unmarshal(payload.RawData, &client); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse halopsa client: %w", err)
	}

	status := models.StatusActive
	if client.Inactive {
		status = models.StatusInactive
	}

	company := models.Company{
		Name:    client.Name,
		Domain:  client.Website,
		Phone:   client.Phone,
		Address: client.Address,
		Status:  status,
	}

	return models.NewNormalizedEntity(models.EntityCompanies, payload, company)
}
