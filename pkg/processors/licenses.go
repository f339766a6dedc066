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

type graphSubscribedSKU struct {
	SKUID         string `json:"skuId"`
	SKUPartNumber string `json:"skuPartNumber"`
	ConsumedUnits int    `json:"consumedUnits"`
	PrepaidUnits  struct {
		Enabled int `json:"enabled"`
	} `json:"prepaidUnits"`
	CapabilityStatus   string `json:"capabilityStatus"`
	CostAllocationFlag bool   `json:"costAllocationEnabled"`
	NextLifecycleDate  string `json:"nextLifecycleDateTime"`
}

// Cost policies derived from the Microsoft 365 cost-allocation flag. The
// provider exposes a single boolean; the canonical model carries a policy
// mapping so PSA billing export does not need provider knowledge.
const (
	costPolicyChargeback = "chargeback"
	costPolicyAbsorbed   = "absorbed"
)

func normalizeMicrosoft365License(payload models.DataFetchPayload) (models.NormalizedEntity, error) {
	var sku graphSubscribedSKU
	if err := json.Unmarshal(payload.RawData, &sku); err != nil {
		return models.NormalizedEntity{}, fmt.Errorf("parse subscribed sku: %w", err)
	}

	costPolicy := costPolicyAbsorbed
	if sku.CostAllocationFlag {
		costPolicy = costPolicyChargeback
	}

	license := models.License{
		SKU:           sku.SKUID,
		ProductName:   sku.SKUPartNumber,
		TotalSeats:    sku.PrepaidUnits.Enabled,
		AssignedSeats: sku.ConsumedUnits,
		CostPolicy:    costPolicy,
		RenewsAt:      parseTime(sku.NextLifecycleDate),
	}

	return models.NewNormalizedEntity(models.EntityLicenses, payload, license)
}
