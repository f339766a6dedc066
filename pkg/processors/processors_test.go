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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

func payloadFor(externalID string, raw string) models.DataFetchPayload {
	return models.DataFetchPayload{
		ExternalID: externalID,
		RawData:    json.RawMessage(raw),
		DataHash:   "hash-" + externalID,
	}
}

func TestNormalizeUnknownIntegrationReturnsEmpty(t *testing.T) {
	registry := DefaultRegistry(logger.NewTestLogger())
	proc, ok := registry.For(models.EntityEndpoints)
	require.True(t, ok)

	// Must not panic and must not return nil semantics that break callers.
	entities := proc.Normalize("solarwinds", []models.DataFetchPayload{
		payloadFor("d1", `{"systemName":"ws01"}`),
	})

	assert.NotNil(t, entities)
	assert.Empty(t, entities)
}

func TestNormalizeNinjaOneEndpoint(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityEndpoints]

	entities := proc.Normalize(models.IntegrationNinjaOne, []models.DataFetchPayload{
		payloadFor("101", `{
			"systemName": "ws01",
			"os": "Windows 11",
			"osVersion": "23H2",
			"serialNumber": "SN-1",
			"offline": true,
			"lastContact": "2025-06-01T10:00:00Z",
			"agentVersion": "5.3.0",
			"diskEncrypted": true,
			"antivirusState": "HEALTHY"
		}`),
	})

	require.Len(t, entities, 1)
	assert.Equal(t, "101", entities[0].ExternalID)
	assert.Equal(t, "hash-101", entities[0].Hash)

	var endpoint models.Endpoint

	require.NoError(t, entities[0].Decode(&endpoint))
	assert.Equal(t, "ws01", endpoint.Hostname)
	assert.Equal(t, models.StatusOffline, endpoint.Status)
	assert.True(t, endpoint.EncryptionEnabled)
	assert.True(t, endpoint.AntivirusEnabled)
	assert.Equal(t, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC), endpoint.LastCheckInAt)
}

func TestNormalizeEndpointMissingCheckInDefaultsToEpoch(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityEndpoints]

	entities := proc.Normalize(models.IntegrationNinjaOne, []models.DataFetchPayload{
		payloadFor("101", `{"systemName":"ws01","offline":false}`),
	})

	require.Len(t, entities, 1)

	var endpoint models.Endpoint

	require.NoError(t, entities[0].Decode(&endpoint))
	assert.Equal(t, time.Unix(0, 0).UTC(), endpoint.LastCheckInAt)
	assert.Equal(t, models.StatusOnline, endpoint.Status)
}

func TestNormalizeSentinelOneEndpoint(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityEndpoints]

	entities := proc.Normalize(models.IntegrationSentinelOne, []models.DataFetchPayload{
		payloadFor("a-1", `{"computerName":"srv01","osName":"Ubuntu","isActive":true,"infected":true}`),
	})

	require.Len(t, entities, 1)

	var endpoint models.Endpoint

	require.NoError(t, entities[0].Decode(&endpoint))
	assert.Equal(t, models.StatusOnline, endpoint.Status)
	assert.False(t, endpoint.AntivirusEnabled)
}

func TestNormalizeMicrosoft365Identity(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityIdentities]

	entities := proc.Normalize(models.IntegrationMicrosoft365, []models.DataFetchPayload{
		payloadFor("u-1", `{
			"userPrincipalName": "alex@contoso.com",
			"displayName": "Alex Chen",
			"mail": "alex@contoso.com",
			"accountEnabled": true,
			"authentication": {"isMfaRegistered": false, "isMfaCapable": true},
			"signInActivity": {"lastSignInDateTime": "2025-05-20T08:30:00Z"}
		}`),
	})

	require.Len(t, entities, 1)

	var identity models.Identity

	require.NoError(t, entities[0].Decode(&identity))
	assert.Equal(t, "alex@contoso.com", identity.UserPrincipalName)
	assert.True(t, identity.AccountEnabled)
	assert.False(t, identity.MFAEnrolled)
	assert.True(t, identity.MFACapable)
}

func TestNormalizeMicrosoft365LicenseCostPolicy(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityLicenses]

	entities := proc.Normalize(models.IntegrationMicrosoft365, []models.DataFetchPayload{
		payloadFor("sku-1", `{
			"skuId": "sku-1",
			"skuPartNumber": "ENTERPRISEPACK",
			"consumedUnits": 40,
			"prepaidUnits": {"enabled": 100},
			"costAllocationEnabled": true
		}`),
		payloadFor("sku-2", `{"skuId":"sku-2","consumedUnits":5,"prepaidUnits":{"enabled":5}}`),
	})

	require.Len(t, entities, 2)

	var chargeback, absorbed models.License

	require.NoError(t, entities[0].Decode(&chargeback))
	require.NoError(t, entities[1].Decode(&absorbed))
	assert.Equal(t, "chargeback", chargeback.CostPolicy)
	assert.Equal(t, 100, chargeback.TotalSeats)
	assert.Equal(t, 40, chargeback.AssignedSeats)
	assert.Equal(t, "absorbed", absorbed.CostPolicy)
}

func TestNormalizeMicrosoft365RolePrivilegeDetection(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityRoles]

	entities := proc.Normalize(models.IntegrationMicrosoft365, []models.DataFetchPayload{
		payloadFor("r-1", `{"displayName":"Global Administrator","memberIds":["u-1"]}`),
		payloadFor("r-2", `{"displayName":"Directory Readers"}`),
	})

	require.Len(t, entities, 2)

	var admin, reader models.Role

	require.NoError(t, entities[0].Decode(&admin))
	require.NoError(t, entities[1].Decode(&reader))
	assert.True(t, admin.IsPrivileged)
	assert.False(t, reader.IsPrivileged)
}

func TestNormalizeCompanies(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityCompanies]

	entities := proc.Normalize(models.IntegrationHaloPSA, []models.DataFetchPayload{
		payloadFor("c-1", `{"name":"Contoso","website":"contoso.com","inactive":true}`),
	})

	require.Len(t, entities, 1)

	var company models.Company

	require.NoError(t, entities[0].Decode(&company))
	assert.Equal(t, "Contoso", company.Name)
	assert.Equal(t, models.StatusInactive, company.Status)

	entities = proc.Normalize(models.IntegrationMicrosoft365, []models.DataFetchPayload{
		payloadFor("org-1", `{
			"displayName": "Contoso Ltd",
			"verifiedDomains": [{"name":"contoso.onmicrosoft.com"},{"name":"contoso.com","isDefault":true}],
			"businessPhones": ["+1 555 0100"]
		}`),
	})

	require.Len(t, entities, 1)
	require.NoError(t, entities[0].Decode(&company))
	assert.Equal(t, "contoso.com", company.Domain)
}

func TestNormalizeFortiGateFirewall(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityFirewalls]

	entities := proc.Normalize(models.IntegrationFortiGate, []models.DataFetchPayload{
		payloadFor("FG100-1", `{
			"hostname": "fw-hq",
			"model": "FortiGate 100F",
			"serial": "FG100-1",
			"conn_status": "UP",
			"utm_profile": {"ips": true, "webfilter": false, "geoip": true},
			"license_expires": "2026-01-01T00:00:00Z"
		}`),
	})

	require.Len(t, entities, 1)

	var firewall models.Firewall

	require.NoError(t, entities[0].Decode(&firewall))
	assert.Equal(t, models.StatusOnline, firewall.Status)
	assert.True(t, firewall.IPSEnabled)
	assert.False(t, firewall.ContentFilterEnabled)
}

func TestNormalizeSkipsMalformedRecords(t *testing.T) {
	proc := DefaultRegistry(logger.NewTestLogger())[models.EntityEndpoints]

	entities := proc.Normalize(models.IntegrationNinjaOne, []models.DataFetchPayload{
		payloadFor("ok", `{"systemName":"ws01"}`),
		payloadFor("bad", `{"systemName":`),
		{ExternalID: "", RawData: json.RawMessage(`{"systemName":"ws03"}`), DataHash: "h"},
	})

	require.Len(t, entities, 1)
	assert.Equal(t, "ok", entities[0].ExternalID)
}
