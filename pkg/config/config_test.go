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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const validConfig = `{
	"nats_url": "nats://localhost:4222",
	"database_dsn": "postgres://localhost:5432/harborwatch",
	"poll_interval": "5m",
	"tenants": [
		{
			"tenant_id": "t1",
			"data_sources": [
				{
					"id": "ds1",
					"integration_id": "int-ninjaone",
					"integration_type": "ninjaone",
					"entity_kinds": ["endpoints", "companies"]
				}
			]
		}
	]
}`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, models.Duration(5*time.Minute), cfg.PollInterval)
	assert.Equal(t, defaultMetricsAddr, cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.Len(t, cfg.Tenants, 1)
	require.Len(t, cfg.Tenants[0].DataSources, 1)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("HARBORWATCH_NATS_URL", "nats://broker:4222")
	t.Setenv("HARBORWATCH_DATABASE_DSN", "postgres://db:5432/override")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
	assert.Equal(t, "postgres://db:5432/override", cfg.DatabaseDSN)
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{`},
		{"missing nats url", `{"database_dsn":"d","tenants":[{"tenant_id":"t1"}]}`},
		{"missing database", `{"nats_url":"n","tenants":[{"tenant_id":"t1"}]}`},
		{"no tenants", `{"nats_url":"n","database_dsn":"d","tenants":[]}`},
		{"tenant without id", `{"nats_url":"n","database_dsn":"d","tenants":[{"tenant_id":""}]}`},
		{
			"bad entity kind",
			`{"nats_url":"n","database_dsn":"d","tenants":[{"tenant_id":"t1","data_sources":[
				{"id":"ds1","integration_type":"ninjaone","entity_kinds":["widgets"]}]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, errConfigRead)
}

func TestDataSourceDefaultsToNeverExpiring(t *testing.T) {
	dc := DataSourceConfig{ID: "ds1", IntegrationType: models.IntegrationFortiGate}

	ds := dc.DataSource("t1")
	assert.Equal(t, models.CredentialNeverExpires, ds.CredentialExpirationAt)
	assert.True(t, ds.Enabled())
	assert.False(t, ds.CredentialsExpired(time.Now()))
}
