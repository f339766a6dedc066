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

// Package config loads the pipeline service configuration from a JSON
// file, with environment overrides for deployment-specific endpoints.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/models"
)

const (
	defaultMetricsAddr  = ":9090"
	defaultPollInterval = models.Duration(15 * time.Minute)
)

var (
	errConfigRead        = errors.New("failed to read config file")
	errConfigParse       = errors.New("failed to parse config file")
	errMissingNATSURL    = errors.New("nats_url is required")
	errMissingDatabase   = errors.New("database_dsn is required")
	errNoTenants         = errors.New("at least one tenant is required")
	errTenantMissingID   = errors.New("tenant missing tenant_id")
	errSourceMissingID   = errors.New("data source missing id")
	errSourceMissingType = errors.New("data source missing integration_type")
	errSourceInvalidKind = errors.New("data source has invalid entity kind")
	errInvalidInterval   = errors.New("poll_interval must be positive")
)

// DataSourceConfig declares one scheduled integration connection.
type DataSourceConfig struct {
	ID                     string                 `json:"id"`
	IntegrationID          string                 `json:"integration_id"`
	IntegrationType        models.IntegrationType `json:"integration_type"`
	EntityKinds            []models.EntityKind    `json:"entity_kinds"`
	Config                 json.RawMessage        `json:"config,omitempty"`
	CredentialExpirationAt int64                  `json:"credential_expiration_at,omitempty"`
}

// TenantConfig declares one tenant and its data sources.
type TenantConfig struct {
	TenantID    string             `json:"tenant_id"`
	DataSources []DataSourceConfig `json:"data_sources"`
}

// BaselineConfig carries the analyzer policy thresholds.
type BaselineConfig struct {
	StaleAfter              models.Duration `json:"stale_after,omitempty"`
	RequireIPS              *bool           `json:"require_ips,omitempty"`
	RequireContentFilter    *bool           `json:"require_content_filter,omitempty"`
	MinLicenseSeats         int             `json:"min_license_seats,omitempty"`
	LicenseWasteUtilization float64         `json:"license_waste_utilization,omitempty"`
}

// Config is the root service configuration.
type Config struct {
	NATSURL      string          `json:"nats_url"`
	DatabaseDSN  string          `json:"database_dsn"`
	MetricsAddr  string          `json:"metrics_addr,omitempty"`
	PollInterval models.Duration `json:"poll_interval,omitempty"`
	Logging      logger.Config   `json:"logging,omitempty"`
	Baseline     BaselineConfig  `json:"baseline,omitempty"`
	Tenants      []TenantConfig  `json:"tenants"`
}

// Load reads the file, applies environment overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errConfigRead, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errConfigParse, path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv lets deployment environments override connection endpoints
// without editing the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("HARBORWATCH_NATS_URL"); v != "" {
		c.NATSURL = v
	}

	if v := os.Getenv("HARBORWATCH_DATABASE_DSN"); v != "" {
		c.DatabaseDSN = v
	}

	if v := os.Getenv("HARBORWATCH_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

func (c *Config) applyDefaults() {
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaultMetricsAddr
	}

	if c.PollInterval == 0 {
		c.PollInterval = defaultPollInterval
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration before the service starts.
func (c *Config) Validate() error {
	if c.NATSURL == "" {
		return errMissingNATSURL
	}

	if c.DatabaseDSN == "" {
		return errMissingDatabase
	}

	if c.PollInterval <= 0 {
		return errInvalidInterval
	}

	if len(c.Tenants) == 0 {
		return errNoTenants
	}

	for _, tenant := range c.Tenants {
		if tenant.TenantID == "" {
			return errTenantMissingID
		}

		for _, ds := range tenant.DataSources {
			if ds.ID == "" {
				return fmt.Errorf("%w: tenant %s", errSourceMissingID, tenant.TenantID)
			}

			if ds.IntegrationType == "" {
				return fmt.Errorf("%w: %s", errSourceMissingType, ds.ID)
			}

			for _, kind := range ds.EntityKinds {
				if !kind.Valid() {
					return fmt.Errorf("%w: %s: %q", errSourceInvalidKind, ds.ID, kind)
				}
			}
		}
	}

	return nil
}

// DataSource materializes the catalog record for one configured source.
func (d *DataSourceConfig) DataSource(tenantID string) *models.DataSource {
	expiration := d.CredentialExpirationAt
	if expiration == 0 {
		expiration = models.CredentialNeverExpires
	}

	return &models.DataSource{
		ID:                     d.ID,
		TenantID:               tenantID,
		IntegrationID:          d.IntegrationID,
		IntegrationType:        d.IntegrationType,
		Status:                 models.DataSourceActive,
		Config:                 d.Config,
		CredentialExpirationAt: expiration,
	}
}
