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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harborwatch/harborwatch/pkg/adapters"
	"github.com/harborwatch/harborwatch/pkg/alerts"
	"github.com/harborwatch/harborwatch/pkg/analyzers"
	"github.com/harborwatch/harborwatch/pkg/bus"
	"github.com/harborwatch/harborwatch/pkg/config"
	"github.com/harborwatch/harborwatch/pkg/engine"
	"github.com/harborwatch/harborwatch/pkg/hashgate"
	"github.com/harborwatch/harborwatch/pkg/logger"
	"github.com/harborwatch/harborwatch/pkg/metrics"
	"github.com/harborwatch/harborwatch/pkg/models"
	"github.com/harborwatch/harborwatch/pkg/processors"
	"github.com/harborwatch/harborwatch/pkg/store"
	"github.com/harborwatch/harborwatch/pkg/version"
)

func main() {
	configPath := flag.String("config", "/etc/harborwatch/pipeline.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Pipeline service failed: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if err := store.Migrate(cfg.DatabaseDSN); err != nil {
		return err
	}

	st, err := store.Connect(ctx, cfg.DatabaseDSN, lg)
	if err != nil {
		return err
	}
	defer st.Close()

	natsBus, err := bus.ConnectNATS(ctx, cfg.NATSURL, lg)
	if err != nil {
		return err
	}
	defer natsBus.Close()

	m := metrics.New()

	runner := engine.NewRunner(
		newCatalog(cfg),
		adapters.DefaultRegistry(adapters.NewHTTPClients()),
		hashgate.New(st, lg),
		processors.DefaultRegistry(lg),
		st,
		natsBus,
		m,
		lg,
	)

	baseline := buildBaseline(cfg.Baseline)

	var subs []bus.Subscription

	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	for _, analyzer := range analyzers.All() {
		sub, err := engine.NewAnalyzerRunner(natsBus, analyzer, baseline, lg).Start(ctx)
		if err != nil {
			return fmt.Errorf("start analyzer %s: %w", analyzer.AnalysisType(), err)
		}

		subs = append(subs, sub)
	}

	aggregator := engine.NewAggregatorRunner(natsBus, alerts.New(st, lg), m, lg)

	sub, err := aggregator.Start(ctx)
	if err != nil {
		return fmt.Errorf("start aggregator: %w", err)
	}

	subs = append(subs, sub)

	svc := engine.NewService(runner, st, targetsFrom(cfg), time.Duration(cfg.PollInterval), engine.RealClock(), lg)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return m.Serve(groupCtx, cfg.MetricsAddr, lg) })
	group.Go(func() error { return svc.Start(groupCtx) })

	lg.Info().
		Str("version", version.Full()).
		Int("tenants", len(cfg.Tenants)).
		Msg("Pipeline service started")

	return group.Wait()
}

// catalog resolves data sources from the static service configuration.
type catalog struct {
	sources map[string]*models.DataSource
}

func newCatalog(cfg *config.Config) *catalog {
	sources := make(map[string]*models.DataSource)

	for _, tenant := range cfg.Tenants {
		for i := range tenant.DataSources {
			ds := tenant.DataSources[i].DataSource(tenant.TenantID)
			sources[tenant.TenantID+"|"+ds.ID] = ds
		}
	}

	return &catalog{sources: sources}
}

var errUnknownSource = errors.New("unknown data source")

func (c *catalog) DataSource(_ context.Context, tenantID, dataSourceID string) (*models.DataSource, error) {
	ds, ok := c.sources[tenantID+"|"+dataSourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", errUnknownSource, tenantID, dataSourceID)
	}

	return ds, nil
}

func targetsFrom(cfg *config.Config) []engine.Target {
	var targets []engine.Target

	for _, tenant := range cfg.Tenants {
		for _, ds := range tenant.DataSources {
			targets = append(targets, engine.Target{
				TenantID:     tenant.TenantID,
				DataSourceID: ds.ID,
				Kinds:        ds.EntityKinds,
			})
		}
	}

	return targets
}

func buildBaseline(bc config.BaselineConfig) analyzers.Baseline {
	baseline := analyzers.DefaultBaseline()

	if bc.StaleAfter > 0 {
		baseline.StaleAfter = bc.StaleAfter
	}

	if bc.RequireIPS != nil {
		baseline.RequireIPS = *bc.RequireIPS
	}

	if bc.RequireContentFilter != nil {
		baseline.RequireContentFilter = *bc.RequireContentFilter
	}

	if bc.MinLicenseSeats > 0 {
		baseline.MinLicenseSeats = bc.MinLicenseSeats
	}

	if bc.LicenseWasteUtilization > 0 {
		baseline.LicenseWasteUtilization = bc.LicenseWasteUtilization
	}

	return baseline
}
