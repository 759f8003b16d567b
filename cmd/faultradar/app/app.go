/*
 * Copyright 2025 Carver Automation Corporation.
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

// Package app wires the firmware distribution server from its config.
package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/carverauto/faultradar/pkg/api"
	"github.com/carverauto/faultradar/pkg/config"
	"github.com/carverauto/faultradar/pkg/crypto/signature"
	"github.com/carverauto/faultradar/pkg/kv"
	"github.com/carverauto/faultradar/pkg/lifecycle"
	"github.com/carverauto/faultradar/pkg/logger"
	"github.com/carverauto/faultradar/pkg/metrics"
	"github.com/carverauto/faultradar/pkg/ota"
	"github.com/carverauto/faultradar/pkg/sites"
	"github.com/carverauto/faultradar/pkg/version"
)

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run loads the config and serves the API until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(ctx context.Context, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var cfg ota.Config

	if err := config.NewConfig(nil).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return err
	}

	mainLogger, err := lifecycle.CreateComponentLogger("faultradar", cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, closeFn, err := newServer(ctx, &cfg, mainLogger)
	if err != nil {
		return err
	}
	defer closeFn()

	mainLogger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("version", version.Get().String()).
		Str("storage", cfg.Storage.Backend).
		Msg("Starting firmware API server")

	return server.Start(ctx, cfg.ListenAddr)
}

// newServer builds the API server and returns a func releasing its storage.
func newServer(ctx context.Context, cfg *ota.Config, log logger.Logger) (*api.APIServer, func(), error) {
	store, err := kv.New(ctx, cfg.Storage, cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing KV store")
		}
	}

	blobs, err := ota.NewBlobStore(cfg.FirmwareDir)
	if err != nil {
		closeFn()

		return nil, nil, err
	}

	signer, err := signature.NewAuthority(cfg.HMACSecret)
	if err != nil {
		closeFn()

		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := ota.NewService(store, blobs, signer, sites.NewFileInventory(cfg.SitesFile),
		ota.WithLogger(log),
		ota.WithRecorder(metrics.NewPrometheusRecorder(reg)),
		ota.WithLegacyFallback(cfg.LegacyLatestFallback),
		ota.WithFanoutConcurrency(cfg.FanoutConcurrency),
		ota.WithOnlineWindow(time.Duration(cfg.OnlineWindow)),
	)
	if err != nil {
		closeFn()

		return nil, nil, err
	}

	server := api.NewAPIServer(cfg.CORS,
		api.WithFirmwareService(svc),
		api.WithLogger(log),
		api.WithMetricsHandler(metrics.Handler(reg)),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)

	return server, closeFn, nil
}
