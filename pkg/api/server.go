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

// Package api exposes the firmware distribution service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	srHttp "github.com/carverauto/faultradar/pkg/http"
	"github.com/carverauto/faultradar/pkg/logger"
	"github.com/carverauto/faultradar/pkg/models"
	"github.com/carverauto/faultradar/pkg/version"
)

const (
	defaultReadTimeout       = 60 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 120 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	shutdownTimeout          = 15 * time.Second

	defaultMaxUploadBytes = 16 << 20
	maxJSONBodyBytes      = 1 << 20
)

// APIServer routes HTTP requests to the firmware service.
type APIServer struct {
	router         *mux.Router
	corsConfig     models.CORSConfig
	service        FirmwareService
	logger         logger.Logger
	metricsHandler http.Handler
	maxUploadBytes int64
	now            func() time.Time
}

// NewAPIServer creates a new API server instance with the given configuration
func NewAPIServer(config models.CORSConfig, options ...func(server *APIServer)) *APIServer {
	s := &APIServer{
		router:         mux.NewRouter(),
		corsConfig:     config,
		logger:         logger.NewTestLogger(),
		maxUploadBytes: defaultMaxUploadBytes,
		now:            time.Now,
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

// WithFirmwareService sets the backend for the firmware routes.
func WithFirmwareService(svc FirmwareService) func(server *APIServer) {
	return func(server *APIServer) {
		server.service = svc
	}
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) func(server *APIServer) {
	return func(server *APIServer) {
		server.logger = log
	}
}

// WithMetricsHandler exposes h at /metrics.
func WithMetricsHandler(h http.Handler) func(server *APIServer) {
	return func(server *APIServer) {
		server.metricsHandler = h
	}
}

// WithMaxUploadBytes limits the size of firmware upload requests.
func WithMaxUploadBytes(n int64) func(server *APIServer) {
	return func(server *APIServer) {
		if n > 0 {
			server.maxUploadBytes = n
		}
	}
}

// setupRoutes configures the HTTP routes for the API server.
func (s *APIServer) setupRoutes() {
	s.router.HandleFunc("/healthz", s.getHealth).Methods(http.MethodGet)

	if s.metricsHandler != nil {
		s.router.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	}

	// Device-facing
	s.router.HandleFunc("/api/firmware/check", s.checkIn).Methods(http.MethodGet)
	s.router.HandleFunc("/api/firmware/latest", s.downloadLatest).Methods(http.MethodGet)
	s.router.HandleFunc("/api/firmware/status", s.postOTAStatus).Methods(http.MethodPost)

	// Administration
	s.router.HandleFunc("/api/firmware", s.uploadFirmware).Methods(http.MethodPost)
	s.router.HandleFunc("/api/firmware", s.listFirmware).Methods(http.MethodGet)
	s.router.HandleFunc("/api/firmware", s.setActiveFirmware).Methods(http.MethodPut)
	s.router.HandleFunc("/api/firmware", s.deleteFirmware).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/firmware/rollback", s.rollbackFirmware).Methods(http.MethodPost)
	s.router.HandleFunc("/api/firmware/force", s.raiseForceUpdate).Methods(http.MethodPost)
	s.router.HandleFunc("/api/firmware/force", s.listForceUpdates).Methods(http.MethodGet)
	s.router.HandleFunc("/api/firmware/status", s.getOTAStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/api/status", s.postHeartbeat).Methods(http.MethodPost)
	s.router.HandleFunc("/api/status", s.getStatuses).Methods(http.MethodGet)
}

// Handler returns the router wrapped in the request logging and CORS
// middleware. CORS runs outside the router so preflight requests are
// answered for every route.
func (s *APIServer) Handler() http.Handler {
	return srHttp.RequestLogger(s.logger)(srHttp.CommonMiddleware(s.router, s.corsConfig, s.logger))
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *APIServer) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       defaultReadTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP API")

		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down HTTP API")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Build   string `json:"build"`
}

func (s *APIServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	info := version.Get()

	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: info.Version, Build: info.BuildID})
}
